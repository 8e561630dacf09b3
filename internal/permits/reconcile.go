// Package permits reconciles rule-based and oracle-based permit candidates
// into one deduplicated list and enriches it with form, fee and timing data.
package permits

import (
	"strings"

	"github.com/sells-group/permit-cli/internal/model"
)

// Key is the comparison form of a permit type: trimmed and lower-cased.
func Key(permitType string) string {
	return strings.ToLower(strings.TrimSpace(permitType))
}

// Reconcile merges two candidate lists by permit type. Output order is first
// appearance in ruleBased, then first appearance in oracleBased. When both
// sides list a type the result is required if either side requires it, its
// triggers and exemptions are the deduplicated concatenation, its reasoning
// and name prefer the rule side, and its provenance is both. Duplicates
// within one side fold the same way but keep that side's provenance.
func Reconcile(ruleBased, oracleBased []model.CandidatePermit) []model.CandidatePermit {
	var (
		out   []model.CandidatePermit
		index = make(map[string]int)
	)
	add := func(p model.CandidatePermit) {
		k := Key(p.PermitType)
		if k == "" {
			return
		}
		i, seen := index[k]
		if !seen {
			p.Triggers = dedup(nil, p.Triggers)
			p.Exemptions = dedup(nil, p.Exemptions)
			index[k] = len(out)
			out = append(out, p)
			return
		}
		out[i] = merge(out[i], p)
	}

	for _, p := range ruleBased {
		add(p)
	}
	for _, p := range oracleBased {
		add(p)
	}
	return out
}

// merge folds next into cur. cur came first, so it wins ties.
func merge(cur, next model.CandidatePermit) model.CandidatePermit {
	cur.Required = cur.Required || next.Required
	cur.Triggers = dedup(cur.Triggers, next.Triggers)
	cur.Exemptions = dedup(cur.Exemptions, next.Exemptions)
	cur.NeedsReview = cur.NeedsReview && next.NeedsReview

	if cur.Provenance != next.Provenance {
		cur.Provenance = model.ProvenanceBoth
	}

	// The rule side is the regulatory authority for names and reasoning.
	ruleSide, otherSide := cur, next
	if next.Provenance == model.ProvenanceRule && cur.Provenance != model.ProvenanceRule {
		ruleSide, otherSide = next, cur
	}
	cur.Reasoning = firstNonEmpty(ruleSide.Reasoning, otherSide.Reasoning)
	cur.PermitName = firstNonEmpty(ruleSide.PermitName, otherSide.PermitName)
	return cur
}

// dedup appends the entries of add not already in base, keeping order.
// Comparison ignores case and surrounding space.
func dedup(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			k := strings.ToLower(strings.TrimSpace(s))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
