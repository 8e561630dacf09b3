package permits

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

// Matcher proposes candidate permits for a classified project.
type Matcher interface {
	Match(ctx context.Context, c model.ProjectClassification, rules []model.Rule, regs []model.RegulatorySnippet) ([]model.CandidatePermit, error)
}

const matchPrompt = `Determine ALL permits this project requires in this jurisdiction.

Project classification:
%s

Jurisdiction permit rules:
%s

Regulatory context:
%s

Return a JSON array. Each element:
{"permit_type": "building|electrical|plumbing|mechanical|demolition|zoning|...", "permit_name": "official name", "required": true|false, "reasoning": "why", "triggers": ["what triggered it"], "exemptions": ["possible exemptions"]}
Use the permit_type values from the rules where they apply.`

// OracleMatcher asks the oracle which permits apply.
type OracleMatcher struct {
	client oracle.Client
}

// NewOracleMatcher creates an OracleMatcher.
func NewOracleMatcher(client oracle.Client) *OracleMatcher {
	return &OracleMatcher{client: client}
}

type oraclePermit struct {
	PermitType string   `json:"permit_type"`
	PermitName string   `json:"permit_name"`
	Required   *bool    `json:"required"`
	Reasoning  string   `json:"reasoning"`
	Triggers   []string `json:"triggers"`
	Exemptions []string `json:"exemptions"`
}

// Match returns the oracle's candidates with oracle provenance. An
// unreachable oracle yields an error matching oracle.ErrUnavailable and an
// unparseable reply one matching oracle.ErrMalformed. Elements without a
// permit type are dropped. An element that omits "required" counts as
// required.
func (m *OracleMatcher) Match(ctx context.Context, c model.ProjectClassification, rules []model.Rule, regs []model.RegulatorySnippet) ([]model.CandidatePermit, error) {
	prompt, err := buildMatchPrompt(c, rules, regs)
	if err != nil {
		return nil, err
	}

	text, err := m.client.Generate(ctx, prompt, oracle.FormatStructured)
	if err != nil {
		return nil, eris.Wrap(err, "permits: oracle match")
	}

	var raw []oraclePermit
	if err := oracle.DecodeArray(text, &raw); err != nil {
		return nil, eris.Wrap(err, "permits: parse oracle match")
	}

	out := make([]model.CandidatePermit, 0, len(raw))
	for i, p := range raw {
		if strings.TrimSpace(p.PermitType) == "" {
			zap.L().Warn("permits: dropping oracle permit without type",
				zap.Int("index", i),
				zap.String("permit_name", p.PermitName),
			)
			continue
		}
		out = append(out, model.CandidatePermit{
			PermitType: strings.TrimSpace(p.PermitType),
			PermitName: p.PermitName,
			Required:   p.Required == nil || *p.Required,
			Reasoning:  p.Reasoning,
			Triggers:   p.Triggers,
			Exemptions: p.Exemptions,
			Provenance: model.ProvenanceOracle,
		})
	}
	return out, nil
}

func buildMatchPrompt(c model.ProjectClassification, rules []model.Rule, regs []model.RegulatorySnippet) (string, error) {
	cj, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "permits: marshal classification")
	}
	if rules == nil {
		rules = []model.Rule{}
	}
	rj, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "permits: marshal rules")
	}
	return fmt.Sprintf(matchPrompt, cj, rj, FormatRegulations(regs)), nil
}

// FormatRegulations renders snippets one per line as "[code] title: text".
func FormatRegulations(regs []model.RegulatorySnippet) string {
	if len(regs) == 0 {
		return "(none retrieved)"
	}
	var b strings.Builder
	for _, r := range regs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", r.Code, r.Title, strings.Join(strings.Fields(r.Text), " "))
	}
	return strings.TrimRight(b.String(), "\n")
}
