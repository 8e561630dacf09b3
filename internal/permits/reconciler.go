package permits

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/rules"
)

// Result is the outcome of one reconciliation run.
type Result struct {
	Permits        []model.RequiredPermit `json:"permits"`
	OracleDegraded bool                   `json:"oracle_degraded"`
	OracleError    string                 `json:"oracle_error,omitempty"`
	// ReviewFlags lists oracle-only permit types unknown to the rule table.
	ReviewFlags []string `json:"review_flags,omitempty"`
}

// Reconciler runs both matchers, merges their output and enriches it.
type Reconciler struct {
	oracle   Matcher
	enricher Enricher
}

// NewReconciler creates a Reconciler. A nil oracle matcher makes every run
// degraded.
func NewReconciler(oracle Matcher, enricher Enricher) *Reconciler {
	return &Reconciler{oracle: oracle, enricher: enricher}
}

// Run matches c against ruleTable and the oracle. Rule-based permits survive
// any oracle failure, including cancellation of ctx during the oracle call.
func (r *Reconciler) Run(ctx context.Context, c model.ProjectClassification, ruleTable []model.Rule, regs []model.RegulatorySnippet) Result {
	ruleBased := rules.Match(c, ruleTable)

	var (
		res         Result
		oracleBased []model.CandidatePermit
	)
	if r.oracle == nil {
		res.OracleDegraded = true
		res.OracleError = "oracle not configured"
	} else {
		var err error
		oracleBased, err = r.oracle.Match(ctx, c, ruleTable, regs)
		if err != nil {
			zap.L().Warn("permits: oracle matcher failed, using rule-based permits only",
				zap.Int("rule_permits", len(ruleBased)),
				zap.Error(err),
			)
			res.OracleDegraded = true
			res.OracleError = err.Error()
			oracleBased = nil
		}
	}

	known := make(map[string]bool, len(ruleTable))
	for _, rule := range ruleTable {
		known[Key(rule.PermitType)] = true
	}

	merged := Reconcile(ruleBased, oracleBased)
	for i := range merged {
		if merged[i].Provenance != model.ProvenanceOracle || known[Key(merged[i].PermitType)] {
			continue
		}
		merged[i].NeedsReview = true
		res.ReviewFlags = append(res.ReviewFlags, merged[i].PermitType)
	}

	res.Permits = r.enricher.Enrich(ctx, merged, c)

	zap.L().Info("permits: reconciled",
		zap.Int("rule_permits", len(ruleBased)),
		zap.Int("oracle_permits", len(oracleBased)),
		zap.Int("permits", len(res.Permits)),
		zap.Bool("oracle_degraded", res.OracleDegraded),
		zap.Strings("review_flags", res.ReviewFlags),
	)
	return res
}
