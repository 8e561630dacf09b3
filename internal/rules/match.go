package rules

import (
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
)

// Match evaluates every rule not marked disabled against c and returns one
// candidate per matching rule, in rule order. A rule whose condition fails to
// compile or evaluate does not match. Match never calls out and never fails.
func Match(c model.ProjectClassification, rules []model.Rule) []model.CandidatePermit {
	attrs := c.Attributes()
	var out []model.CandidatePermit

	for _, r := range rules {
		if r.Disabled {
			continue
		}
		cond, err := Compile(r.Condition)
		if err != nil {
			zap.L().Debug("rules: condition does not compile",
				zap.String("jurisdiction_id", r.JurisdictionID),
				zap.String("permit_type", r.PermitType),
				zap.Error(err),
			)
			continue
		}
		ok, err := cond.Eval(attrs)
		if err != nil {
			zap.L().Debug("rules: condition does not evaluate",
				zap.String("jurisdiction_id", r.JurisdictionID),
				zap.String("permit_type", r.PermitType),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		out = append(out, model.CandidatePermit{
			PermitType: r.PermitType,
			PermitName: r.PermitName,
			Required:   true,
			Reasoning:  r.Description,
			Triggers:   append([]string(nil), r.Triggers...),
			Provenance: model.ProvenanceRule,
		})
	}
	return out
}
