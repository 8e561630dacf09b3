package autofill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

const reviewPrompt = `Review this filled permit form for consistency and completeness:
%s

Field labels:
%s

Check for:
- inconsistent information
- missing relationships between fields
- values that don't make sense together

Return JSON: {"valid": true|false, "errors": ["..."], "warnings": ["..."]}`

// Validator checks a filled form field by field, then asks the oracle for a
// cross-field review when the field checks pass.
type Validator struct {
	client oracle.Client
}

// NewValidator creates a Validator. With a nil client only the field checks
// run.
func NewValidator(client oracle.Client) *Validator {
	return &Validator{client: client}
}

type review struct {
	Valid    *bool    `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate always returns a verdict. The oracle review runs only when every
// field check passed; if it fails the verdict carries a warning instead.
func (v *Validator) Validate(ctx context.Context, filled map[string]any, fields []model.FormField) model.ValidationVerdict {
	var errs, warnings []string

	for _, f := range fields {
		val := filled[f.FieldName]
		if isEmpty(val) {
			if f.Required {
				errs = append(errs, "Required field missing: "+f.DisplayName())
			}
			continue
		}
		for _, msg := range CheckField(val, f) {
			errs = append(errs, f.DisplayName()+": "+msg)
		}
	}

	if len(errs) == 0 && v.client != nil {
		r, err := v.review(ctx, filled, fields)
		if err != nil {
			zap.L().Warn("autofill: consistency review failed", zap.Error(err))
			warnings = append(warnings, "consistency review unavailable: "+err.Error())
		} else {
			errs = append(errs, r.Errors...)
			warnings = append(warnings, r.Warnings...)
			if r.Valid != nil && !*r.Valid && len(r.Errors) == 0 {
				warnings = append(warnings, "consistency review flagged the form without naming a problem")
			}
		}
	}
	return model.NewVerdict(errs, warnings)
}

func (v *Validator) review(ctx context.Context, filled map[string]any, fields []model.FormField) (*review, error) {
	fj, err := json.MarshalIndent(filled, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "autofill: marshal filled form")
	}
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		labels[f.FieldName] = f.DisplayName()
	}
	lj, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "autofill: marshal labels")
	}

	text, err := v.client.Generate(ctx, fmt.Sprintf(reviewPrompt, fj, lj), oracle.FormatStructured)
	if err != nil {
		return nil, eris.Wrap(err, "autofill: consistency review")
	}
	var r review
	if err := oracle.DecodeObject(text, &r); err != nil {
		return nil, eris.Wrap(err, "autofill: parse consistency review")
	}
	return &r, nil
}
