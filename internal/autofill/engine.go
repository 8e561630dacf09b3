package autofill

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

// FillResult is the outcome of filling one form.
type FillResult struct {
	RunID         string                  `json:"run_id,omitempty"`
	Filled        map[string]any          `json:"filled_form"`
	Confidence    map[string]float64      `json:"confidence_scores"`
	Missing       []model.MissingField    `json:"missing_fields"`
	Validation    model.ValidationVerdict `json:"validation_results"`
	ReadyToSubmit bool                    `json:"ready_to_submit"`
	Warnings      []string                `json:"warnings,omitempty"`
	Mappings      model.Mappings          `json:"mappings,omitempty"`
}

// Engine fills forms end to end.
type Engine struct {
	mapper    *Mapper
	filler    *Filler
	validator *Validator
	metrics   *metrics.Metrics
}

// NewEngine wires an Engine around one oracle client. m may be nil.
func NewEngine(client oracle.Client, m *metrics.Metrics) *Engine {
	return &Engine{
		mapper:    NewMapper(client),
		filler:    NewFiller(NewTransformer(client), client),
		validator: NewValidator(client),
		metrics:   m,
	}
}

// Fill maps, fills and validates a form. It never fails: a mapping failure
// leaves every field unmapped and is reported as a warning.
func (e *Engine) Fill(ctx context.Context, fields []model.FormField, user, project model.Record) *FillResult {
	res := &FillResult{
		Filled:     make(map[string]any),
		Confidence: make(map[string]float64),
		Missing:    []model.MissingField{},
	}

	mappings, warnings, err := e.mapper.Map(ctx, fields, user, project)
	if err != nil {
		zap.L().Warn("autofill: field mapping failed, filling nothing", zap.Error(err))
		res.Warnings = append(res.Warnings, "field mapping unavailable: "+err.Error())
		mappings = model.Mappings{}
	}
	res.Warnings = append(res.Warnings, warnings...)
	res.Mappings = mappings

	for _, f := range fields {
		fv := e.filler.Fill(ctx, f, mappings, user, project)
		if fv.Value != nil {
			res.Filled[f.FieldName] = fv.Value
			res.Confidence[f.FieldName] = fv.Confidence
			continue
		}
		if f.Required {
			res.Missing = append(res.Missing, model.MissingField{
				Field:    f.FieldName,
				Label:    f.DisplayName(),
				HelpText: f.HelpText,
			})
		}
	}

	res.Validation = e.validator.Validate(ctx, res.Filled, fields)
	res.ReadyToSubmit = len(res.Missing) == 0 && res.Validation.Valid
	e.metrics.ObserveFill(len(res.Filled), len(res.Missing))

	zap.L().Info("autofill: form filled",
		zap.Int("fields", len(fields)),
		zap.Int("filled", len(res.Filled)),
		zap.Int("missing", len(res.Missing)),
		zap.Bool("ready_to_submit", res.ReadyToSubmit),
	)
	return res
}
