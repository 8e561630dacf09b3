package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

const enhancePrompt = `Analyze these permit application form fields and provide structured metadata:
%s

Return a JSON array with one element per input field, in the same order:
{"field_name": "the input name, unchanged", "field_type": "text|number|date|address|checkbox|signature", "label": "human readable label", "required": true|false, "validation_rules": [{"rule": "required|pattern|minLength|maxLength|min|max|email|phone|zip|date", "param": "rule argument or empty", "message": "what the applicant did wrong"}], "help_text": "explanation of what's needed", "auto_fillable": true|false, "data_source": "user_profile.<path>|project_details.<path>|calculated|manual", "date_format": "MM/DD/YYYY for date fields"}`

var knownRules = map[string]bool{
	"required": true, "pattern": true, "minLength": true, "maxLength": true,
	"min": true, "max": true, "email": true, "phone": true, "zip": true, "date": true,
}

// OracleEnhancer asks the oracle to type raw fields and describe how they
// are validated and filled.
type OracleEnhancer struct {
	client oracle.Client
	policy *bluemonday.Policy
}

// NewOracleEnhancer creates an OracleEnhancer.
func NewOracleEnhancer(client oracle.Client) *OracleEnhancer {
	return &OracleEnhancer{client: client, policy: bluemonday.StrictPolicy()}
}

type enhancedField struct {
	FieldName       string          `json:"field_name"`
	FieldType       string          `json:"field_type"`
	Label           string          `json:"label"`
	Required        bool            `json:"required"`
	ValidationRules json.RawMessage `json:"validation_rules"`
	HelpText        string          `json:"help_text"`
	AutoFillable    bool            `json:"auto_fillable"`
	DataSource      string          `json:"data_source"`
	DateFormat      string          `json:"date_format"`
}

// Enhance returns one FormField per raw field, in input order. A field the
// oracle skipped keeps its raw attributes; fields the oracle invented are
// dropped. Required flags from the document are never cleared.
func (e *OracleEnhancer) Enhance(ctx context.Context, raw []RawField) ([]model.FormField, error) {
	if len(raw) == 0 {
		return []model.FormField{}, nil
	}

	clean := e.Sanitize(raw)
	payload, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "forms: marshal raw fields")
	}

	reply, err := e.client.Generate(ctx, fmt.Sprintf(enhancePrompt, payload), oracle.FormatStructured)
	if err != nil {
		return nil, eris.Wrap(err, "forms: oracle enhance")
	}

	var enhanced []enhancedField
	if err := oracle.DecodeArray(reply, &enhanced); err != nil {
		return nil, eris.Wrap(err, "forms: parse oracle enhance")
	}

	byName := make(map[string]enhancedField, len(enhanced))
	for _, f := range enhanced {
		byName[strings.TrimSpace(f.FieldName)] = f
	}

	out := make([]model.FormField, 0, len(clean))
	for _, r := range clean {
		f, ok := byName[r.Name]
		if !ok {
			out = append(out, basicField(r))
			continue
		}
		delete(byName, r.Name)
		out = append(out, mergeField(r, f))
	}
	if len(byName) > 0 {
		zap.L().Debug("forms: dropped fields the form does not have", zap.Int("count", len(byName)))
	}
	return out, nil
}

// Sanitize strips markup from every free-text attribute so scraped HTML
// never reaches a prompt.
func (e *OracleEnhancer) Sanitize(raw []RawField) []RawField {
	strip := func(s string) string {
		return strings.Join(strings.Fields(html.UnescapeString(e.policy.Sanitize(s))), " ")
	}
	out := make([]RawField, len(raw))
	for i, r := range raw {
		r.Label = strip(r.Label)
		r.HelpText = strip(r.HelpText)
		r.Placeholder = strip(r.Placeholder)
		if r.Options != nil {
			opts := make([]string, len(r.Options))
			for j, o := range r.Options {
				opts[j] = strip(o)
			}
			r.Options = opts
		}
		out[i] = r
	}
	return out
}

func mergeField(r RawField, f enhancedField) model.FormField {
	base := basicField(r)
	out := model.FormField{
		FieldName:    r.Name,
		FieldType:    model.NormalizeFieldType(strings.ToLower(strings.TrimSpace(f.FieldType))),
		Label:        strings.TrimSpace(f.Label),
		Required:     f.Required || r.Required,
		HelpText:     strings.TrimSpace(f.HelpText),
		AutoFillable: f.AutoFillable,
		DataSource:   strings.TrimSpace(f.DataSource),
		DateFormat:   strings.TrimSpace(f.DateFormat),
	}
	if out.FieldType == model.FieldOther && base.FieldType != model.FieldOther {
		out.FieldType = base.FieldType
	}
	if out.Label == "" {
		out.Label = base.Label
	}
	if out.HelpText == "" {
		out.HelpText = base.HelpText
	}
	if out.DataSource == "manual" {
		out.AutoFillable = false
	}

	// Rules declared by the document come first; the oracle's are added
	// when they name a known rule not already present.
	out.ValidationRules = base.ValidationRules
	have := make(map[string]bool)
	for _, vr := range out.ValidationRules {
		have[vr.Rule] = true
	}
	for _, vr := range decodeRules(f.ValidationRules) {
		if !knownRules[vr.Rule] || have[vr.Rule] {
			continue
		}
		have[vr.Rule] = true
		out.ValidationRules = append(out.ValidationRules, vr)
	}
	if out.Required && !have["required"] {
		out.ValidationRules = append([]model.ValidationRule{{Rule: "required"}}, out.ValidationRules...)
	}
	return out
}

// decodeRules accepts rule objects or bare "rule" / "rule:param" strings.
func decodeRules(raw json.RawMessage) []model.ValidationRule {
	if len(raw) == 0 {
		return nil
	}
	var objs []model.ValidationRule
	if err := json.Unmarshal(raw, &objs); err == nil {
		for i := range objs {
			objs[i].Rule = strings.TrimSpace(objs[i].Rule)
		}
		return objs
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil
	}
	out := make([]model.ValidationRule, 0, len(strs))
	for _, s := range strs {
		rule, param, _ := strings.Cut(s, ":")
		out = append(out, model.ValidationRule{Rule: strings.TrimSpace(rule), Param: strings.TrimSpace(param)})
	}
	return out
}
