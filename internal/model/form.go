package model

import "time"

// FieldType is the declared input type of a form field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldNumber    FieldType = "number"
	FieldDate      FieldType = "date"
	FieldAddress   FieldType = "address"
	FieldCheckbox  FieldType = "checkbox"
	FieldSignature FieldType = "signature"
	FieldOther     FieldType = "other"
)

// NormalizeFieldType maps free-form type names onto the closed FieldType set.
func NormalizeFieldType(s string) FieldType {
	switch FieldType(s) {
	case FieldText, FieldNumber, FieldDate, FieldAddress, FieldCheckbox, FieldSignature:
		return FieldType(s)
	}
	switch s {
	case "string", "textarea", "email", "tel", "phone":
		return FieldText
	case "int", "integer", "float", "currency":
		return FieldNumber
	case "bool", "boolean":
		return FieldCheckbox
	}
	return FieldOther
}

// ValidationRule is a single per-field check. Rule is one of the canonical
// identifiers: required, pattern, minLength, maxLength, min, max, email,
// phone, zip, date.
type ValidationRule struct {
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// FormField describes one field of a permit form. FieldName is the natural
// key within a form.
type FormField struct {
	FieldName       string           `json:"field_name"`
	FieldType       FieldType        `json:"field_type"`
	Label           string           `json:"label"`
	Required        bool             `json:"required"`
	ValidationRules []ValidationRule `json:"validation_rules,omitempty"`
	HelpText        string           `json:"help_text,omitempty"`
	AutoFillable    bool             `json:"auto_fillable"`
	DataSource      string           `json:"data_source,omitempty"`
	DateFormat      string           `json:"date_format,omitempty"`
}

// DisplayName returns the label, falling back to the field name.
func (f FormField) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.FieldName
}

// FieldMapping says which data path feeds a field, with an optional
// transform and a confidence in [0,1].
type FieldMapping struct {
	Source     string  `json:"source"`
	Transform  string  `json:"transformation,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Mappings is one mapping set per (form, data snapshot). It must be
// recomputed when the underlying records change.
type Mappings map[string]FieldMapping

// FilledValue is the outcome of filling one field. Value is nil precisely
// when no mapping exists or the mapping resolved to nothing usable.
type FilledValue struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// MissingField is a required field that could not be filled.
type MissingField struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	HelpText string `json:"help_text"`
}

// ValidationVerdict is the result of validating a filled form.
type ValidationVerdict struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewVerdict builds a verdict whose Valid flag is derived from errs.
func NewVerdict(errs, warnings []string) ValidationVerdict {
	if errs == nil {
		errs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ValidationVerdict{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// FormKind is the storage format of a scraped form.
type FormKind string

const (
	FormKindPDF     FormKind = "pdf"
	FormKindHTML    FormKind = "html"
	FormKindScanned FormKind = "scanned"
)

// FormTemplate is a cached permit form with its parsed field structure.
type FormTemplate struct {
	ID             string      `json:"id"`
	JurisdictionID string      `json:"jurisdiction_id"`
	PermitType     string      `json:"permit_type"`
	URL            string      `json:"url"`
	Kind           FormKind    `json:"kind"`
	Content        []byte      `json:"-"`
	PDFURL         string      `json:"pdf_url,omitempty"`
	PortalURL      string      `json:"online_portal_url,omitempty"`
	Fields         []FormField `json:"fields"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
