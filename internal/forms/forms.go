// Package forms fetches permit application forms and recovers their field
// structure. Raw fields come from an extractor chosen by the form's kind; an
// oracle pass then types them and attaches validation and data sources.
package forms

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/ocr"
	"github.com/sells-group/permit-cli/internal/oracle"
)

var (
	// ErrNoFormURL means neither the rule table nor the authority names a form.
	ErrNoFormURL = eris.New("forms: no form url")
	// ErrNoText means a document carried no recoverable text.
	ErrNoText = eris.New("forms: no extractable text")
	// ErrUnsupportedContent means the fetched document is not a form we can read.
	ErrUnsupportedContent = eris.New("forms: unsupported content")
)

// RawForm is a fetched form document before field extraction.
type RawForm struct {
	URL         string
	Kind        model.FormKind
	Content     []byte
	ContentType string
	PDFURL      string
	PortalURL   string
}

// RawField is a field as it appears in the source document.
type RawField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	MaxLength   int      `json:"max_length,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	HelpText    string   `json:"help_text,omitempty"`
}

// Scraper fetches the application form for a permit.
type Scraper interface {
	Scrape(ctx context.Context, permit model.CandidatePermit, authority model.Authority) (*RawForm, error)
}

// Extractor recovers raw fields from a fetched form.
type Extractor interface {
	ExtractFields(ctx context.Context, raw *RawForm) ([]RawField, error)
}

// Enhancer turns raw fields into typed form fields.
type Enhancer interface {
	Enhance(ctx context.Context, raw []RawField) ([]model.FormField, error)
}

// Parser dispatches a RawForm to the extractor for its kind and enhances the
// result.
type Parser struct {
	HTML     Extractor
	PDF      Extractor
	Scanned  Extractor
	Enhancer Enhancer
}

// NewParser wires the default extractors. text may be nil, in which case
// scanned forms fail with ErrNoText.
func NewParser(client oracle.Client, text ocr.Extractor) *Parser {
	return &Parser{
		HTML:     HTMLExtractor{},
		PDF:      PDFExtractor{},
		Scanned:  NewScannedExtractor(client, text),
		Enhancer: NewOracleEnhancer(client),
	}
}

// Parse extracts and enhances the fields of raw. A PDF without a text layer
// is re-read as a scanned form and raw.Kind is updated. When the enhancer
// fails, fields are derived from the raw attributes alone.
func (p *Parser) Parse(ctx context.Context, raw *RawForm) ([]model.FormField, error) {
	fields, err := p.Extract(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return []model.FormField{}, nil
	}
	if p.Enhancer == nil {
		return BasicFields(fields), nil
	}

	out, err := p.Enhancer.Enhance(ctx, fields)
	if err != nil {
		zap.L().Warn("forms: enhancement failed, using raw field attributes",
			zap.String("url", raw.URL),
			zap.Int("fields", len(fields)),
			zap.Error(err),
		)
		return BasicFields(fields), nil
	}
	return out, nil
}

// Extract returns the raw fields of a form without enhancement.
func (p *Parser) Extract(ctx context.Context, raw *RawForm) ([]RawField, error) {
	ext, err := p.extractorFor(raw.Kind)
	if err != nil {
		return nil, err
	}

	fields, err := ext.ExtractFields(ctx, raw)
	if eris.Is(err, ErrNoText) && raw.Kind == model.FormKindPDF && p.Scanned != nil {
		zap.L().Info("forms: pdf has no text layer, reading as scanned", zap.String("url", raw.URL))
		raw.Kind = model.FormKindScanned
		fields, err = p.Scanned.ExtractFields(ctx, raw)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "forms: extract %s", raw.Kind)
	}
	return fields, nil
}

func (p *Parser) extractorFor(kind model.FormKind) (Extractor, error) {
	var ext Extractor
	switch kind {
	case model.FormKindHTML:
		ext = p.HTML
	case model.FormKindPDF:
		ext = p.PDF
	case model.FormKindScanned:
		ext = p.Scanned
	}
	if ext == nil {
		return nil, eris.Wrapf(ErrUnsupportedContent, "forms: no extractor for kind %q", kind)
	}
	return ext, nil
}

// BasicFields converts raw fields to form fields using only what the source
// document declared.
func BasicFields(raw []RawField) []model.FormField {
	out := make([]model.FormField, 0, len(raw))
	for _, r := range raw {
		out = append(out, basicField(r))
	}
	return out
}

func basicField(r RawField) model.FormField {
	f := model.FormField{
		FieldName: r.Name,
		FieldType: rawFieldType(r.Type),
		Label:     r.Label,
		Required:  r.Required,
		HelpText:  r.HelpText,
	}
	if f.HelpText == "" {
		f.HelpText = r.Placeholder
	}
	if r.Required {
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "required"})
	}
	if r.Pattern != "" {
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "pattern", Param: r.Pattern})
	}
	if r.MaxLength > 0 {
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "maxLength", Param: strconv.Itoa(r.MaxLength)})
	}
	switch strings.ToLower(r.Type) {
	case "email":
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "email"})
	case "tel", "phone":
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "phone"})
	case "date":
		f.ValidationRules = append(f.ValidationRules, model.ValidationRule{Rule: "date"})
	}
	return f
}

// rawFieldType maps HTML input types and extractor guesses onto FieldType.
func rawFieldType(t string) model.FieldType {
	switch strings.ToLower(t) {
	case "", "select", "radio", "url", "search", "password":
		return model.FieldText
	case "datetime-local", "month":
		return model.FieldDate
	case "range":
		return model.FieldNumber
	}
	return model.NormalizeFieldType(strings.ToLower(t))
}
