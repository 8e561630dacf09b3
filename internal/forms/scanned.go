package forms

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/ocr"
	"github.com/sells-group/permit-cli/internal/oracle"
)

// maxScanText bounds the OCR text sent in one prompt.
const maxScanText = 12000

const scannedPrompt = `The text below was recovered by OCR from a scanned building permit application form. OCR may have garbled characters, merged columns or lost underscores.

List every field an applicant must fill in. Return a JSON array. Each element:
{"name": "snake_case_identifier", "type": "text|number|date|address|checkbox|signature", "label": "label as printed", "required": true|false, "options": ["choices for checkbox groups"], "help_text": "printed instructions for the field"}

Form text:
%s`

// ScannedExtractor reads image-only forms: OCR recovers the text and the
// oracle identifies the fields in it. When the oracle fails, the text
// heuristics of FieldsFromText are used instead.
type ScannedExtractor struct {
	client oracle.Client
	text   ocr.Extractor
}

// NewScannedExtractor creates a ScannedExtractor.
func NewScannedExtractor(client oracle.Client, text ocr.Extractor) *ScannedExtractor {
	return &ScannedExtractor{client: client, text: text}
}

// ExtractFields implements Extractor.
func (s *ScannedExtractor) ExtractFields(ctx context.Context, raw *RawForm) ([]RawField, error) {
	if s.text == nil {
		return nil, eris.Wrap(ErrNoText, "forms: no ocr configured")
	}
	text, err := s.text.ExtractText(ctx, raw.Content, ocr.DetectMIME(raw.Content, raw.ContentType))
	if err != nil {
		return nil, eris.Wrap(err, "forms: ocr")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoText
	}

	fields, err := s.oracleFields(ctx, text)
	if err == nil {
		return fields, nil
	}

	fallback := FieldsFromText(text)
	if len(fallback) == 0 {
		return nil, err
	}
	zap.L().Warn("forms: oracle could not read scanned form, using text heuristics",
		zap.String("url", raw.URL),
		zap.Int("fields", len(fallback)),
		zap.Error(err),
	)
	return fallback, nil
}

func (s *ScannedExtractor) oracleFields(ctx context.Context, text string) ([]RawField, error) {
	if s.client == nil {
		return nil, eris.New("forms: no oracle configured")
	}
	reply, err := s.client.Generate(ctx, fmt.Sprintf(scannedPrompt, truncate(text, maxScanText)), oracle.FormatStructured)
	if err != nil {
		return nil, eris.Wrap(err, "forms: oracle scan")
	}

	var found []RawField
	if err := oracle.DecodeArray(reply, &found); err != nil {
		return nil, eris.Wrap(err, "forms: parse oracle scan")
	}

	out := make([]RawField, 0, len(found))
	seen := make(map[string]bool)
	for _, f := range found {
		label, starred := cleanLabel(f.Label)
		name := fieldKey(f.Name)
		if name == "" {
			name = fieldKey(label)
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		f.Name = name
		f.Label = label
		if f.Label == "" {
			f.Label = humanize(name)
		}
		f.Required = f.Required || starred
		if f.Type == "" {
			f.Type = guessType(label)
		}
		out = append(out, f)
	}
	return out, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
