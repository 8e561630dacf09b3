package autofill

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

const mapPrompt = `Map permit form fields to the applicant's data.

Form fields:
%s

Available data paths. Sources must be one of these, exactly as written:
%s

Return a JSON object keyed by field_name. Omit fields with no plausible source.
{"<field_name>": {"source": "user.<key>... or project.<key>...", "transformation": "uppercase|lowercase|format_phone|format_date|format_currency|<describe>|none", "confidence": 0.0-1.0}}`

// Mapper builds field mappings with the oracle.
type Mapper struct {
	client oracle.Client
}

// NewMapper creates a Mapper.
func NewMapper(client oracle.Client) *Mapper {
	return &Mapper{client: client}
}

type promptField struct {
	FieldName  string          `json:"field_name"`
	Label      string          `json:"label"`
	FieldType  model.FieldType `json:"field_type"`
	HelpText   string          `json:"help_text,omitempty"`
	DataSource string          `json:"data_source,omitempty"`
	DateFormat string          `json:"date_format,omitempty"`
}

type rawMapping struct {
	Source         string `json:"source"`
	Transformation string `json:"transformation"`
	Confidence     any    `json:"confidence"`
}

// Map asks the oracle which data path feeds each field. It returns the
// mappings, warnings about entries that were dropped or clamped, and an
// error matching oracle.ErrUnavailable or oracle.ErrMalformed when the
// oracle call as a whole fails.
func (m *Mapper) Map(ctx context.Context, fields []model.FormField, user, project model.Record) (model.Mappings, []string, error) {
	if len(fields) == 0 {
		return model.Mappings{}, nil, nil
	}
	if m.client == nil {
		return nil, nil, oracle.Unavailable("none", eris.New("no oracle configured"))
	}

	prompt, err := buildMapPrompt(fields, user, project)
	if err != nil {
		return nil, nil, err
	}
	text, err := m.client.Generate(ctx, prompt, oracle.FormatStructured)
	if err != nil {
		return nil, nil, eris.Wrap(err, "autofill: map fields")
	}

	var raw map[string]rawMapping
	if err := oracle.DecodeObject(text, &raw); err != nil {
		return nil, nil, eris.Wrap(err, "autofill: parse field mappings")
	}

	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.FieldName] = true
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(model.Mappings, len(raw))
	var warnings []string
	for _, name := range names {
		rm := raw[name]
		if !known[name] {
			warnings = append(warnings, fmt.Sprintf("mapping for unknown field %q dropped", name))
			continue
		}
		src := strings.TrimSpace(rm.Source)
		if src == "" || IsNoop(src) {
			continue
		}
		if _, err := ParsePath(src); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: unusable source %q dropped", name, src))
			continue
		}

		conf, warn := clampConfidence(rm.Confidence)
		if warn != "" {
			warnings = append(warnings, name+": "+warn)
		}
		transform := strings.TrimSpace(rm.Transformation)
		if IsNoop(transform) {
			transform = ""
		}
		out[name] = model.FieldMapping{Source: src, Transform: transform, Confidence: conf}
	}
	return out, warnings, nil
}

// clampConfidence coerces a confidence into [0,1]. The warning is empty when
// no coercion was needed.
func clampConfidence(v any) (float64, string) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Sprintf("confidence %q is not a number, using 0", x)
		}
		f = p
	case nil:
		return 0, "confidence missing, using 0"
	default:
		return 0, fmt.Sprintf("confidence %v is not a number, using 0", x)
	}

	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, fmt.Sprintf("confidence %v is not finite, using 0", f)
	case f < 0:
		return 0, fmt.Sprintf("confidence %v clamped to 0", f)
	case f > 1:
		return 1, fmt.Sprintf("confidence %v clamped to 1", f)
	}
	return f, ""
}

func buildMapPrompt(fields []model.FormField, user, project model.Record) (string, error) {
	pf := make([]promptField, len(fields))
	for i, f := range fields {
		pf[i] = promptField{
			FieldName:  f.FieldName,
			Label:      f.Label,
			FieldType:  f.FieldType,
			HelpText:   f.HelpText,
			DataSource: f.DataSource,
			DateFormat: f.DateFormat,
		}
	}
	fj, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "autofill: marshal fields")
	}

	var b strings.Builder
	for _, rec := range []struct {
		ns  string
		rec model.Record
	}{{NamespaceUser, user}, {NamespaceProject, project}} {
		for _, p := range LeafPaths(rec.ns, rec.rec) {
			v, _ := Extract(p, user, project)
			fmt.Fprintf(&b, "%s = %s\n", p, preview(v))
		}
	}
	paths := b.String()
	if paths == "" {
		paths = "(no data available)\n"
	}
	return fmt.Sprintf(mapPrompt, fj, strings.TrimRight(paths, "\n")), nil
}

// preview renders a value for the prompt, truncated.
func preview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	s := string(b)
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}
