package autofill

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/oracle"
)

// ErrTransformMalformed marks an oracle transform reply that is not a bare
// value.
var ErrTransformMalformed = eris.New("autofill: transform reply malformed")

// Transform is either a NamedTransform or an OracleTransform.
type Transform interface {
	transform()
}

// NamedTransform is one of the built-in deterministic transforms.
type NamedTransform struct {
	Name string
	fn   func(v any, field model.FormField) any
}

// OracleTransform is a free-form transform described in words and carried
// out by the oracle.
type OracleTransform struct {
	Description string
}

func (NamedTransform) transform()  {}
func (OracleTransform) transform() {}

// Apply runs the transform.
func (t NamedTransform) Apply(v any, field model.FormField) any {
	return t.fn(v, field)
}

var (
	upper   = cases.Upper(language.Und)
	lower   = cases.Lower(language.Und)
	printer = message.NewPrinter(language.English)
)

var registry = map[string]func(any, model.FormField) any{
	"uppercase":       func(v any, _ model.FormField) any { return mapString(v, upper.String) },
	"lowercase":       func(v any, _ model.FormField) any { return mapString(v, lower.String) },
	"format_phone":    func(v any, _ model.FormField) any { return FormatPhone(v) },
	"format_date":     func(v any, f model.FormField) any { return FormatDate(v, f.DateFormat) },
	"format_currency": func(v any, _ model.FormField) any { return FormatCurrency(v) },
}

// ParseTransform resolves a transform name. Registry names match after
// trimming, ignoring case; anything else is an OracleTransform.
func ParseTransform(name string) Transform {
	key := strings.ToLower(strings.TrimSpace(name))
	if fn, ok := registry[key]; ok {
		return NamedTransform{Name: key, fn: fn}
	}
	return OracleTransform{Description: strings.TrimSpace(name)}
}

// noTransform lists the names the oracle uses to say nothing is needed.
var noTransform = map[string]bool{"": true, "none": true, "null": true, "n/a": true, "identity": true}

// IsNoop reports whether name asks for no transformation.
func IsNoop(name string) bool {
	return noTransform[strings.ToLower(strings.TrimSpace(name))]
}

func mapString(v any, fn func(string) string) any {
	if isEmpty(v) {
		return v
	}
	return fn(toString(v))
}

// FormatPhone renders ten-digit US numbers as (XXX) XXX-XXXX. An eleven
// digit number with a leading 1 is accepted; anything else is returned
// unchanged.
func FormatPhone(v any) any {
	if isEmpty(v) {
		return v
	}
	d := nonDigit.ReplaceAllString(toString(v), "")
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return v
	}
	return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:])
}

// FormatDate renders a date in format, which may use MM/DD/YYYY-style
// tokens or be a Go layout. The default is 01/02/2006. Unparseable input is
// returned unchanged.
func FormatDate(v any, format string) any {
	t, ok := parseDate(v, "")
	if !ok {
		return v
	}
	if format == "" {
		format = "01/02/2006"
	}
	return t.Format(goLayout(format))
}

// FormatCurrency renders a number or numeric string as $1,234.50. Nil stays
// nil; non-numeric input is returned unchanged.
func FormatCurrency(v any) any {
	if isEmpty(v) {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return v
	}
	if f < 0 {
		return "-$" + printer.Sprintf("%.2f", -f)
	}
	return "$" + printer.Sprintf("%.2f", f)
}

const transformPrompt = `Transform this value: %s
To meet this requirement: %s
For field: %s
Field type: %s

Return only the transformed value, nothing else.`

var preamble = regexp.MustCompile(`(?i)^(here is|here's|sure[,.!:]|answer:|transformed value:|the transformed value)`)

// Transformer applies named transforms locally and oracle transforms through
// the oracle.
type Transformer struct {
	client oracle.Client
}

// NewTransformer creates a Transformer. A nil client makes oracle
// transforms fail with oracle.ErrUnavailable.
func NewTransformer(client oracle.Client) *Transformer {
	return &Transformer{client: client}
}

// Transform applies the named transform to v. An empty or "none" name
// returns v unchanged.
func (t *Transformer) Transform(ctx context.Context, v any, name string, field model.FormField) (any, error) {
	if IsNoop(name) {
		return v, nil
	}
	switch tr := ParseTransform(name).(type) {
	case NamedTransform:
		return tr.Apply(v, field), nil
	case OracleTransform:
		return t.viaOracle(ctx, v, tr, field)
	}
	return v, nil
}

func (t *Transformer) viaOracle(ctx context.Context, v any, tr OracleTransform, field model.FormField) (any, error) {
	if t.client == nil {
		return nil, oracle.Unavailable("none", eris.New("no oracle configured"))
	}
	prompt := fmt.Sprintf(transformPrompt, toString(v), tr.Description, field.DisplayName(), field.FieldType)
	reply, err := t.client.Generate(ctx, prompt, oracle.FormatText)
	if err != nil {
		return nil, eris.Wrapf(err, "autofill: transform %q", tr.Description)
	}
	out := strings.TrimSpace(reply)
	if err := checkBareValue(out, field); err != nil {
		return nil, err
	}
	return out, nil
}

// checkBareValue rejects oracle replies that wrap the value in anything
// beyond whitespace. Address fields may span lines; other fields may not.
func checkBareValue(s string, field model.FormField) error {
	switch {
	case strings.Contains(s, "```"):
		return eris.Wrap(ErrTransformMalformed, "code fence")
	case field.FieldType != model.FieldAddress && strings.ContainsAny(s, "\r\n"):
		return eris.Wrap(ErrTransformMalformed, "multiple lines")
	case len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\''):
		return eris.Wrap(ErrTransformMalformed, "quoted")
	case preamble.MatchString(s):
		return eris.Wrap(ErrTransformMalformed, "preamble")
	}
	return nil
}
