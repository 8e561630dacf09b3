package autofill

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/permit-cli/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	nonDigit     = regexp.MustCompile(`\D`)
)

// dateLayouts are the input layouts accepted for dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
}

// CheckField returns one message per failed check of value against the
// field's declared type and validation rules. A nil or empty value passes
// every check except an explicit required rule; required-ness is the
// caller's concern.
func CheckField(value any, field model.FormField) []string {
	if isEmpty(value) {
		for _, r := range field.ValidationRules {
			if r.Rule == "required" {
				return []string{ruleMessage(r)}
			}
		}
		return nil
	}

	var msgs []string
	if msg := checkType(value, field); msg != "" {
		msgs = append(msgs, msg)
	}
	for _, r := range field.ValidationRules {
		if !CheckRule(value, r, field) {
			msgs = append(msgs, ruleMessage(r))
		}
	}
	return msgs
}

func checkType(value any, field model.FormField) string {
	switch value.(type) {
	case map[string]any, model.Record, []any, []string:
		return "must be a single value"
	}
	switch field.FieldType {
	case model.FieldNumber:
		if _, ok := toFloat(value); !ok {
			return "must be a number"
		}
	case model.FieldCheckbox:
		if _, ok := toBool(value); !ok {
			return "must be checked or unchecked"
		}
	case model.FieldDate:
		if _, ok := parseDate(value, field.DateFormat); !ok {
			return "must be a valid date"
		}
	}
	return ""
}

// CheckRule reports whether value satisfies one validation rule. Unknown
// rule identifiers pass.
func CheckRule(value any, r model.ValidationRule, field model.FormField) bool {
	s := toString(value)
	switch r.Rule {
	case "required":
		return !isEmpty(value)
	case "pattern":
		re, err := regexp.Compile(r.Param)
		if err != nil {
			return true
		}
		return re.MatchString(s)
	case "minLength":
		n, err := strconv.Atoi(r.Param)
		return err != nil || utf8.RuneCountInString(s) >= n
	case "maxLength":
		n, err := strconv.Atoi(r.Param)
		return err != nil || utf8.RuneCountInString(s) <= n
	case "min", "max":
		limit, err := strconv.ParseFloat(r.Param, 64)
		if err != nil {
			return true
		}
		f, ok := toFloat(value)
		if !ok {
			return false
		}
		if r.Rule == "min" {
			return f >= limit
		}
		return f <= limit
	case "email":
		return emailPattern.MatchString(s)
	case "phone":
		d := nonDigit.ReplaceAllString(s, "")
		return len(d) == 10 || (len(d) == 11 && d[0] == '1')
	case "zip":
		return zipPattern.MatchString(strings.TrimSpace(s))
	case "date":
		_, ok := parseDate(value, field.DateFormat)
		return ok
	}
	return true
}

func ruleMessage(r model.ValidationRule) string {
	if r.Message != "" {
		return r.Message
	}
	switch r.Rule {
	case "required":
		return "is required"
	case "pattern":
		return "does not match the required format"
	case "minLength":
		return fmt.Sprintf("must be at least %s characters", r.Param)
	case "maxLength":
		return fmt.Sprintf("must be at most %s characters", r.Param)
	case "min":
		return "must be at least " + r.Param
	case "max":
		return "must be at most " + r.Param
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "zip":
		return "must be a valid ZIP code"
	case "date":
		return "must be a valid date"
	}
	return "is invalid"
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s := strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(x))
		var err error
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "x", "checked", "on", "1":
			return true, true
		case "false", "no", "n", "unchecked", "off", "0":
			return false, true
		}
	}
	return false, false
}

// parseDate accepts a time.Time or a string in the field's format or any of
// the common layouts.
func parseDate(v any, format string) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		layouts := dateLayouts
		if format != "" {
			layouts = append([]string{goLayout(format)}, dateLayouts...)
		}
		for _, l := range layouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// goLayout converts MM/DD/YYYY-style tokens into a Go layout. A format
// without such tokens is taken to be a Go layout already. Only letter runs
// made entirely of Y, M and D are tokens, so words like "Month" stay literal.
func goLayout(format string) string {
	if !strings.Contains(format, "YY") && !strings.Contains(format, "MM") && !strings.Contains(format, "DD") {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); {
		if !isASCIILetter(format[i]) {
			b.WriteByte(format[i])
			i++
			continue
		}
		j := i
		for j < len(format) && isASCIILetter(format[j]) {
			j++
		}
		run := format[i:j]
		if strings.Trim(run, "YMD") == "" {
			run = dateTokens.Replace(run)
		}
		b.WriteString(run)
		i = j
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var dateTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"DD", "02",
	"M", "1",
	"D", "2",
)
