package forms

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	checkboxLine = regexp.MustCompile(`^\s*(?:\[\s?\]|☐|□|\(\s\))\s*(.+)$`)
	// blankField matches "Label: ______" runs; several may share a line.
	blankField = regexp.MustCompile(`([^_:|]*?[A-Za-z][^_:|]*?)\s*:?\s*_{3,}`)
	// trailingColon matches a label line whose value is written below it.
	trailingColon = regexp.MustCompile(`^([A-Za-z][^:]{1,60}):\s*(\*|\(required\))?\s*$`)
	nonWord       = regexp.MustCompile(`[^a-z0-9]+`)
)

// FieldsFromText finds form fields in plain form text. It recognises
// "Label: ____" blanks, "[ ] Label" checkboxes and lines ending in a colon.
// A '*' or "(required)" marks a field required.
func FieldsFromText(text string) []RawField {
	var fields []RawField
	seen := make(map[string]int)
	add := func(label, typ string) {
		label, required := cleanLabel(label)
		if label == "" || len(label) > 80 {
			return
		}
		if typ == "" {
			typ = guessType(label)
		}
		name := fieldKey(label)
		if name == "" {
			return
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}
		fields = append(fields, RawField{Name: name, Type: typ, Label: label, Required: required})
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := checkboxLine.FindStringSubmatch(line); m != nil {
			add(m[1], "checkbox")
			continue
		}
		if ms := blankField.FindAllStringSubmatch(line, -1); ms != nil {
			for _, m := range ms {
				add(m[1], "")
			}
			continue
		}
		if m := trailingColon.FindStringSubmatch(line); m != nil {
			add(m[1]+m[2], "")
		}
	}
	return fields
}

func guessType(label string) string {
	l := " " + strings.Join(strings.Fields(nonWord.ReplaceAllString(strings.ToLower(label), " ")), " ") + " "
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(l, " "+w+" ") {
				return true
			}
		}
		return false
	}
	switch {
	case has("signature", "signed"):
		return "signature"
	case has("date", "dob"):
		return "date"
	case has("email", "e mail"):
		return "email"
	case has("phone", "telephone", "fax", "cell"):
		return "tel"
	case has("address"):
		return "address"
	case has("sq ft", "sqft", "square feet", "square footage", "valuation", "cost", "number of", "stories", "amount"):
		return "number"
	}
	return "text"
}

// fieldKey derives a snake_case field name from a label.
func fieldKey(label string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(label), "_"), "_")
}
