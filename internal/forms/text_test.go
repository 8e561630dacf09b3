package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buildingFormText = `CITY OF AUSTIN
RESIDENTIAL BUILDING PERMIT APPLICATION
Owner Name*: ____________________ Phone: ______________
Project Address: ____________________________
Email: ____________
Estimated Valuation ($): __________
Contractor License No.:
[ ] Deck
☐ Swimming pool
Owner Signature (required): ________________ Date: ________
Date: ________
Section 1
`

func TestFieldsFromText(t *testing.T) {
	fields := FieldsFromText(buildingFormText)

	want := []RawField{
		{Name: "owner_name", Type: "text", Label: "Owner Name", Required: true},
		{Name: "phone", Type: "tel", Label: "Phone"},
		{Name: "project_address", Type: "address", Label: "Project Address"},
		{Name: "email", Type: "email", Label: "Email"},
		{Name: "estimated_valuation", Type: "number", Label: "Estimated Valuation ($)"},
		{Name: "contractor_license_no", Type: "text", Label: "Contractor License No."},
		{Name: "deck", Type: "checkbox", Label: "Deck"},
		{Name: "swimming_pool", Type: "checkbox", Label: "Swimming pool"},
		{Name: "owner_signature", Type: "signature", Label: "Owner Signature", Required: true},
		{Name: "date", Type: "date", Label: "Date"},
		{Name: "date_2", Type: "date", Label: "Date"},
	}
	require.Len(t, fields, len(want))
	assert.Equal(t, want, fields)
}

func TestFieldsFromText_Empty(t *testing.T) {
	assert.Empty(t, FieldsFromText(""))
	assert.Empty(t, FieldsFromText("Just a paragraph of instructions.\nNo blanks here."))
}

func TestGuessType(t *testing.T) {
	tests := map[string]string{
		"Applicant Signature":  "signature",
		"Date of Application":  "date",
		"Update reason":        "text",
		"E-mail":               "email",
		"Cell":                 "tel",
		"Mailing Address":      "address",
		"Total sq ft":          "number",
		"Number of stories":    "number",
		"Owner Name":           "text",
		"Contractor Telephone": "tel",
	}
	for label, want := range tests {
		assert.Equal(t, want, guessType(label), label)
	}
}

func TestFieldKey(t *testing.T) {
	assert.Equal(t, "estimated_valuation", fieldKey("Estimated Valuation ($)"))
	assert.Equal(t, "owner_s_name", fieldKey("Owner's Name"))
	assert.Empty(t, fieldKey("$$$"))
}
