package forms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/model"
)

const permitFormHTML = `<!doctype html>
<html><body>
<form action="/apply" method="post">
  <input type="hidden" name="csrf" value="abc">
  <label for="owner">Owner Name *</label>
  <input id="owner" name="owner_name" type="text" maxlength="80">

  <label>Owner Email <input name="owner_email" type="email" required></label>

  <input name="owner_phone" type="tel" aria-label="Daytime phone" pattern="\d{10}">
  <input name="parcel_id" placeholder="Parcel ID (required)">

  <label for="start">Start date:</label>
  <input id="start" name="start_date" type="date">

  <select name="work_class" id="wc" required>
    <option value="">-- choose --</option>
    <option value="res">Residential</option>
    <option value="com">Commercial</option>
  </select>
  <label for="wc">Work class</label>

  <fieldset>
    <legend>Includes electrical work?</legend>
    <input type="radio" id="e-yes" name="electrical" value="yes"><label for="e-yes">Yes</label>
    <input type="radio" id="e-no" name="electrical" value="no"><label for="e-no">No</label>
  </fieldset>

  <label><input type="checkbox" name="agree"> I certify this application is accurate</label>

  <textarea name="scope_of_work" title="Describe all proposed work"></textarea>
  <input type="text">
  <input type="submit" value="Apply">
  <button type="button">Cancel</button>
</form>
</body></html>`

func extractHTML(t *testing.T, doc string) []RawField {
	t.Helper()
	fields, err := HTMLExtractor{}.ExtractFields(context.Background(), &RawForm{Kind: model.FormKindHTML, Content: []byte(doc)})
	require.NoError(t, err)
	return fields
}

func TestHTMLExtractor_Fields(t *testing.T) {
	fields := extractHTML(t, permitFormHTML)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{
		"owner_name", "owner_email", "owner_phone", "parcel_id", "start_date",
		"work_class", "electrical", "agree", "scope_of_work",
	}, names)

	byName := make(map[string]RawField)
	for _, f := range fields {
		byName[f.Name] = f
	}

	owner := byName["owner_name"]
	assert.Equal(t, "Owner Name", owner.Label)
	assert.True(t, owner.Required)
	assert.Equal(t, 80, owner.MaxLength)
	assert.Equal(t, "text", owner.Type)

	email := byName["owner_email"]
	assert.Equal(t, "Owner Email", email.Label)
	assert.Equal(t, "email", email.Type)
	assert.True(t, email.Required)

	phone := byName["owner_phone"]
	assert.Equal(t, "Daytime phone", phone.Label)
	assert.Equal(t, `\d{10}`, phone.Pattern)
	assert.False(t, phone.Required)

	parcel := byName["parcel_id"]
	assert.Equal(t, "Parcel ID", parcel.Label)
	assert.True(t, parcel.Required)
	assert.Equal(t, "Parcel ID (required)", parcel.Placeholder)

	assert.Equal(t, "Start date", byName["start_date"].Label)
	assert.Equal(t, "date", byName["start_date"].Type)

	wc := byName["work_class"]
	assert.Equal(t, "select", wc.Type)
	assert.Equal(t, "Work class", wc.Label)
	assert.Equal(t, []string{"Residential", "Commercial"}, wc.Options)
	assert.True(t, wc.Required)

	elec := byName["electrical"]
	assert.Equal(t, "radio", elec.Type)
	assert.Equal(t, "Includes electrical work?", elec.Label)
	assert.Equal(t, []string{"Yes", "No"}, elec.Options)

	agree := byName["agree"]
	assert.Equal(t, "checkbox", agree.Type)
	assert.Equal(t, "I certify this application is accurate", agree.Label)
	assert.Empty(t, agree.Options)

	scope := byName["scope_of_work"]
	assert.Equal(t, "textarea", scope.Type)
	assert.Equal(t, "Describe all proposed work", scope.Label)
	assert.Empty(t, scope.HelpText)
}

func TestHTMLExtractor_NameFallsBackToID(t *testing.T) {
	fields := extractHTML(t, `<input id="contractor_license">`)
	require.Len(t, fields, 1)
	assert.Equal(t, "contractor_license", fields[0].Name)
	assert.Equal(t, "Contractor License", fields[0].Label)
}

func TestHTMLExtractor_NoControls(t *testing.T) {
	assert.Empty(t, extractHTML(t, `<p>Download the <a href="app.pdf">application</a>.</p>`))
}

func TestScanPage(t *testing.T) {
	links := scanPage([]byte(`<p><a href="/docs/guide.txt">Guide</a> <a href="forms/Building%20App.PDF">Form</a> <a href="other.pdf">x</a></p>`),
		"https://austin.example.gov/permits/building")
	assert.False(t, links.hasInputs)
	assert.Equal(t, "https://austin.example.gov/permits/forms/Building%20App.PDF", links.pdf)

	links = scanPage([]byte(permitFormHTML), "https://austin.example.gov/")
	assert.True(t, links.hasInputs)
	assert.Empty(t, links.pdf)
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		starred bool
	}{
		{"Owner Name:", "Owner Name", false},
		{" Owner  Name * ", "Owner Name", true},
		{"Parcel ID (Required):", "Parcel ID", true},
		{"*Valuation", "Valuation", true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, starred := cleanLabel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.starred, starred, tt.in)
	}
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Owner Name", humanize("owner_name"))
	assert.Equal(t, "Applicant Address City", humanize("applicant[address].city"))
}
