package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/model"
)

const austinTable = `
jurisdiction_id: austin-tx
name: City of Austin Development Services
level: city
state: TX
contact: permits@austintexas.gov
form_url: https://www.austintexas.gov/permits
rules:
  - permit_type: building
    permit_name: Residential Building Permit
    condition: in(scope, "addition", "new_construction")
    description: Additions require a building permit.
    triggers: [addition]
    inspections: [foundation, framing, final]
  - permit_type: electrical
    permit_name: Electrical Permit
    condition: has(work_types, "electrical")
    form_url: https://www.austintexas.gov/electrical.pdf
  - permit_type: sign
    condition: category == "commercial"
    active: false
regulations:
  - code: "25-11-31"
    title: Building permit required
    text: A building permit is required to erect or enlarge a structure.
fees:
  - permit_type: building
    form_id: BP-100
    base_fee: 150
    per_sqft: 0.5
    min_processing_days: 10
    max_processing_days: 15
`

func writeTable(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestParseTable(t *testing.T) {
	tbl, rs, err := ParseTable([]byte(austinTable))
	require.NoError(t, err)

	assert.Equal(t, "austin-tx", tbl.JurisdictionID)
	assert.Equal(t, model.LevelCity, tbl.Level)
	auth := tbl.Authority()
	assert.Equal(t, "City of Austin Development Services", auth.Name)
	assert.Equal(t, "https://www.austintexas.gov/permits", auth.FormURL)

	require.Len(t, rs, 3)
	assert.Equal(t, "austin-tx", rs[0].JurisdictionID)
	assert.False(t, rs[0].Disabled)
	assert.Equal(t, []string{"foundation", "framing", "final"}, rs[0].Inspections)
	assert.Equal(t, "https://www.austintexas.gov/electrical.pdf", rs[1].FormURL)
	assert.True(t, rs[2].Disabled)

	require.Len(t, tbl.Regulations, 1)
	assert.Equal(t, "austin-tx", tbl.Regulations[0].JurisdictionID)
	require.Len(t, tbl.Fees, 1)
	assert.Equal(t, "austin-tx", tbl.Fees[0].JurisdictionID)
	assert.Equal(t, 10, tbl.Fees[0].MinProcessingDays)
}

func TestParseTable_Errors(t *testing.T) {
	_, _, err := ParseTable([]byte("rules: ["))
	assert.Error(t, err)

	_, _, err = ParseTable([]byte("name: nobody\n"))
	assert.ErrorContains(t, err, "no jurisdiction_id")

	_, _, err = ParseTable([]byte("jurisdiction_id: x\nrules:\n  - condition: \"true\"\n"))
	assert.ErrorContains(t, err, "no permit_type")
}

func TestParseTable_BadConditionKept(t *testing.T) {
	_, rs, err := ParseTable([]byte("jurisdiction_id: x\nrules:\n  - permit_type: a\n    condition: \"scope ==\"\n"))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Empty(t, Match(model.ProjectClassification{Scope: model.ScopeRepair}, rs))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "austin.yaml", austinTable)
	writeTable(t, dir, "travis.yml", "jurisdiction_id: travis-county-tx\nlevel: county\n")
	writeTable(t, dir, "README.md", "not a table")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.yaml"), 0o755))

	snap, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"austin-tx", "travis-county-tx"}, snap.Jurisdictions())
	assert.Len(t, snap.Rules("austin-tx"), 3)
	assert.Empty(t, snap.Rules("travis-county-tx"))
	assert.Len(t, snap.Regulations("austin-tx"), 1)
	assert.Len(t, snap.Fees("austin-tx"), 1)
	assert.Nil(t, snap.Fees("nowhere"))
	assert.Nil(t, snap.Regulations("nowhere"))

	tbl, ok := snap.Table("travis-county-tx")
	require.True(t, ok)
	assert.Equal(t, model.LevelCounty, tbl.Level)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestLoadDir_Duplicate(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "a.yaml", austinTable)
	writeTable(t, dir, "b.yaml", austinTable)

	_, err := LoadDir(dir)
	assert.ErrorContains(t, err, "defined twice")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSnapshot_Nil(t *testing.T) {
	var s *Snapshot
	assert.Nil(t, s.Rules("x"))
	assert.Nil(t, s.Regulations("x"))
	assert.Nil(t, s.Fees("x"))
	assert.Nil(t, s.Jurisdictions())
	assert.Empty(t, s.FormURL("x", "building"))
	_, ok := s.Table("x")
	assert.False(t, ok)
}

func TestSnapshot_FormURL(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "austin.yaml", austinTable)
	snap, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://www.austintexas.gov/electrical.pdf", snap.FormURL("austin-tx", "electrical"))
	assert.Equal(t, "https://www.austintexas.gov/permits", snap.FormURL("austin-tx", "building"))
	assert.Equal(t, "https://www.austintexas.gov/permits", snap.FormURL("austin-tx", "fence"))
	assert.Empty(t, snap.FormURL("dallas-tx", "building"))
}
