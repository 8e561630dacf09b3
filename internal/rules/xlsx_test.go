package rules

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Rules")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "rules.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

var xlsxHeader = []string{
	"Jurisdiction_ID", "permit_type", "permit_name", "condition",
	"description", "triggers", "inspections", "form_url", "active",
}

func TestImportXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		xlsxHeader,
		{"austin-tx", "building", "Building Permit", `scope == "addition"`, "Additions.", "addition; deck", "framing;final", "", ""},
		{"austin-tx", "", "blank row", "", "", "", "", "", ""},
		{"austin-tx", "sign", "Sign Permit", `category == "commercial"`, "", "", "", "https://example.gov/sign.pdf", "no"},
	})

	rs, err := ImportXLSX(path)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, "austin-tx", rs[0].JurisdictionID)
	assert.Equal(t, []string{"addition", "deck"}, rs[0].Triggers)
	assert.Equal(t, []string{"framing", "final"}, rs[0].Inspections)
	assert.False(t, rs[0].Disabled)

	assert.Equal(t, "https://example.gov/sign.pdf", rs[1].FormURL)
	assert.True(t, rs[1].Disabled)
	assert.Nil(t, rs[1].Triggers)
}

func TestImportXLSX_MissingColumn(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"jurisdiction_id", "permit_type"}})
	_, err := ImportXLSX(path)
	assert.ErrorContains(t, err, "missing column")
}

func TestImportXLSX_MissingJurisdiction(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		xlsxHeader[:7],
		{"", "building", "Building Permit", "true", "", "", ""},
	})
	_, err := ImportXLSX(path)
	assert.ErrorContains(t, err, "no jurisdiction_id")
}

func TestImportXLSX_NoFile(t *testing.T) {
	_, err := ImportXLSX(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func TestSplitListAndActive(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ;; b ;"))
	assert.True(t, parseActive(""))
	assert.True(t, parseActive("yes"))
	assert.False(t, parseActive("FALSE"))
	assert.False(t, parseActive("0"))
}
