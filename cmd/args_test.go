package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/model"
)

func TestDecodeJSONArg_Inline(t *testing.T) {
	var details map[string]any
	require.NoError(t, decodeJSONArg("details-json", ` {"square_footage": "1,200", "stories": 2}`, &details))
	assert.Equal(t, "1,200", details["square_footage"])
	assert.Equal(t, 2.0, details["stories"])
}

func TestDecodeJSONArg_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"field_name": "owner_name", "required": true}]`), 0o644))

	var fields []model.FormField
	require.NoError(t, decodeJSONArg("form-json", path, &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "owner_name", fields[0].FieldName)
	assert.True(t, fields[0].Required)
}

func TestDecodeJSONArg_Empty(t *testing.T) {
	rec := model.Record{"keep": true}
	require.NoError(t, decodeJSONArg("user-json", "  ", &rec))
	assert.Equal(t, model.Record{"keep": true}, rec)
}

func TestDecodeJSONArg_Errors(t *testing.T) {
	var v map[string]any
	err := decodeJSONArg("user-json", filepath.Join(t.TempDir(), "missing.json"), &v)
	assert.ErrorContains(t, err, "read --user-json")

	err = decodeJSONArg("user-json", `{"name": `, &v)
	assert.ErrorContains(t, err, "decode --user-json")
}

func TestFillRequest(t *testing.T) {
	fillForm = `[{"field_name": "owner_name"}]`
	fillUser = `{"name": "Jane Smith"}`
	fillProject = ""
	t.Cleanup(func() { fillForm, fillUser, fillProject = "", "", "" })

	req, err := fillRequest()
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", req.User["name"])
	assert.Equal(t, model.Record{}, req.Project)

	fillForm = `[]`
	_, err = fillRequest()
	assert.ErrorContains(t, err, "no fields")
}
