package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"discover", "fill", "serve", "migrate", "rules", "jurisdictions", "forms"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "permit-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDiscoverCommand_Flags(t *testing.T) {
	for _, name := range []string{"address", "description", "type", "details-json"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "discover should have --%s flag", name)
	}
	addr := discoverCmd.Flags().Lookup("address")
	require.NotNil(t, addr)
	assert.Equal(t, []string{"true"}, addr.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestFillCommand_Flags(t *testing.T) {
	for _, name := range []string{"form-json", "user-json", "project-json"} {
		assert.NotNil(t, fillCmd.Flags().Lookup(name), "fill should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRulesCommand_HasImport(t *testing.T) {
	require.Len(t, rulesCmd.Commands(), 1)
	assert.Equal(t, "import", rulesCmd.Commands()[0].Name())
	assert.NotNil(t, rulesImportCmd.Flags().Lookup("xlsx"))
	assert.NotNil(t, rulesImportCmd.Flags().Lookup("dir"))
}

func TestJurisdictionsLoadCommand_Flags(t *testing.T) {
	level := jurisdictionsLoadCmd.Flags().Lookup("level")
	require.NotNil(t, level)
	assert.Equal(t, "city", level.DefValue)
	for _, name := range []string{"shp", "state", "contact"} {
		assert.NotNil(t, jurisdictionsLoadCmd.Flags().Lookup(name), "jurisdictions load should have --%s flag", name)
	}
}

func TestFormsFieldsCommand_Flags(t *testing.T) {
	assert.NotNil(t, formsFieldsCmd.Flags().Lookup("file"))
	raw := formsFieldsCmd.Flags().Lookup("raw")
	require.NotNil(t, raw)
	assert.Equal(t, "false", raw.DefValue)
}
