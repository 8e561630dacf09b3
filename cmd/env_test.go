package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permit-cli/internal/config"
)

const austinTable = `
jurisdiction_id: austin-tx
name: City of Austin Development Services
level: city
form_url: https://www.austintexas.gov/permits
rules:
  - permit_type: building
    permit_name: Residential Building Permit
    condition: in(scope, "addition", "new_construction")
    inspections: [foundation, framing, final]
  - permit_type: electrical
    condition: has(work_types, "electrical")
    form_url: https://www.austintexas.gov/electrical.pdf
regulations:
  - code: "25-11-31"
    title: Building permit required
    text: A building permit is required to erect or enlarge a structure.
fees:
  - permit_type: building
    base_fee: 150
    min_processing_days: 10
    max_processing_days: 15
`

// testConfig points the global cfg at a temp SQLite file and an offline
// oracle configuration.
func testConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "permits.db"),
		},
		Anthropic: config.AnthropicConfig{Key: "test-key", Model: "claude-test", MaxTokens: 1024},
		Oracle:    config.OracleConfig{Provider: "anthropic", MaxAttempts: 1},
		Rules:     config.RulesConfig{Dir: filepath.Join(dir, "rules")},
		Forms:     config.FormsConfig{CacheMaxAgeDays: 30, FetchConcurrency: 2},
		OCR:       config.OCRConfig{Provider: "local", PdfToTextPath: "pdftotext"},
		Server:    config.ServerConfig{Port: 8080},
	}
}

func writeRulesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "austin.yaml"), []byte(austinTable), 0o644))
	return dir
}

func TestInitStore_SQLite(t *testing.T) {
	testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, err = os.Stat(cfg.Store.DatabaseURL)
	assert.NoError(t, err)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	testConfig(t)
	cfg.Store.Driver = "mysql"

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.ErrorContains(t, err, "unknown driver")
}

func TestAppEnv_Close_Nil(t *testing.T) {
	env := &appEnv{}
	assert.NotPanics(t, env.Close)
	assert.Nil(t, env.Rules())
}

func TestInitEnv(t *testing.T) {
	testConfig(t)
	cfg.Rules.Dir = writeRulesDir(t)

	env, err := initEnv(context.Background(), "discover")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Oracle)
	assert.NotNil(t, env.Parser)
	assert.NotNil(t, env.Discovery)
	assert.NotNil(t, env.Filler)
	assert.Len(t, env.Rules().Rules("austin-tx"), 2)
	assert.Equal(t, "https://www.austintexas.gov/electrical.pdf", env.Rules().FormURL("austin-tx", "electrical"))
}

func TestInitEnv_WatchRules(t *testing.T) {
	testConfig(t)
	cfg.Rules.Dir = writeRulesDir(t)
	cfg.Rules.Watch = true

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	require.NotNil(t, env.watcher)
	assert.Equal(t, []string{"austin-tx"}, env.Rules().Jurisdictions())
	env.Close()
}

func TestInitEnv_MissingRulesDir(t *testing.T) {
	testConfig(t)

	env, err := initEnv(context.Background(), "discover")
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Rules())
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	testConfig(t)
	cfg.Anthropic.Key = ""

	env, err := initEnv(context.Background(), "discover")
	assert.Nil(t, env)
	assert.ErrorContains(t, err, "anthropic.key is required")
}

func TestInitEnv_BadOCRProvider(t *testing.T) {
	testConfig(t)
	cfg.OCR.Provider = "tesseract"

	env, err := initEnv(context.Background(), "discover")
	assert.Nil(t, env)
	assert.ErrorContains(t, err, "init ocr")
}
