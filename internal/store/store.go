// Package store persists rule tables, regulatory text, fee schedules, form
// templates, jurisdiction boundaries and the run log. PostgresStore is the
// production backend; SQLiteStore serves the CLI and tests.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/model"
)

// ErrNotFound is returned by lookups that address a row by id.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for permit discovery and fill.
// Lookups that may legitimately find nothing (form templates, fee
// schedules, jurisdictions) return nil with a nil error.
type Store interface {
	// Rules
	ListRules(ctx context.Context, jurisdictionID string) ([]model.Rule, error)
	UpsertRules(ctx context.Context, rules []model.Rule) (int64, error)

	// Regulatory text
	SearchRegulations(ctx context.Context, jurisdictionID, query string, limit int) ([]model.RegulatorySnippet, error)
	UpsertRegulations(ctx context.Context, snippets []model.RegulatorySnippet) (int64, error)

	// Form templates
	GetFormTemplate(ctx context.Context, jurisdictionID, permitType string, maxAge time.Duration) (*model.FormTemplate, error)
	PutFormTemplate(ctx context.Context, tmpl *model.FormTemplate) error

	// Fees
	FeeSchedule(ctx context.Context, jurisdictionID, permitType string) (*model.FeeSchedule, error)
	UpsertFees(ctx context.Context, fees []model.FeeSchedule) (int64, error)

	// Jurisdictions
	LocateJurisdiction(ctx context.Context, lat, lng float64) (*model.Authority, error)
	UpsertJurisdiction(ctx context.Context, b model.Boundary) error

	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, input any) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result any, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Open connects to the backend named by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite", "":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// runOutcome derives the terminal status and error text of a run.
func runOutcome(runErr error) (model.RunStatus, string) {
	if runErr != nil {
		return model.RunStatusFailed, runErr.Error()
	}
	return model.RunStatusComplete, ""
}

func marshalJSON(v any, what string) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", what)
	}
	return data, nil
}

func stringList(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal string list")
	}
	return out, nil
}

// rankSnippets keeps snippets that share at least one term with query,
// ordered by the number of matching terms and then by code. An empty query
// keeps everything in code order.
func rankSnippets(snips []model.RegulatorySnippet, query string, limit int) []model.RegulatorySnippet {
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		s     model.RegulatorySnippet
		score int
	}
	var hits []scored
	for _, s := range snips {
		hay := strings.ToLower(s.Code + " " + s.Title + " " + s.Text)
		n := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				n++
			}
		}
		if len(terms) > 0 && n == 0 {
			continue
		}
		hits = append(hits, scored{s, n})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].s.Code < hits[j].s.Code
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]model.RegulatorySnippet, len(hits))
	for i, h := range hits {
		out[i] = h.s
	}
	return out
}
