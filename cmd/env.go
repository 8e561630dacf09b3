package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/autofill"
	"github.com/sells-group/permit-cli/internal/discovery"
	"github.com/sells-group/permit-cli/internal/forms"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/ocr"
	"github.com/sells-group/permit-cli/internal/oracle"
	"github.com/sells-group/permit-cli/internal/rules"
	"github.com/sells-group/permit-cli/internal/store"
	"github.com/sells-group/permit-cli/pkg/geocode"
)

// appEnv holds the initialized store, clients and engines needed by the
// discover/fill/serve commands.
type appEnv struct {
	Store     store.Store
	Metrics   *metrics.Metrics
	Oracle    oracle.Client
	Parser    *forms.Parser
	Discovery *discovery.Engine
	Filler    *autofill.Engine

	watcher  *rules.Watcher // nil unless rules.watch is set
	snapshot *rules.Snapshot
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Rules returns the current rule snapshot, which may be nil.
func (e *appEnv) Rules() *rules.Snapshot {
	if e.watcher != nil {
		return e.watcher.Snapshot()
	}
	return e.snapshot
}

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initOracle builds the configured provider and the form parser around it.
func initOracle(ctx context.Context, m *metrics.Metrics) (oracle.Client, *forms.Parser, error) {
	client, err := oracle.FromConfig(ctx, cfg, m)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init oracle")
	}
	text, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, nil, eris.Wrap(err, "init ocr")
	}
	return client, forms.NewParser(client, text), nil
}

// loadRules reads the rule tables. A missing directory is not an error:
// discovery then relies on the store and the oracle.
func (e *appEnv) loadRules(ctx context.Context) error {
	if cfg.Rules.Dir == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Rules.Dir); os.IsNotExist(err) {
		zap.L().Warn("rules directory missing, using store only", zap.String("dir", cfg.Rules.Dir))
		return nil
	}
	if cfg.Rules.Watch {
		w, err := rules.NewWatcher(cfg.Rules.Dir)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		e.watcher = w
		return nil
	}

	snap, err := rules.LoadDir(cfg.Rules.Dir)
	if err != nil {
		return err
	}
	e.snapshot = snap
	return nil
}

// initEnv validates the config for mode and wires the discovery and fill
// engines. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{Metrics: metrics.New()}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st

	if err := env.loadRules(ctx); err != nil {
		env.Close()
		return nil, err
	}

	client, parser, err := initOracle(ctx, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Oracle = client
	env.Parser = parser

	geo := geocode.NewClient(
		geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey),
		geocode.WithRateLimit(cfg.Geocode.RatePerSec),
	)
	scraper := forms.NewHTTPScraper(forms.ScraperOptions{
		UserAgent: cfg.Forms.UserAgent,
		Resolve: func(jurisdictionID, permitType string) string {
			return env.Rules().FormURL(jurisdictionID, permitType)
		},
	})

	env.Discovery = discovery.New(discovery.Deps{
		Store:    st,
		Geocoder: geo,
		Oracle:   client,
		Scraper:  scraper,
		Parser:   parser,
		Rules:    env.Rules,
		Metrics:  env.Metrics,
	}, discovery.OptionsFromConfig(cfg.Forms))
	env.Filler = autofill.NewEngine(client, env.Metrics)

	return env, nil
}
