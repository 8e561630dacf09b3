package oracle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permit-cli/internal/config"
	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/resilience"
	"github.com/sells-group/permit-cli/pkg/anthropic"
)

// FromConfig builds the configured provider wrapped in Guarded.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Client, error) {
	var (
		base Client
		name = cfg.Oracle.Provider
	)
	switch name {
	case "anthropic":
		base = NewAnthropicClient(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.Gemini.Key, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, eris.Errorf("oracle: unknown provider %q", name)
	}

	return NewGuarded(base, name,
		WithTimeout(time.Duration(cfg.Oracle.TimeoutSecs)*time.Second),
		WithRateLimit(cfg.Oracle.RatePerSec),
		WithPolicy(resilience.OraclePolicy(name, cfg.Oracle)),
		WithMetrics(m),
	), nil
}
