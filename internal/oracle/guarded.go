package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/permit-cli/internal/metrics"
	"github.com/sells-group/permit-cli/internal/resilience"
)

// Guarded decorates a Client with a rate limit, per-attempt timeout, retries
// and a circuit breaker. Every failure it returns matches ErrUnavailable.
type Guarded struct {
	next     Client
	provider string
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// GuardOption configures a Guarded client.
type GuardOption func(*Guarded)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) { g.timeout = d }
}

// WithRateLimit caps attempts per second. Zero or negative means unlimited.
func WithRateLimit(perSec float64) GuardOption {
	return func(g *Guarded) {
		if perSec > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithPolicy sets the retry and breaker policy.
func WithPolicy(p resilience.Policy) GuardOption {
	return func(g *Guarded) {
		g.retry = p.Retry
		g.breaker = resilience.NewBreaker(p.Breaker)
	}
}

// WithMetrics records call outcomes.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guarded) { g.metrics = m }
}

// NewGuarded wraps next.
func NewGuarded(next Client, provider string, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:     next,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = resilience.NewBreaker(resilience.BreakerConfig{Name: provider})
	}
	return g
}

// Generate implements Client.
func (g *Guarded) Generate(ctx context.Context, prompt string, format Format) (string, error) {
	start := time.Now()
	text, err := resilience.Guard(ctx, g.breaker, g.retry, func(ctx context.Context) (string, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.next.Generate(ctx, prompt, format)
	})

	outcome := "ok"
	if err != nil {
		outcome = "unavailable"
		err = Unavailable(g.provider, err)
		zap.L().Warn("oracle: call failed",
			zap.String("provider", g.provider),
			zap.Stringer("format", format),
			zap.Stringer("breaker", g.breaker.State()),
			zap.Error(err),
		)
	}
	g.metrics.ObserveOracle(g.provider, outcome, time.Since(start))
	return text, err
}
