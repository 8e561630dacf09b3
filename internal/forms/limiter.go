package forms

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// hostLimiter paces requests to one jurisdiction website. Each success raises
// the rate by 20% up to twice the initial rate; a 429 halves it, down to a
// quarter of the initial rate.
type hostLimiter struct {
	mu          sync.Mutex
	host        string
	limiter     *rate.Limiter
	initialRate rate.Limit
	currentRate rate.Limit
}

func newHostLimiter(host string, r rate.Limit, burst int) *hostLimiter {
	return &hostLimiter{
		host:        host,
		limiter:     rate.NewLimiter(r, burst),
		initialRate: r,
		currentRate: r,
	}
}

func (h *hostLimiter) Wait(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

func (h *hostLimiter) OnSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialRate == rate.Inf {
		return
	}
	h.set(min(h.currentRate*1.2, h.initialRate*2))
}

func (h *hostLimiter) OnRateLimit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialRate == rate.Inf {
		return
	}
	h.set(max(h.currentRate*0.5, h.initialRate/4))
	zap.L().Warn("forms: host rate limited, slowing down",
		zap.String("host", h.host),
		zap.Float64("new_rate", float64(h.currentRate)),
	)
}

func (h *hostLimiter) Limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentRate
}

func (h *hostLimiter) set(r rate.Limit) {
	h.currentRate = r
	h.limiter.SetLimit(r)
}
