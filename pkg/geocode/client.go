// Package geocode resolves street addresses via the Census Geocoder
// (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/permit-cli/internal/resilience"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a one-line address. An address no provider can match
	// yields a Result with Success false and a nil error.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Success          bool    `json:"success"`
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	City             string  `json:"city"`
	County           string  `json:"county"`
	State            string  `json:"state"`
	PostalCode       string  `json:"postal_code"`
	Source           string  `json:"source"`  // "census" or "google"
	Quality          string  `json:"quality"` // "rooftop", "range", "centroid", "approximate"
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit shared by both providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithRetry sets the retry policy for transient provider failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			OnRetry:        resilience.RetryLogger("geocode", "geocode"),
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first, then Google if configured. It returns an error
// only when every configured provider failed outright.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &Result{}, nil
	}

	result, censusErr := g.geocodeCensus(ctx, address)
	if censusErr == nil && result.Success {
		return result, nil
	}
	if censusErr != nil {
		zap.L().Warn("geocode: census failed", zap.Error(censusErr))
	}

	var googleErr error
	if g.googleKey != "" {
		var googleResult *Result
		googleResult, googleErr = g.geocodeGoogle(ctx, address)
		if googleErr == nil && googleResult.Success {
			return googleResult, nil
		}
	}

	if censusErr != nil && (g.googleKey == "" || googleErr != nil) {
		return nil, eris.Wrap(censusErr, "geocode: all providers failed")
	}
	return &Result{}, nil
}

// get performs a rate-limited GET with retries on transient statuses and
// returns the body of a 200 response.
func (g *geocoder) get(ctx context.Context, reqURL, provider string) ([]byte, error) {
	return resilience.Retry(ctx, g.retry, func(ctx context.Context) ([]byte, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "geocode: %s rate limit", provider)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s build request", provider)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s request", provider)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("geocode: %s returned status %d", provider, resp.StatusCode)
			if resilience.TransientStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s read body", provider)
		}
		return body, nil
	})
}
