package geocode

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/permit-cli/internal/resilience"
)

// newTestGeocoder builds a geocoder that sends every request to the test
// servers by URL prefix, without rate limiting and with fast retries.
func newTestGeocoder(googleKey string, routes map[string]string) *geocoder {
	return &geocoder{
		httpClient: &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, routes: routes}},
		googleKey:  googleKey,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	}
}

// rewriteTransport redirects requests whose URL starts with a route prefix
// to the mapped test server.
type rewriteTransport struct {
	base   http.RoundTripper
	routes map[string]string // target prefix → test server URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, server := range t.routes {
		if !strings.HasPrefix(origURL, prefix) {
			continue
		}
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(server + origURL[len(prefix):])
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}
