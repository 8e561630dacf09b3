package forms

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/resilience"
)

// URLResolver returns the form URL for a permit type in a jurisdiction, or ""
// when it knows none.
type URLResolver func(jurisdictionID, permitType string) string

// ScraperOptions configures HTTPScraper.
type ScraperOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxBytes   int64
	RatePerSec float64
	Resolve    URLResolver
	Retry      resilience.RetryConfig
}

// HTTPScraper fetches forms from jurisdiction websites with per-host pacing
// and retries on transient failures.
type HTTPScraper struct {
	client *http.Client
	opts   ScraperOptions

	mu       sync.Mutex
	limiters map[string]*hostLimiter
}

// NewHTTPScraper creates an HTTPScraper. Zero options take defaults: a 30s
// timeout, 20MB body cap, 2 requests/s per host and three attempts.
func NewHTTPScraper(opts ScraperOptions) *HTTPScraper {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "permit-cli/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			OnRetry:        resilience.RetryLogger("forms", "scrape"),
		}
	}
	return &HTTPScraper{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*hostLimiter),
	}
}

// FormURL resolves the form URL for a permit. The resolver wins over the
// authority's default URL; a "{permit_type}" placeholder in the authority
// URL is filled in.
func (s *HTTPScraper) FormURL(permitType string, authority model.Authority) string {
	if s.opts.Resolve != nil {
		if u := s.opts.Resolve(authority.ID, permitType); u != "" {
			return u
		}
	}
	return strings.ReplaceAll(authority.FormURL, "{permit_type}", url.PathEscape(permitType))
}

// Scrape fetches the form for permit. An HTML page with no inputs that links
// a PDF is followed to the PDF, keeping the page as the portal URL.
func (s *HTTPScraper) Scrape(ctx context.Context, permit model.CandidatePermit, authority model.Authority) (*RawForm, error) {
	formURL := s.FormURL(permit.PermitType, authority)
	if formURL == "" {
		return nil, eris.Wrapf(ErrNoFormURL, "forms: %s in %s", permit.PermitType, authority.ID)
	}

	raw, err := s.fetchForm(ctx, formURL)
	if err != nil {
		return nil, err
	}
	if raw.Kind != model.FormKindHTML {
		return raw, nil
	}

	raw.PortalURL = formURL
	links := scanPage(raw.Content, formURL)
	if links.hasInputs || links.pdf == "" {
		return raw, nil
	}

	pdf, err := s.fetchForm(ctx, links.pdf)
	if err != nil {
		zap.L().Warn("forms: linked pdf unavailable, keeping portal page",
			zap.String("portal", formURL),
			zap.String("pdf", links.pdf),
			zap.Error(err),
		)
		raw.PDFURL = links.pdf
		return raw, nil
	}
	pdf.PortalURL = formURL
	return pdf, nil
}

func (s *HTTPScraper) fetchForm(ctx context.Context, formURL string) (*RawForm, error) {
	body, contentType, err := s.Fetch(ctx, formURL)
	if err != nil {
		return nil, err
	}
	kind, err := DetectKind(contentType, body)
	if err != nil {
		return nil, eris.Wrapf(err, "forms: %s", formURL)
	}
	raw := &RawForm{URL: formURL, Kind: kind, Content: body, ContentType: contentType}
	if kind == model.FormKindPDF {
		raw.PDFURL = formURL
	}
	return raw, nil
}

// Fetch GETs rawURL and returns the body and its content type.
func (s *HTTPScraper) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, "", eris.Errorf("forms: invalid url %q", rawURL)
	}
	lim := s.limiterFor(u.Host)

	type page struct {
		body        []byte
		contentType string
	}
	p, err := resilience.Retry(ctx, s.opts.Retry, func(ctx context.Context) (page, error) {
		if err := lim.Wait(ctx); err != nil {
			return page{}, eris.Wrap(err, "forms: rate limiter wait")
		}
		body, ct, err := s.get(ctx, rawURL, lim)
		return page{body: body, contentType: ct}, err
	})
	if err != nil {
		return nil, "", err
	}
	return p.body, p.contentType, nil
}

func (s *HTTPScraper) get(ctx context.Context, rawURL string, lim *hostLimiter) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "forms: create request")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/pdf,text/html;q=0.9,image/*;q=0.8,*/*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", eris.Wrapf(err, "forms: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("forms: get %s: status %d", rawURL, resp.StatusCode)
		if resilience.TransientStatus(resp.StatusCode) {
			return nil, "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes+1))
	if err != nil {
		return nil, "", eris.Wrapf(err, "forms: read %s", rawURL)
	}
	if int64(len(body)) > s.opts.MaxBytes {
		return nil, "", eris.Errorf("forms: %s exceeds %d bytes", rawURL, s.opts.MaxBytes)
	}

	lim.OnSuccess()
	return body, resp.Header.Get("Content-Type"), nil
}

func (s *HTTPScraper) limiterFor(host string) *hostLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.limiters[host]; ok {
		return lim
	}
	r := rate.Limit(s.opts.RatePerSec)
	if s.opts.RatePerSec < 0 {
		r = rate.Inf
	}
	lim := newHostLimiter(host, r, 1)
	s.limiters[host] = lim
	return lim
}

// DetectKind classifies a fetched document by content type, falling back to
// its leading bytes.
func DetectKind(contentType string, content []byte) (model.FormKind, error) {
	ct := strings.ToLower(contentType)
	trimmed := bytes.TrimLeft(content, " \t\r\n\ufeff")
	switch {
	case strings.Contains(ct, "pdf"), bytes.HasPrefix(content, []byte("%PDF")):
		return model.FormKindPDF, nil
	case strings.HasPrefix(ct, "image/"):
		return model.FormKindScanned, nil
	case strings.Contains(ct, "html"), bytes.HasPrefix(trimmed, []byte("<")):
		return model.FormKindHTML, nil
	}
	return "", eris.Wrapf(ErrUnsupportedContent, "forms: content type %q", contentType)
}
