package forms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/permit-cli/internal/model"
	"github.com/sells-group/permit-cli/internal/resilience"
)

func testScraper(resolve URLResolver) *HTTPScraper {
	return NewHTTPScraper(ScraperOptions{
		UserAgent:  "permit-cli-test",
		RatePerSec: -1,
		MaxBytes:   1 << 10,
		Resolve:    resolve,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
	})
}

func buildingPermit() model.CandidatePermit {
	return model.CandidatePermit{PermitType: "building", PermitName: "Residential Building Permit"}
}

func TestHTTPScraper_PDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "permit-cli-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "/forms/building", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 form")) //nolint:errcheck
	}))
	defer srv.Close()

	auth := model.Authority{ID: "austin-tx", FormURL: srv.URL + "/forms/{permit_type}"}
	raw, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), auth)
	require.NoError(t, err)

	assert.Equal(t, model.FormKindPDF, raw.Kind)
	assert.Equal(t, srv.URL+"/forms/building", raw.URL)
	assert.Equal(t, raw.URL, raw.PDFURL)
	assert.Empty(t, raw.PortalURL)
	assert.Equal(t, "%PDF-1.4 form", string(raw.Content))
}

func TestHTTPScraper_HTMLPortal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<form><input name="owner_name"></form><a href="/app.pdf">pdf</a>`)) //nolint:errcheck
	}))
	defer srv.Close()

	raw, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL + "/apply"})
	require.NoError(t, err)
	assert.Equal(t, model.FormKindHTML, raw.Kind)
	assert.Equal(t, srv.URL+"/apply", raw.PortalURL)
	assert.Empty(t, raw.PDFURL)
}

func TestHTTPScraper_FollowsLinkedPDF(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/permits/building", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<p>Download the <a href="docs/bp-100.pdf">application</a>.</p>`)) //nolint:errcheck
	})
	mux.HandleFunc("/permits/docs/bp-100.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("%PDF-1.7 bp-100")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	raw, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL + "/permits/building"})
	require.NoError(t, err)
	assert.Equal(t, model.FormKindPDF, raw.Kind)
	assert.Equal(t, srv.URL+"/permits/docs/bp-100.pdf", raw.URL)
	assert.Equal(t, raw.URL, raw.PDFURL)
	assert.Equal(t, srv.URL+"/permits/building", raw.PortalURL)
}

func TestHTTPScraper_LinkedPDFMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/permits", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><a href="/gone.pdf">application</a></html>`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	raw, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL + "/permits"})
	require.NoError(t, err)
	assert.Equal(t, model.FormKindHTML, raw.Kind)
	assert.Equal(t, srv.URL+"/gone.pdf", raw.PDFURL)
}

func TestHTTPScraper_ResolverWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rule-form.png", r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG")) //nolint:errcheck
	}))
	defer srv.Close()

	resolve := func(jid, ptype string) string {
		if jid == "austin-tx" && ptype == "building" {
			return srv.URL + "/rule-form.png"
		}
		return ""
	}
	s := testScraper(resolve)

	raw, err := s.Scrape(context.Background(), buildingPermit(), model.Authority{ID: "austin-tx", FormURL: srv.URL + "/default"})
	require.NoError(t, err)
	assert.Equal(t, model.FormKindScanned, raw.Kind)

	assert.Equal(t, "https://x.gov/f", s.FormURL("fence", model.Authority{ID: "austin-tx", FormURL: "https://x.gov/f"}))
}

func TestHTTPScraper_NoFormURL(t *testing.T) {
	_, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{ID: "austin-tx"})
	assert.ErrorIs(t, err, ErrNoFormURL)
}

func TestHTTPScraper_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4")) //nolint:errcheck
	}))
	defer srv.Close()

	raw, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, model.FormKindPDF, raw.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPScraper_NotFoundNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPScraper_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF" + strings.Repeat("x", 2<<10))) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestHTTPScraper_Unsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK\x03\x04")) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := testScraper(nil).Scrape(context.Background(), buildingPermit(), model.Authority{FormURL: srv.URL})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestHTTPScraper_InvalidURL(t *testing.T) {
	_, _, err := testScraper(nil).Fetch(context.Background(), "not a url")
	assert.ErrorContains(t, err, "invalid url")
}

func TestHTTPScraper_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := testScraper(nil).Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		ct      string
		content string
		want    model.FormKind
	}{
		{"application/pdf", "", model.FormKindPDF},
		{"", "%PDF-1.4", model.FormKindPDF},
		{"application/octet-stream", "%PDF-1.7", model.FormKindPDF},
		{"image/tiff", "II*", model.FormKindScanned},
		{"text/html; charset=utf-8", "", model.FormKindHTML},
		{"", "\n  <!doctype html>", model.FormKindHTML},
	}
	for _, tt := range tests {
		got, err := DetectKind(tt.ct, []byte(tt.content))
		require.NoError(t, err, tt.ct)
		assert.Equal(t, tt.want, got, tt.ct)
	}

	_, err := DetectKind("text/plain", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestHostLimiter_Adapts(t *testing.T) {
	h := newHostLimiter("austin.example.gov", 4, 1)
	h.OnSuccess()
	assert.InDelta(t, 4.8, float64(h.Limit()), 0.001)
	for range 10 {
		h.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(h.Limit()), 0.001)

	for range 10 {
		h.OnRateLimit()
	}
	assert.InDelta(t, 1.0, float64(h.Limit()), 0.001)

	inf := newHostLimiter("x", rate.Inf, 1)
	inf.OnRateLimit()
	inf.OnSuccess()
	assert.Equal(t, rate.Inf, inf.Limit())
}
