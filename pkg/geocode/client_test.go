package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c := NewClient(WithGoogleAPIKey("k"), WithHTTPClient(hc), WithRateLimit(2.5))
	g, ok := c.(*geocoder)
	require.True(t, ok)
	assert.Equal(t, "k", g.googleKey)
	assert.Same(t, hc, g.httpClient)
	assert.Equal(t, 2, g.limiter.Burst())
	assert.Equal(t, 3, g.retry.MaxAttempts)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	g := newTestGeocoder("", nil)
	r, err := g.Geocode(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestGeocode_CensusFirst(t *testing.T) {
	var googleCalls atomic.Int32
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(censusMatchJSON))
	}))
	defer census.Close()
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		googleCalls.Add(1)
		_, _ = w.Write([]byte(googleOKJSON))
	}))
	defer google.Close()

	g := newTestGeocoder("k", map[string]string{
		censusGeographiesURL: census.URL,
		googleGeocodeURL:     google.URL,
	})
	r, err := g.Geocode(context.Background(), "1100 Congress Ave, Austin, TX")
	require.NoError(t, err)
	assert.Equal(t, "census", r.Source)
	assert.Zero(t, googleCalls.Load())
}

func TestGeocode_FallsBackToGoogle(t *testing.T) {
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"addressMatches":[]}}`))
	}))
	defer census.Close()
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(googleOKJSON))
	}))
	defer google.Close()

	g := newTestGeocoder("k", map[string]string{
		censusGeographiesURL: census.URL,
		googleGeocodeURL:     google.URL,
	})
	r, err := g.Geocode(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "google", r.Source)
}

func TestGeocode_CensusErrorGoogleMatches(t *testing.T) {
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer census.Close()
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(googleOKJSON))
	}))
	defer google.Close()

	g := newTestGeocoder("k", map[string]string{
		censusGeographiesURL: census.URL,
		googleGeocodeURL:     google.URL,
	})
	r, err := g.Geocode(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	assert.Equal(t, "google", r.Source)
}

func TestGeocode_AllProvidersFail(t *testing.T) {
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer census.Close()
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OVER_QUERY_LIMIT"}`))
	}))
	defer google.Close()

	g := newTestGeocoder("k", map[string]string{
		censusGeographiesURL: census.URL,
		googleGeocodeURL:     google.URL,
	})
	_, err := g.Geocode(context.Background(), "1 Main St")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestGeocode_CensusErrorNoGoogle(t *testing.T) {
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer census.Close()

	g := newTestGeocoder("", map[string]string{censusGeographiesURL: census.URL})
	_, err := g.Geocode(context.Background(), "1 Main St")
	assert.Error(t, err)
}

func TestGeocode_NoMatchAnywhere(t *testing.T) {
	census := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"addressMatches":[]}}`))
	}))
	defer census.Close()
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS"}`))
	}))
	defer google.Close()

	g := newTestGeocoder("k", map[string]string{
		censusGeographiesURL: census.URL,
		googleGeocodeURL:     google.URL,
	})
	r, err := g.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestGet_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(censusMatchJSON))
	}))
	defer srv.Close()

	g := newTestGeocoder("", map[string]string{censusGeographiesURL: srv.URL})
	r, err := g.Geocode(context.Background(), "1100 Congress Ave")
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_PermanentStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := newTestGeocoder("", map[string]string{censusGeographiesURL: srv.URL})
	_, err := g.get(context.Background(), censusGeographiesURL+"?address=x", "census")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_CanceledContext(t *testing.T) {
	g := newTestGeocoder("", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.get(ctx, "http://127.0.0.1:1/", "census")
	assert.Error(t, err)
}
