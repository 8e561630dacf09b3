// Package metrics holds the Prometheus collectors for discovery and fill.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	reg prometheus.Gatherer

	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	discoveries   *prometheus.CounterVec
	degradations  *prometheus.CounterVec
	fields        *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permit",
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "permit",
			Name:      "oracle_call_seconds",
			Help:      "Oracle call latency including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permit",
			Name:      "discoveries_total",
			Help:      "Discovery runs by outcome.",
		}, []string{"outcome"}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permit",
			Name:      "degradations_total",
			Help:      "Degradation flags raised during discovery.",
		}, []string{"flag"}),
		fields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permit",
			Name:      "fill_fields_total",
			Help:      "Form fields processed by auto-fill, by state.",
		}, []string{"state"}),
	}
	reg.MustRegister(
		m.oracleCalls,
		m.oracleLatency,
		m.discoveries,
		m.degradations,
		m.fields,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveOracle records one logical oracle call.
func (m *Metrics) ObserveOracle(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(provider, outcome).Inc()
	m.oracleLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveDiscovery records a finished discovery and any degradation flags.
func (m *Metrics) ObserveDiscovery(outcome string, flags []string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(outcome).Inc()
	for _, f := range flags {
		m.degradations.WithLabelValues(f).Inc()
	}
}

// ObserveFill records filled and missing field counts for one form.
func (m *Metrics) ObserveFill(filled, missing int) {
	if m == nil {
		return
	}
	m.fields.WithLabelValues("filled").Add(float64(filled))
	m.fields.WithLabelValues("missing").Add(float64(missing))
}
