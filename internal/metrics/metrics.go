// Package metrics exposes Prometheus instruments for scrubbing and analysis.
package metrics

import (
	"net/http"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "statement_scrubber"

// Metrics groups all Prometheus instruments used by the service. Each
// Metrics owns its registry, so several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	Redactions    *prometheus.CounterVec
	LinesScrubbed *prometheus.CounterVec
	ModelAttempts *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
}

// New creates a Metrics registered on a fresh registry together with the
// Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Redactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redactions_total",
			Help:      "PII substitutions by redaction rule.",
		}, []string{"rule"}),
		LinesScrubbed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_scrubbed_total",
			Help:      "Scrubbed lines by classification.",
		}, []string{"kind"}),
		ModelAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Inference calls by model and outcome.",
		}, []string{"model", "outcome"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Statement analyses by final status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a statement analysis.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
}

// ObserveScrub records the counts from a scrub report.
func (m *Metrics) ObserveScrub(report redact.Report) {
	for rule, n := range report.Rules {
		m.Redactions.WithLabelValues(rule).Add(float64(n))
	}
	for kind, n := range report.Kinds {
		m.LinesScrubbed.WithLabelValues(kind.String()).Add(float64(n))
	}
}

// ObserveModelAttempt counts one inference call.
func (m *Metrics) ObserveModelAttempt(model, outcome string) {
	m.ModelAttempts.WithLabelValues(model, outcome).Inc()
}

// ObserveRun records a finished analysis.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration) {
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// ObserveHTTPRequest counts one served request.
func (m *Metrics) ObserveHTTPRequest(route, code string) {
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
