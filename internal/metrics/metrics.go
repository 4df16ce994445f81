// Package metrics exposes Prometheus collectors for the chat proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for completions_total.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeUpstream  = "upstream_empty"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

type Metrics struct {
	registry    *prometheus.Registry
	completions *prometheus.CounterVec
	upstream    prometheus.Histogram
}

// New registers the collectors on a private registry so tests can build
// as many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geminichat",
			Name:      "completions_total",
			Help:      "Chat proxy requests by outcome.",
		}, []string{"outcome"}),
		upstream: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "geminichat",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of Gemini generate calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
	}
	reg.MustRegister(m.completions, m.upstream)
	return m
}

// ObserveCompletion is safe on a nil receiver.
func (m *Metrics) ObserveCompletion(outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstream(d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
