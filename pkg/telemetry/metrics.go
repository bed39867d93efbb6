package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	decisionsTotal  *prometheus.CounterVec
	decisionLatency prometheus.Histogram
	errorsTotal     *prometheus.CounterVec
	ledgerSize      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_decisions_total",
				Help: "Total number of decisions by verdict and deny reason",
			},
			[]string{"decision", "reason"},
		),

		decisionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_decision_duration_seconds",
				Help:    "End-to-end decision pipeline latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_errors_total",
				Help: "Total number of internal gateway errors by type",
			},
			[]string{"error_type"},
		),

		ledgerSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_replay_ledger_entries",
				Help: "Current number of live replay ledger entries",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.decisionLatency,
		m.errorsTotal,
		m.ledgerSize,
	)

	return m
}

// RecordDecision updates decision counters and latency from one event.
func (m *Metrics) RecordDecision(event domain.DecisionEvent) {
	reason := ""
	if event.Reason != nil {
		reason = string(*event.Reason)
	}
	m.decisionsTotal.WithLabelValues(string(event.Decision), reason).Inc()
	m.decisionLatency.Observe(float64(event.LatencyMs) / 1000.0)
}

// RecordError counts one internal error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(errorType).Inc()
}

// SetLedgerSize publishes the replay ledger occupancy. Negative values mean
// the active ledger backend does not track a count and are skipped.
func (m *Metrics) SetLedgerSize(n int) {
	if n >= 0 {
		m.ledgerSize.Set(float64(n))
	}
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
