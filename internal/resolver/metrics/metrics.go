package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the resolution engine.
type Metrics struct {
	// Query outcomes by object kind
	QueryOutcome *prometheus.CounterVec

	// Resolution latency by object kind
	QueryDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all resolver metrics registered.
func New() *Metrics {
	return &Metrics{
		QueryOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rdapd_queries_total",
			Help: "Total resolved queries by object kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: "found", "redirect", "not_found", "error"

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rdapd_query_duration_seconds",
			Help:    "Duration of query resolution by object kind",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
	}
}

// ObserveQuery records one resolved query and its latency.
// Call with time.Now() taken at the start of resolution.
func (m *Metrics) ObserveQuery(kind, outcome string, start time.Time) {
	if m != nil {
		m.QueryOutcome.WithLabelValues(kind, outcome).Inc()
		m.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}
