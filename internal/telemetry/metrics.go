// Package telemetry exposes Prometheus collectors for synchronization runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	enqueued prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablesync_runs_total",
				Help: "Total number of synchronization runs by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tablesync_run_duration_seconds",
				Help:    "Duration of synchronization runs in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		enqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tablesync_queue_enqueued_total",
				Help: "Total number of synchronization jobs enqueued.",
			},
		),
	}
	reg.MustRegister(m.runs, m.duration, m.enqueued)
	return m
}

func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncEnqueued() {
	m.enqueued.Inc()
}
