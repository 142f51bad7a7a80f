package sched

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the scheduler's self-metrics: per-driver durations and
// failure counts.
type Metrics struct {
	TickDuration *prometheus.HistogramVec
	Failures     *prometheus.CounterVec
}

// NewMetrics creates and optionally registers the collectors. reg may
// be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intellimaint_driver_duration_seconds",
			Help:    "Duration of scheduled driver iterations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"driver"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intellimaint_driver_failures_total",
			Help: "Failed scheduled driver iterations.",
		}, []string{"driver"}),
	}
	if reg != nil {
		reg.MustRegister(m.TickDuration, m.Failures)
	}
	return m
}
