package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker pool collectors
type Metrics struct {
	TrialsCompleted prometheus.Counter
	TrialsFailed    prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	TrialDuration   prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TrialsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialsweep",
			Subsystem: "pool",
			Name:      "trials_completed_total",
			Help:      "Total number of trials whose estimator returned an estimate.",
		}),
		TrialsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialsweep",
			Subsystem: "pool",
			Name:      "trials_failed_total",
			Help:      "Total number of trials whose estimator returned an error or panicked.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trialsweep",
			Subsystem: "pool",
			Name:      "active_workers",
			Help:      "Number of workers that have not terminated.",
		}),
		TrialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialsweep",
			Subsystem: "pool",
			Name:      "trial_duration_seconds",
			Help:      "Bucketed histogram of estimator wall time per trial.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TrialsCompleted,
			m.TrialsFailed,
			m.ActiveWorkers,
			m.TrialDuration,
		)
	}
	return m
}
