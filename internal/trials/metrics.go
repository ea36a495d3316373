package trials

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the coordinator collectors
type Metrics struct {
	TrialsSubmitted         prometheus.Counter
	ConfigurationsCompleted prometheus.Counter
	ConfigurationsSkipped   prometheus.Counter
	DrainDuration           prometheus.Histogram
}

// NewMetrics creates the coordinator collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TrialsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialsweep",
			Subsystem: "coordinator",
			Name:      "trials_submitted_total",
			Help:      "Total number of work items put on the work queue.",
		}),
		ConfigurationsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialsweep",
			Subsystem: "coordinator",
			Name:      "configurations_completed_total",
			Help:      "Total number of configurations whose summary was persisted.",
		}),
		ConfigurationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialsweep",
			Subsystem: "coordinator",
			Name:      "configurations_skipped_total",
			Help:      "Total number of configurations skipped because a summary already existed.",
		}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialsweep",
			Subsystem: "coordinator",
			Name:      "drain_duration_seconds",
			Help:      "Time from first submission to the last result of a configuration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 20),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TrialsSubmitted,
			m.ConfigurationsCompleted,
			m.ConfigurationsSkipped,
			m.DrainDuration,
		)
	}
	return m
}
