package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus collectors
type Metrics struct {
	registry  *prometheus.Registry
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	requeued  prometheus.Counter
	purged    prometheus.Counter
}

// NewMetrics creates the collectors on a dedicated registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "dispatcher",
			Name:      "jobs_processed_total",
			Help:      "Jobs handled by queue and outcome (completed, retry, failed).",
		}, []string{"queue", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sync",
			Subsystem: "dispatcher",
			Name:      "job_duration_seconds",
			Help:      "Handler run time per job.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "dispatcher",
			Name:      "jobs_requeued_total",
			Help:      "Active jobs returned to the queue after their worker vanished.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sync",
			Subsystem: "dispatcher",
			Name:      "jobs_purged_total",
			Help:      "Completed jobs deleted after the retention period.",
		}),
	}
	m.registry.MustRegister(m.processed, m.duration, m.requeued, m.purged)
	return m
}

// Registry returns the registry to expose on /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
