// Package metrics exposes Prometheus instrumentation for the analysis queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all queue collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsQueued     prometheus.Gauge
	JobsProcessing prometheus.Gauge
	JobsDispatched prometheus.Counter
	JobsRequeued   prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	TickDuration   prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidqueue_jobs_queued",
			Help: "Number of analysis jobs currently queued.",
		}),
		JobsProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidqueue_jobs_processing",
			Help: "Number of analysis jobs currently processing.",
		}),
		JobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidqueue_jobs_dispatched_total",
			Help: "Total analyzer invocations dispatched.",
		}),
		JobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidqueue_jobs_requeued_total",
			Help: "Total jobs requeued after a failed invocation.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidqueue_jobs_completed_total",
			Help: "Total jobs completed by the analyzer.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidqueue_jobs_failed_total",
			Help: "Total jobs terminally failed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidqueue_tick_duration_seconds",
			Help:    "Duration of dispatcher ticks.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.JobsQueued,
		m.JobsProcessing,
		m.JobsDispatched,
		m.JobsRequeued,
		m.JobsCompleted,
		m.JobsFailed,
		m.TickDuration,
	)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
