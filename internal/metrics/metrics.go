// Package metrics holds the prometheus collectors of the runtime layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mmvn_runtime"

// Metrics bundles the collectors and the registry they are registered with.
// Each instance owns its registry so tests can create isolated copies.
type Metrics struct {
	Registry *prometheus.Registry

	TurnLatency      prometheus.Histogram
	LatencyEWMA      prometheus.Gauge
	JobsEnqueued     *prometheus.CounterVec
	JobsProcessed    *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	TrimEvictions    prometheus.Counter
	TrimOverBudget   prometheus.Counter
	ShapedReductions *prometheus.CounterVec
}

// New creates and registers the runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TurnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of conversational turns.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		LatencyEWMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turn_latency_ewma_seconds",
			Help:      "Exponentially weighted moving average of turn latency.",
		}),
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_jobs_enqueued_total",
			Help:      "Persistence jobs enqueued, by kind.",
		}, []string{"kind"}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_jobs_processed_total",
			Help:      "Persistence jobs consumed, by kind and outcome.",
		}, []string{"kind", "outcome"}), // stored | partial | dropped
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_queue_depth",
			Help:      "Jobs waiting in the persistence queue.",
		}),
		TrimEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_invocations_evicted_total",
			Help:      "Invocations evicted to fit the token budget.",
		}),
		TrimOverBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_over_budget_total",
			Help:      "Trims that returned a history still over the token budget.",
		}),
		ShapedReductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shaper_reductions_total",
			Help:      "Shaped payloads that needed a reduction pass, by payload type.",
		}, []string{"type"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TurnLatency,
		m.LatencyEWMA,
		m.JobsEnqueued,
		m.JobsProcessed,
		m.QueueDepth,
		m.TrimEvictions,
		m.TrimOverBudget,
		m.ShapedReductions,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
