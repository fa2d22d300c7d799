package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operationsTotal *prometheus.CounterVec
	savesTotal      *prometheus.CounterVec
	saveLatency     *prometheus.HistogramVec
	loadsTotal      *prometheus.CounterVec

	searchQueriesTotal prometheus.Counter
	searchStaleTotal   prometheus.Counter

	sessionsOpen prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		operationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "store_operations_total",
			Help:      "Assignment store operations by operation and result.",
		}, []string{"op", "result"}),
		savesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "saves_total",
			Help:      "Sequence saves by result.",
		}, []string{"result"}),
		saveLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "save_latency_seconds",
			Help:      "Latency distribution of persistence gateway saves.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"result"}),
		loadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "scope_loads_total",
			Help:      "Scope selections by result.",
		}, []string{"result"}),
		searchQueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "search_queries_total",
			Help:      "Scope search queries issued after the debounce window.",
		}),
		searchStaleTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "search_stale_responses_total",
			Help:      "Scope search responses dropped because a newer term superseded them.",
		}),
		sessionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "sessions_open",
			Help:      "Currently open editor sessions.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
