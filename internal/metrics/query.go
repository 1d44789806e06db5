package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query and export Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colex",
			Name:      "queries_total",
			Help:      "Total number of collection queries",
		},
		[]string{"mode", "status"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "colex",
			Name:      "query_duration_seconds",
			Help:      "Collection query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colex",
			Name:      "exports_total",
			Help:      "Total number of exports by scope, format and outcome",
		},
		[]string{"scope", "format", "outcome"}, // outcome: "ok" / "cancelled" / "error"
	)

	ExportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "colex",
			Name:      "export_duration_seconds",
			Help:      "Export duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"scope", "format"},
	)

	ExportObjects = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "colex",
			Name:      "export_objects",
			Help:      "Objects per export",
			Buckets:   []float64{10, 100, 1000, 5000, 10000},
		},
		[]string{"scope"},
	)

	CountCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colex",
			Name:      "count_cache_total",
			Help:      "Count cache hits, misses and stale reads",
		},
		[]string{"result"}, // "hit" / "miss" / "stale"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers Prometheus query metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(ExportDuration)
	prometheus.MustRegister(ExportObjects)
	prometheus.MustRegister(CountCacheTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	queryMetricsRegistered = true
}
