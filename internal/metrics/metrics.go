package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmemory_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_embedding_requests_total",
			Help: "Embedding model calls by purpose (write, query) and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	MessagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_messages_stored_total",
			Help: "Messages persisted, labelled by whether an embedding was stored.",
		},
		[]string{"embedded"},
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_searches_total",
			Help: "Similarity searches by ranking path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmemory_search_duration_seconds",
			Help:    "Similarity search latency, excluding the query embedding call.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	IngestLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatmemory_ingest_lag_seconds",
			Help:    "Time from a message being sent by the chat layer to it being stored.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	NativeVectorBackend = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatmemory_native_vector_backend",
			Help: "1 when pgvector ranking is in use, 0 for the array fallback.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EmbeddingRequestsTotal,
		MessagesStoredTotal,
		SearchesTotal,
		SearchDuration,
		IngestLag,
		NativeVectorBackend,
	)
}
