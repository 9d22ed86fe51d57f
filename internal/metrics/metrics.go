package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts query runs by outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunquery_queries_total",
			Help: "Total number of query runs",
		},
		[]string{"plan", "status"},
	)
	// QueryDuration is the time from Run until the enumerator is released.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bunquery_query_duration_seconds",
			Help:    "Query run latency in seconds, until the enumerator is freed",
			Buckets: prometheus.DefBuckets,
		},
	)
	// CompilesTotal counts query compilations by outcome.
	CompilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunquery_compiles_total",
			Help: "Total number of query compilations",
		},
		[]string{"status"},
	)
	// CommitsTotal counts document transactions by outcome.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunquery_commits_total",
			Help: "Total number of transaction commits",
		},
		[]string{"status"},
	)
	// IndexBuildDuration is the latency of initial index builds.
	IndexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bunquery_index_build_duration_seconds",
			Help:    "Index build latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	// IndexEntries is the number of documents in each index.
	IndexEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bunquery_index_entries",
			Help: "Number of indexed documents per index",
		},
		[]string{"index"},
	)
	// RequestTotal counts HTTP requests by method and route.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunquery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bunquery_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
