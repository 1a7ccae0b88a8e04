package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by method
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_cache_hits_total",
			Help: "Total number of Slack collection cache hits",
		},
		[]string{"method"},
	)

	// CacheMisses tracks cache misses by method
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_cache_misses_total",
			Help: "Total number of Slack collection cache misses",
		},
		[]string{"method"},
	)

	// CacheWrittenBytes counts bytes written to the cache
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slack_cache_written_bytes_total",
			Help: "Total bytes written to the Slack collection cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
