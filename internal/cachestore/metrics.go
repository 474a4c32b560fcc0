package cachestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeErrors tracks backend operation failures by operation.
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_cache_store_errors_total",
			Help: "Total number of cache backend operation errors",
		},
		[]string{"operation"}, // "read", "write", "clear", "stats"
	)
)
