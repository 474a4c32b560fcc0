package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reads tracks collection reads by result state.
	reads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_catalog_reads_total",
			Help: "Total number of catalog reads by collection and result state",
		},
		[]string{"collection", "state"}, // "fresh", "stale", "degraded"
	)

	// refreshes tracks completed refresh attempts by outcome.
	refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_catalog_refreshes_total",
			Help: "Total number of collection refreshes by outcome",
		},
		[]string{"collection", "outcome"}, // "success", "error"
	)

	// refreshJoins counts refresh requests that joined an already in-flight
	// refresh instead of issuing a remote call.
	refreshJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_catalog_refresh_joins_total",
			Help: "Total number of refresh requests deduplicated onto an in-flight refresh",
		},
		[]string{"collection"},
	)
)
