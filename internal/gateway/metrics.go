package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// remoteFetches tracks collection fetches by outcome.
	remoteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_remote_fetches_total",
			Help: "Total number of collection fetches against the remote backend",
		},
		[]string{"collection", "outcome"}, // "success", "error"
	)

	// remoteSaves tracks admin write-through saves by outcome.
	remoteSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barback_remote_saves_total",
			Help: "Total number of collection saves against the remote backend",
		},
		[]string{"collection", "outcome"}, // "success", "error"
	)
)
