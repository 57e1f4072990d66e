package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointLoads tracks checkpoint lookups by result.
	CheckpointLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontapp_checkpoint_loads_total",
			Help: "Total number of checkpoint lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// CheckpointSaves tracks saved tokens.
	CheckpointSaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frontapp_checkpoint_saves_total",
			Help: "Total number of checkpoint tokens saved",
		},
	)

	// CheckpointErrors tracks Redis failures.
	CheckpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontapp_checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
