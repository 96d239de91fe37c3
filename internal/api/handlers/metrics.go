package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cova_generations_total",
		Help: "Generation requests by outcome.",
	}, []string{"outcome"})

	generationDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cova_generation_deltas_total",
		Help: "Text deltas streamed to clients.",
	})

	sourceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cova_source_lookups_total",
		Help: "Message source lookups by result.",
	}, []string{"result"})
)
