package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wordroyale"

var (
	RoundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_processed_total",
		Help:      "Round boundaries processed, by game mode and outcome (advanced, completed).",
	}, []string{"mode", "outcome"})

	Eliminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eliminations_total",
		Help:      "Players eliminated, by game mode.",
	}, []string{"mode"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Guesses handled, by result (correct, incorrect, or the rejection reason).",
	}, []string{"result"})

	GamesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_started_total",
		Help:      "Games started, by game mode.",
	}, []string{"mode"})

	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "round_processing_duration_seconds",
		Help:      "Time spent processing one round boundary.",
		Buckets:   prometheus.DefBuckets,
	})

	GRPCPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "panics_recovered_total",
		Help:      "Panics recovered in gRPC handlers, by method.",
	}, []string{"method"})
)
