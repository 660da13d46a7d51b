package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "experiment",
		Name:      "runs_started_total",
		Help:      "Approved experiment runs",
	})

	// runsFinished is labelled by the terminal phase (completed, aborted).
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "experiment",
		Name:      "runs_finished_total",
		Help:      "Experiment runs that reached a terminal phase",
	}, []string{"phase"})

	// progressRegressions counts progress events lower than the previous one.
	// The backend is trusted, so these are observed, not rejected.
	progressRegressions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "experiment",
		Name:      "progress_regressions_total",
		Help:      "Progress events that moved a run backwards",
	})
)
