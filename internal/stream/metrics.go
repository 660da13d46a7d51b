package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// framesInterpreted counts frames by the event kind they produced.
	framesInterpreted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Interpreted event-stream frames by resulting event kind",
	}, []string{"kind"})

	// frameParseErrors counts payloads that were dropped because they were not JSON.
	frameParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "stream",
		Name:      "frame_parse_errors_total",
		Help:      "Frames whose payload failed to decode and were treated as no-ops",
	})
)

func recordFrame(kind EventKind) {
	framesInterpreted.WithLabelValues(kind.String()).Inc()
}
