package viz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "causal_labs",
		Subsystem: "viz",
		Name:      "dispatch_total",
		Help:      "Visualization sections dispatched, by kind and outcome.",
	},
	[]string{"kind", "status"},
)

func recordDispatch(s Spec) {
	kind := s.Kind
	if s.Status == StatusUnsupported {
		kind = "unknown"
	}
	dispatches.WithLabelValues(kind, string(s.Status)).Inc()
}
