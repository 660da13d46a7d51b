package viz

import (
	"encoding/json"
	"fmt"
	"slices"
)

type transform func(payload map[string]any) (*Chart, string)

// subgroup_comparison and forest_plot share one transform on purpose:
// a forest plot is a subgroup comparison drawn with its effects.
var transforms = map[string]transform{
	"coefficient_plot":    coefficientPlot,
	"subgroup_comparison": subgroupComparison,
	"forest_plot":         subgroupComparison,
	"balance_plot":        balancePlot,
	"specification_curve": specificationCurve,
	"bar_chart":           barChart,
	"line_chart":          lineChart,
	"event_study":         eventStudy,
	"trend_comparison":    trendComparison,
}

// Kinds returns the supported kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(transforms))
	for k := range transforms {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Supported reports whether kind has a transform.
func Supported(kind string) bool {
	_, ok := transforms[kind]
	return ok
}

// Dispatch validates payload for kind and builds its chart. It never panics:
// unknown kinds are StatusUnsupported, and empty or malformed payloads are
// StatusEmpty with a message.
func Dispatch(kind string, payload any) Spec {
	spec := dispatch(kind, payload)
	recordDispatch(spec)
	return spec
}

// DispatchJSON decodes raw and dispatches it. Undecodable JSON is an empty
// payload.
func DispatchJSON(kind string, raw json.RawMessage) Spec {
	var payload any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = nil
		}
	}
	return Dispatch(kind, payload)
}

func dispatch(kind string, payload any) Spec {
	fn, ok := transforms[kind]
	if !ok {
		return Spec{
			Kind:    kind,
			Status:  StatusUnsupported,
			Message: fmt.Sprintf("Visualization type %q not yet implemented", kind),
		}
	}

	obj, ok := payload.(map[string]any)
	if !ok || len(obj) == 0 {
		return Spec{Kind: kind, Status: StatusEmpty, Message: NoDataMessage}
	}

	chart, msg := fn(obj)
	if chart == nil {
		if msg == "" {
			msg = NoDataMessage
		}
		return Spec{Kind: kind, Status: StatusEmpty, Message: msg}
	}
	return Spec{Kind: kind, Status: StatusOK, Chart: chart}
}
