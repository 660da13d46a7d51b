// Package report classifies a backend results object into one of the shapes
// the results view knows how to draw. Classification happens once, here;
// nothing downstream sniffs the shape again.
package report

import (
	"encoding/json"
	"strings"
)

// Shape discriminates Results.
type Shape string

const (
	// ShapeDynamic has dynamic_report.sections, each drawn through viz.
	ShapeDynamic Shape = "dynamic_report"
	// ShapeParametric has graph_data.data_points and a parameter slider.
	ShapeParametric Shape = "parametric"
	// ShapeLegacy has graph_data as a flat [{name, value}] list.
	ShapeLegacy Shape = "legacy"
	// ShapeEmpty has nothing to chart.
	ShapeEmpty Shape = "empty"
)

// DefaultSummary is used when results carry no summary.
const DefaultSummary = "No summary available."

// Results is a classified results object. Exactly one of Dynamic,
// Parametric and Legacy is set, matching Shape, unless Shape is ShapeEmpty.
type Results struct {
	Shape   Shape
	Summary string
	// FullResults is true when main_results and pre_trends are both present,
	// which is what the report export needs.
	FullResults bool

	Dynamic    *DynamicReport
	Parametric *ParametricGraph
	Legacy     []LegacyPoint

	// Raw is the decoded results object.
	Raw map[string]any
	// RawText holds a string results value that failed to decode.
	RawText string
}

// DynamicReport is a sectioned report.
type DynamicReport struct {
	Title            string    `json:"title"`
	ExecutiveSummary string    `json:"executive_summary"`
	Sections         []Section `json:"sections"`
}

// Section is one dashboard section.
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Insight string `json:"insight"`
	VizType string `json:"viz_type"`
	VizData any    `json:"viz_data"`
}

// ParametricGraph is a family of curves indexed by a parameter.
type ParametricGraph struct {
	Title         string      `json:"title,omitempty"`
	XLabel        string      `json:"x_label,omitempty"`
	YLabel        string      `json:"y_label,omitempty"`
	SliderParam   string      `json:"slider_param,omitempty"`
	SliderMin     float64     `json:"slider_min"`
	SliderMax     float64     `json:"slider_max"`
	SliderDefault float64     `json:"slider_default"`
	Points        []DataPoint `json:"data_points"`
}

// DataPoint is one point of the curve for ParamValue.
type DataPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	ParamValue float64 `json:"param_value"`
}

// LegacyPoint is one entry of the flat chart shape.
type LegacyPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ParseExperiment decodes a backend experiment object and classifies its
// results field. It never fails; unusable input is ShapeEmpty.
func ParseExperiment(raw json.RawMessage) Results {
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Classify(nil)
	}
	return ParseResults(envelope.Results)
}

// ParseResults classifies a results value that is either an object or a
// JSON string holding one.
func ParseResults(raw json.RawMessage) Results {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Classify(nil)
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Classify(nil)
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			r := Classify(nil)
			r.RawText = text
			return r
		}
		return Classify(obj)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Classify(nil)
	}
	return Classify(obj)
}

// Classify picks the shape of a decoded results object. A dynamic report
// wins over graph data; parametric graph data wins over the legacy list.
func Classify(obj map[string]any) Results {
	if obj == nil {
		obj = map[string]any{}
	}
	r := Results{
		Shape:       ShapeEmpty,
		Summary:     DefaultSummary,
		FullResults: truthy(obj["main_results"]) && truthy(obj["pre_trends"]),
		Raw:         obj,
	}
	if s, ok := obj["summary"].(string); ok && s != "" {
		r.Summary = s
	}

	if dr, ok := dynamicReport(obj["dynamic_report"]); ok {
		r.Shape = ShapeDynamic
		r.Dynamic = dr
		return r
	}

	graph := obj["graph_data"]
	if !truthy(graph) {
		graph = obj["graphData"]
	}
	if pg, ok := parametricGraph(graph); ok {
		r.Shape = ShapeParametric
		r.Parametric = pg
		return r
	}
	if pts, ok := legacyPoints(graph); ok {
		r.Shape = ShapeLegacy
		r.Legacy = pts
	}
	return r
}

func dynamicReport(v any) (*DynamicReport, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	rawSections, ok := obj["sections"].([]any)
	if !ok {
		return nil, false
	}

	dr := &DynamicReport{
		Title:            str(obj["title"]),
		ExecutiveSummary: str(obj["executive_summary"]),
		Sections:         make([]Section, 0, len(rawSections)),
	}
	for _, item := range rawSections {
		sec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		dr.Sections = append(dr.Sections, Section{
			ID:      str(sec["id"]),
			Title:   str(sec["title"]),
			Insight: str(sec["insight"]),
			VizType: str(sec["viz_type"]),
			VizData: sec["viz_data"],
		})
	}
	return dr, true
}

func parametricGraph(v any) (*ParametricGraph, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	rawPoints, ok := obj["data_points"].([]any)
	if !ok {
		return nil, false
	}

	pg := &ParametricGraph{
		Title:         str(obj["title"]),
		XLabel:        str(obj["x_label"]),
		YLabel:        str(obj["y_label"]),
		SliderParam:   str(obj["slider_param"]),
		SliderMin:     numberOr(obj["slider_min"], 0),
		SliderMax:     numberOr(obj["slider_max"], 100),
		SliderDefault: numberOr(obj["slider_default"], 50),
		Points:        make([]DataPoint, 0, len(rawPoints)),
	}
	for _, item := range rawPoints {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		x, okX := p["x"].(float64)
		y, okY := p["y"].(float64)
		pv, okP := p["param_value"].(float64)
		if okX && okY && okP {
			pg.Points = append(pg.Points, DataPoint{X: x, Y: y, ParamValue: pv})
		}
	}
	return pg, true
}

func legacyPoints(v any) ([]LegacyPoint, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	pts := make([]LegacyPoint, 0, len(items))
	for _, item := range items {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value, ok := p["value"].(float64)
		if !ok {
			continue
		}
		pts = append(pts, LegacyPoint{Name: str(p["name"]), Value: value})
	}
	return pts, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func numberOr(v any, def float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}

// truthy mirrors how the view tests for presence: missing, null, false,
// zero and empty string are absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
