package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/causal-labs/internal/viz"
)

func TestParseExperiment_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		shape   Shape
		summary string
		full    bool
	}{
		{
			name:    "dynamic report",
			raw:     `{"results":{"summary":"Effect found","dynamic_report":{"title":"Minimum wage","executive_summary":"Employment unchanged","sections":[{"id":"s1","title":"Main","insight":"ATT 0.4","viz_type":"bar_chart","viz_data":{"data":[{"name":"A","value":1}]}}]}}}`,
			shape:   ShapeDynamic,
			summary: "Effect found",
		},
		{
			name:    "parametric graph",
			raw:     `{"results":{"graph_data":{"title":"Dose response","slider_param":"dose","data_points":[{"x":1,"y":2,"param_value":10}]}}}`,
			shape:   ShapeParametric,
			summary: DefaultSummary,
		},
		{
			name:  "legacy graph",
			raw:   `{"results":{"summary":"Legacy","graph_data":[{"name":"Q1","value":3},{"name":"Q2","value":4}]}}`,
			shape: ShapeLegacy, summary: "Legacy",
		},
		{
			name:  "camel case graph",
			raw:   `{"results":{"graphData":[{"name":"Q1","value":3}]}}`,
			shape: ShapeLegacy, summary: DefaultSummary,
		},
		{
			name:  "full results without chart",
			raw:   `{"results":{"main_results":{"att":0.4},"pre_trends":{"p":0.7}}}`,
			shape: ShapeEmpty, summary: DefaultSummary, full: true,
		},
		{
			name:  "results as json string",
			raw:   `{"results":"{\"summary\":\"From string\",\"graph_data\":[{\"name\":\"a\",\"value\":1}]}"}`,
			shape: ShapeLegacy, summary: "From string",
		},
		{
			name:  "dynamic report wins over graph data",
			raw:   `{"results":{"dynamic_report":{"sections":[]},"graph_data":[{"name":"a","value":1}]}}`,
			shape: ShapeDynamic, summary: DefaultSummary,
		},
		{
			name:  "dynamic report without sections",
			raw:   `{"results":{"dynamic_report":{"title":"x"}}}`,
			shape: ShapeEmpty, summary: DefaultSummary,
		},
		{name: "missing results", raw: `{"status":"done"}`, shape: ShapeEmpty, summary: DefaultSummary},
		{name: "null results", raw: `{"results":null}`, shape: ShapeEmpty, summary: DefaultSummary},
		{name: "not json", raw: `<html>`, shape: ShapeEmpty, summary: DefaultSummary},
		{name: "results is array", raw: `{"results":[1,2]}`, shape: ShapeEmpty, summary: DefaultSummary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseExperiment(json.RawMessage(tt.raw))
			assert.Equal(t, tt.shape, r.Shape)
			assert.Equal(t, tt.summary, r.Summary)
			assert.Equal(t, tt.full, r.FullResults)
			assert.NotNil(t, r.Raw)
		})
	}
}

func TestParseResults_UndecodableString(t *testing.T) {
	r := ParseResults(json.RawMessage(`"Analysis failed: singular matrix"`))
	assert.Equal(t, ShapeEmpty, r.Shape)
	assert.Equal(t, "Analysis failed: singular matrix", r.RawText)

	v := BuildView("chat-1", r, nil)
	assert.Equal(t, noChartMessage, v.Message)
	assert.Equal(t, "Analysis failed: singular matrix", v.RawText)
}

func TestClassify_DropsMalformedPoints(t *testing.T) {
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"graph_data":{"data_points":[{"x":1,"y":2,"param_value":10},{"x":"a","y":2,"param_value":10},"junk"],"slider_default":30}
	}`), &obj))
	r := Classify(obj)
	require.Equal(t, ShapeParametric, r.Shape)
	assert.Len(t, r.Parametric.Points, 1)
	assert.Equal(t, float64(30), r.Parametric.SliderDefault)
	assert.Equal(t, float64(0), r.Parametric.SliderMin)
	assert.Equal(t, float64(100), r.Parametric.SliderMax)
}

func TestSelectParameter(t *testing.T) {
	points := []DataPoint{
		{X: 1, Y: 10, ParamValue: 25},
		{X: 1, Y: 20, ParamValue: 75},
		{X: 2, Y: 11, ParamValue: 25},
		{X: 2, Y: 21, ParamValue: 75},
		{X: 1, Y: 5, ParamValue: 0},
	}

	tests := []struct {
		target   float64
		selected float64
		ys       []float64
	}{
		{target: 50, selected: 25, ys: []float64{10, 11}},
		{target: 60, selected: 75, ys: []float64{20, 21}},
		{target: 100, selected: 75, ys: []float64{20, 21}},
		{target: -5, selected: 0, ys: []float64{5}},
		{target: 12.5, selected: 0, ys: []float64{5}},
	}
	for _, tt := range tests {
		selected, group, ok := SelectParameter(points, tt.target)
		require.True(t, ok)
		assert.Equal(t, tt.selected, selected, "target %v", tt.target)
		var ys []float64
		for _, p := range group {
			ys = append(ys, p.Y)
		}
		assert.Equal(t, tt.ys, ys, "target %v", tt.target)
	}

	_, group, ok := SelectParameter(nil, 50)
	assert.False(t, ok)
	assert.Empty(t, group)
}

func TestBuildView_Dynamic(t *testing.T) {
	r := ParseExperiment(json.RawMessage(`{"results":{
		"main_results":{"att":0.4},"pre_trends":{"ok":true},
		"dynamic_report":{"title":"Minimum wage","executive_summary":"No employment effect","sections":[
			{"id":"s1","title":"Main","insight":"Flat","viz_type":"bar_chart","viz_data":{"data":[{"name":"A","value":1}]}},
			{"id":"s2","title":"Broken","insight":"","viz_type":"coefficient_plot","viz_data":{}},
			{"id":"s3","title":"Future","insight":"","viz_type":"sankey","viz_data":{"a":1}}
		]}}}`))

	v := BuildView("chat-1", r, nil)
	assert.Equal(t, "Minimum wage", v.Title)
	assert.Equal(t, "No employment effect", v.ExecutiveSummary)
	assert.True(t, v.DownloadReport)
	assert.Nil(t, v.Debug)
	require.Len(t, v.Sections, 3)
	assert.Equal(t, viz.StatusOK, v.Sections[0].Viz.Status)
	assert.Equal(t, viz.StatusEmpty, v.Sections[1].Viz.Status)
	assert.Equal(t, viz.StatusUnsupported, v.Sections[2].Viz.Status)
}

func TestBuildView_Parametric(t *testing.T) {
	r := ParseExperiment(json.RawMessage(`{"results":{"graph_data":{
		"x_label":"Years","slider_param":"Discount rate","slider_min":0,"slider_max":10,"slider_default":4,
		"data_points":[{"x":1,"y":1,"param_value":2},{"x":1,"y":3,"param_value":5}]}}}`))

	v := BuildView("chat-1", r, nil)
	require.NotNil(t, v.Chart)
	assert.Equal(t, defaultChartTitle, v.Chart.Title)
	assert.Equal(t, "Years", v.Chart.XLabel)
	assert.Equal(t, "Y", v.Chart.YLabel)
	require.NotNil(t, v.Chart.Slider)
	assert.Equal(t, float64(4), v.Chart.Slider.Value)
	assert.Equal(t, float64(5), v.Chart.Slider.Selected)
	assert.Equal(t, []XY{{X: 1, Y: 3}}, v.Chart.Points)
	assert.NotNil(t, v.Debug)

	override := 1.0
	v = BuildView("chat-1", r, &override)
	assert.Equal(t, float64(2), v.Chart.Slider.Selected)
}

func TestBuildView_LegacyAndEmpty(t *testing.T) {
	legacy := BuildView("chat-1", ParseExperiment(json.RawMessage(`{"results":{"graph_data":[{"name":"a","value":1},{"name":"b"}]}}`)), nil)
	require.NotNil(t, legacy.Chart)
	assert.Equal(t, []LegacyPoint{{Name: "a", Value: 1}}, legacy.Chart.Legacy)
	assert.Equal(t, defaultViewTitle, legacy.Title)

	empty := BuildView("chat-1", ParseExperiment(json.RawMessage(`{}`)), nil)
	assert.Nil(t, empty.Chart)
	assert.Equal(t, noChartMessage, empty.Message)
	assert.Equal(t, DefaultSummary, empty.Summary)
}
