package viz

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

var wellFormed = map[string]string{
	"coefficient_plot":    `{"estimate":0.42,"ci_lower":0.1,"ci_upper":0.74,"p_value":0.01}`,
	"subgroup_comparison": `{"subgroups":[{"name":"Urban","effect":0.3,"significant":true},{"name":"Rural","effect":-0.1}]}`,
	"forest_plot":         `{"subgroups":[{"name":"Women","effect":0.2,"ci_lower":0.05,"ci_upper":0.35}]}`,
	"balance_plot":        `{"covariates":[{"name":"age","std_diff":0.02},{"name":"income","std_diff":0.15,"imbalanced":true}]}`,
	"specification_curve": `{"specifications":[{"name":"baseline","estimate":0.4,"p_value":0.01},{"name":"no controls","estimate":0.2,"p_value":0.2}]}`,
	"bar_chart":           `{"data":[{"name":"A","value":3},{"name":"B","value":5}]}`,
	"line_chart":          `{"data":[{"x":1,"y":2},{"x":2,"y":4}]}`,
	"event_study":         `{"data":[{"x":-2,"y":0.01,"ci_lower":-0.1,"ci_upper":0.12},{"x":0,"y":0.3}]}`,
	"trend_comparison":    `{"data":[{"time":"2019","treated_mean":10,"control_mean":9.5},{"time":"2020","treated_mean":12,"control_mean":9.8}]}`,
}

var missingRequired = map[string]string{
	"coefficient_plot":    `{"estimate":0.42}`,
	"subgroup_comparison": `{"subgroups":[{"name":"Urban"}]}`,
	"forest_plot":         `{"rows":[]}`,
	"balance_plot":        `{"covariates":[{"std_diff":0.1}]}`,
	"specification_curve": `{"specifications":"baseline"}`,
	"bar_chart":           `{"data":[{"name":"A","value":"three"}]}`,
	"line_chart":          `{"data":[{"x":1}]}`,
	"event_study":         `{"data":[]}`,
	"trend_comparison":    `{"data":[{"time":"2019","treated_mean":10}]}`,
}

func TestDispatch_KnownKindsNeverPanic(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			require.Contains(t, wellFormed, kind)
			require.Contains(t, missingRequired, kind)

			assert.NotPanics(t, func() {
				spec := Dispatch(kind, map[string]any{})
				assert.Equal(t, StatusEmpty, spec.Status)
				assert.Equal(t, NoDataMessage, spec.Message)
				assert.Nil(t, spec.Chart)
			})

			assert.NotPanics(t, func() {
				spec := Dispatch(kind, decode(t, missingRequired[kind]))
				assert.Equal(t, StatusEmpty, spec.Status)
				assert.NotEmpty(t, spec.Message)
				assert.Nil(t, spec.Chart)
			})

			assert.NotPanics(t, func() {
				spec := Dispatch(kind, decode(t, wellFormed[kind]))
				require.Equal(t, StatusOK, spec.Status, spec.Message)
				require.NotNil(t, spec.Chart)
				assert.NotEmpty(t, spec.Chart.Data)
				assert.NotEmpty(t, spec.Chart.Series)
				for _, s := range spec.Chart.Series {
					assert.NotEmpty(t, s.DataKey)
				}
			})
		})
	}
}

func TestDispatch_UnknownKind(t *testing.T) {
	before := testutil.ToFloat64(dispatches.WithLabelValues("unknown", string(StatusUnsupported)))

	for _, payload := range []any{nil, map[string]any{}, decode(t, wellFormed["bar_chart"]), "text"} {
		spec := Dispatch("sankey", payload)
		assert.Equal(t, StatusUnsupported, spec.Status)
		assert.Equal(t, "sankey", spec.Kind)
		assert.Contains(t, spec.Message, `"sankey"`)
		assert.Nil(t, spec.Chart)
	}

	assert.Equal(t, before+4, testutil.ToFloat64(dispatches.WithLabelValues("unknown", string(StatusUnsupported))))
}

func TestDispatch_NonObjectPayload(t *testing.T) {
	for _, payload := range []any{nil, "text", 12.0, []any{1, 2}, true} {
		spec := Dispatch("bar_chart", payload)
		assert.Equal(t, StatusEmpty, spec.Status)
		assert.Equal(t, NoDataMessage, spec.Message)
	}
}

func TestDispatch_ForestPlotAliasesSubgroupComparison(t *testing.T) {
	payload := decode(t, wellFormed["subgroup_comparison"])
	forest := Dispatch("forest_plot", payload)
	subgroup := Dispatch("subgroup_comparison", payload)

	require.Equal(t, StatusOK, forest.Status)
	assert.Equal(t, "forest_plot", forest.Kind)
	assert.Equal(t, subgroup.Chart, forest.Chart)
}

func TestCoefficientPlot(t *testing.T) {
	spec := Dispatch("coefficient_plot", decode(t, wellFormed["coefficient_plot"]))
	require.Equal(t, StatusOK, spec.Status)

	c := spec.Chart
	assert.Equal(t, ChartBar, c.Type)
	assert.Equal(t, "vertical", c.Layout)
	assert.Equal(t, 200, c.Height)
	require.Len(t, c.Data, 1)
	assert.Equal(t, "Treatment Effect", c.Data[0]["name"])
	assert.Equal(t, 0.42, c.Data[0]["estimate"])
	assert.Equal(t, ColorSignificant, c.Series[0].Color)
	assert.True(t, c.Series[1].Hidden)

	insignificant := Dispatch("coefficient_plot", decode(t, `{"label":"ATT","estimate":0,"ci_lower":-0.2,"ci_upper":0.2,"p_value":0.5}`))
	require.Equal(t, StatusOK, insignificant.Status)
	assert.Equal(t, "ATT", insignificant.Chart.Data[0]["name"])
	assert.Equal(t, ColorMuted, insignificant.Chart.Series[0].Color)
}

func TestSubgroupComparison_DropsMalformedRows(t *testing.T) {
	spec := Dispatch("subgroup_comparison", decode(t, `{"subgroups":[
		{"name":"Urban","effect":0.3,"significant":true,"p_value":"n/a"},
		{"name":"Missing effect"},
		"not a row",
		{"name":7,"effect":"0.1"},
		{"name":"Rural","effect":-0.1}
	]}`))
	require.Equal(t, StatusOK, spec.Status)

	c := spec.Chart
	require.Len(t, c.Data, 2)
	assert.Equal(t, 3, c.Dropped)
	assert.Equal(t, []string{ColorSignificant, ColorMuted}, c.PointColors)
	assert.NotContains(t, c.Data[0], "p_value", "non-numeric optional fields are removed")
}

func TestBalancePlot_ReferenceLines(t *testing.T) {
	spec := Dispatch("balance_plot", decode(t, wellFormed["balance_plot"]))
	require.Equal(t, StatusOK, spec.Status)

	var xs []float64
	for _, rl := range spec.Chart.ReferenceLines {
		assert.Equal(t, "x", rl.Axis)
		xs = append(xs, rl.Value)
	}
	assert.Equal(t, []float64{0, -0.1, 0.1}, xs)
	assert.Equal(t, []string{ColorSignificant, ColorAlert}, spec.Chart.PointColors)
}

func TestSpecificationCurve_AddsIndex(t *testing.T) {
	spec := Dispatch("specification_curve", decode(t, wellFormed["specification_curve"]))
	require.Equal(t, StatusOK, spec.Status)
	assert.Equal(t, 0, spec.Chart.Data[0]["index"])
	assert.Equal(t, 1, spec.Chart.Data[1]["index"])
	assert.Equal(t, []string{ColorSignificant, ColorMuted}, spec.Chart.PointColors)
}

func TestDispatch_DoesNotMutatePayload(t *testing.T) {
	payload := decode(t, wellFormed["specification_curve"])
	Dispatch("specification_curve", payload)
	rows := payload["specifications"].([]any)
	assert.NotContains(t, rows[0].(map[string]any), "index")
}

func TestDispatchJSON(t *testing.T) {
	assert.Equal(t, StatusOK, DispatchJSON("line_chart", json.RawMessage(wellFormed["line_chart"])).Status)
	assert.Equal(t, StatusEmpty, DispatchJSON("line_chart", json.RawMessage(`{broken`)).Status)
	assert.Equal(t, StatusEmpty, DispatchJSON("line_chart", nil).Status)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{json.Number("5.25"), 5.25, true},
		{json.Number("abc"), 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{"6", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := number(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
