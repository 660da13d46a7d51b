package viz

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type fieldKind int

const (
	fieldNumber fieldKind = iota
	// fieldLabel accepts a string or a number.
	fieldLabel
)

type field struct {
	key  string
	kind fieldKind
}

func num(key string) field   { return field{key: key, kind: fieldNumber} }
func label(key string) field { return field{key: key, kind: fieldLabel} }

func coefficientPlot(p map[string]any) (*Chart, string) {
	est, okEst := number(p["estimate"])
	lo, okLo := number(p["ci_lower"])
	hi, okHi := number(p["ci_upper"])
	if !okEst || !okLo || !okHi {
		return nil, "Invalid data for coefficient plot (missing estimate or confidence intervals)"
	}

	name, ok := p["label"].(string)
	if !ok || name == "" {
		name = "Treatment Effect"
	}
	row := map[string]any{
		"name":     name,
		"estimate": est,
		"ci_lower": lo,
		"ci_upper": hi,
	}

	color := ColorMuted
	if pv, ok := number(p["p_value"]); ok {
		row["p_value"] = pv
		if pv < 0.05 {
			color = ColorSignificant
		}
	}

	return &Chart{
		Type:   ChartBar,
		Layout: "vertical",
		Height: 200,
		XAxis:  Axis{Type: "number"},
		YAxis:  Axis{Type: "category", DataKey: "name"},
		Series: []Series{
			{DataKey: "estimate", Color: color},
			{DataKey: "ci_lower", Hidden: true},
			{DataKey: "ci_upper", Hidden: true},
		},
		ReferenceLines: []ReferenceLine{{Axis: "x", Value: 0, Color: ColorReference}},
		Data:           []map[string]any{row},
	}, ""
}

func subgroupComparison(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["subgroups"], []field{label("name"), num("effect")}, "ci_lower", "ci_upper", "p_value")
	if len(data) == 0 {
		return nil, invalidRows("subgroup comparison", "subgroups", "name", "effect")
	}

	colors := make([]string, len(data))
	for i, row := range data {
		colors[i] = ColorMuted
		if sig, _ := row["significant"].(bool); sig {
			colors[i] = ColorSignificant
		}
	}

	return &Chart{
		Type:           ChartBar,
		Layout:         "vertical",
		Height:         300,
		XAxis:          Axis{Type: "number"},
		YAxis:          Axis{Type: "category", DataKey: "name"},
		Series:         []Series{{DataKey: "effect", Color: ColorPrimary}},
		ReferenceLines: []ReferenceLine{{Axis: "x", Value: 0, Color: ColorReference}},
		Data:           data,
		PointColors:    colors,
		Dropped:        dropped,
	}, ""
}

func balancePlot(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["covariates"], []field{label("name"), num("std_diff")})
	if len(data) == 0 {
		return nil, invalidRows("balance plot", "covariates", "name", "std_diff")
	}

	colors := make([]string, len(data))
	for i, row := range data {
		colors[i] = ColorSignificant
		if imb, _ := row["imbalanced"].(bool); imb {
			colors[i] = ColorAlert
		}
	}

	return &Chart{
		Type:   ChartScatter,
		Height: 300,
		XAxis:  Axis{Type: "number", DataKey: "std_diff", Label: "Standardized Difference"},
		YAxis:  Axis{Type: "category", DataKey: "name"},
		Series: []Series{{DataKey: "std_diff", Color: ColorPrimary}},
		ReferenceLines: []ReferenceLine{
			{Axis: "x", Value: 0, Color: ColorReference},
			{Axis: "x", Value: -0.1, Color: ColorAlert, Dashed: true},
			{Axis: "x", Value: 0.1, Color: ColorAlert, Dashed: true},
		},
		Data:        data,
		PointColors: colors,
		Dropped:     dropped,
	}, ""
}

func specificationCurve(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["specifications"], []field{label("name"), num("estimate")}, "p_value")
	if len(data) == 0 {
		return nil, invalidRows("specification curve", "specifications", "name", "estimate")
	}

	colors := make([]string, len(data))
	for i, row := range data {
		row["index"] = i
		colors[i] = ColorMuted
		if pv, ok := row["p_value"].(float64); ok && pv < 0.05 {
			colors[i] = ColorSignificant
		}
	}

	return &Chart{
		Type:           ChartLine,
		Height:         300,
		XAxis:          Axis{DataKey: "name"},
		YAxis:          Axis{Label: "Effect Estimate"},
		Series:         []Series{{DataKey: "estimate", Color: ColorPrimary}},
		ReferenceLines: []ReferenceLine{{Axis: "y", Value: 0, Color: ColorReference}},
		Data:           data,
		PointColors:    colors,
		Dropped:        dropped,
	}, ""
}

func barChart(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["data"], []field{label("name"), num("value")})
	if len(data) == 0 {
		return nil, invalidRows("bar chart", "data", "name", "value")
	}
	return &Chart{
		Type:    ChartBar,
		Height:  300,
		XAxis:   Axis{DataKey: "name"},
		Series:  []Series{{DataKey: "value", Color: ColorPrimary}},
		Data:    data,
		Dropped: dropped,
	}, ""
}

func lineChart(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["data"], []field{label("x"), num("y")})
	if len(data) == 0 {
		return nil, invalidRows("line chart", "data", "x", "y")
	}
	return &Chart{
		Type:    ChartLine,
		Height:  300,
		XAxis:   Axis{DataKey: "x"},
		Series:  []Series{{DataKey: "y", Color: ColorPrimary}},
		Data:    data,
		Dropped: dropped,
	}, ""
}

func eventStudy(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["data"], []field{label("x"), num("y")}, "ci_lower", "ci_upper")
	if len(data) == 0 {
		return nil, invalidRows("event study", "data", "x", "y")
	}
	return &Chart{
		Type:   ChartLine,
		Height: 350,
		XAxis:  Axis{DataKey: "x", Label: "Periods Relative to Treatment"},
		YAxis:  Axis{Label: "Coefficient"},
		Series: []Series{
			{DataKey: "y", Name: "Effect Estimate", Color: ColorPrimary},
			{DataKey: "ci_lower", Name: "95% CI Lower", Color: ColorPrimary, Dashed: true},
			{DataKey: "ci_upper", Name: "95% CI Upper", Color: ColorPrimary, Dashed: true},
		},
		ReferenceLines: []ReferenceLine{
			{Axis: "x", Value: 0, Color: ColorAlert, Label: "Treatment"},
			{Axis: "y", Value: 0, Color: ColorReference},
		},
		Data:    data,
		Dropped: dropped,
	}, ""
}

func trendComparison(p map[string]any) (*Chart, string) {
	data, dropped := collectRows(p["data"], []field{label("time"), num("treated_mean"), num("control_mean")})
	if len(data) == 0 {
		return nil, invalidRows("trend comparison", "data", "time", "treated_mean", "control_mean")
	}
	return &Chart{
		Type:   ChartLine,
		Height: 300,
		XAxis:  Axis{DataKey: "time", Label: "Time Period"},
		YAxis:  Axis{Label: "Outcome"},
		Series: []Series{
			{DataKey: "treated_mean", Name: "Treated Group", Color: ColorSignificant},
			{DataKey: "control_mean", Name: "Control Group", Color: ColorPrimary},
		},
		Data:    data,
		Dropped: dropped,
	}, ""
}

func invalidRows(what, key string, fields ...string) string {
	return fmt.Sprintf("Invalid data for %s (%s rows need %s)", what, key, strings.Join(fields, ", "))
}

// collectRows copies the object rows of list that carry every required
// field, normalizing numbers to float64. Optional numeric fields are kept
// only when numeric. It returns the kept rows and how many were dropped.
func collectRows(list any, required []field, optional ...string) ([]map[string]any, int) {
	items, ok := list.([]any)
	if !ok {
		return nil, 0
	}

	out := make([]map[string]any, 0, len(items))
	dropped := 0
	for _, item := range items {
		src, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		row := make(map[string]any, len(src)+1)
		for k, v := range src {
			row[k] = v
		}
		if !normalize(row, required) {
			dropped++
			continue
		}
		for _, key := range optional {
			v, present := row[key]
			if !present {
				continue
			}
			if f, ok := number(v); ok {
				row[key] = f
			} else {
				delete(row, key)
			}
		}
		out = append(out, row)
	}
	return out, dropped
}

func normalize(row map[string]any, required []field) bool {
	for _, f := range required {
		v, present := row[f.key]
		if !present {
			return false
		}
		if n, ok := number(v); ok {
			row[f.key] = n
			continue
		}
		if f.kind == fieldLabel {
			if s, ok := v.(string); ok {
				row[f.key] = s
				continue
			}
		}
		return false
	}
	return true
}

// number accepts the numeric shapes JSON decoding produces. NaN and
// infinities are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
