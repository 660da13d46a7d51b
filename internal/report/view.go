package report

import (
	"math"
	"slices"

	"github.com/ashureev/causal-labs/internal/viz"
)

const (
	defaultViewTitle  = "Experiment Results"
	defaultChartTitle = "Primary Visualization"
	noChartMessage    = "No visualization data available for this analysis."
)

// View is everything the results page renders for one chat.
type View struct {
	ChatID           string        `json:"chatId"`
	Shape            Shape         `json:"shape"`
	Title            string        `json:"title"`
	Summary          string        `json:"summary"`
	ExecutiveSummary string        `json:"executiveSummary,omitempty"`
	DownloadReport   bool          `json:"downloadReport"`
	Sections         []SectionView `json:"sections,omitempty"`
	Chart            *ChartView    `json:"chart,omitempty"`
	Message          string        `json:"message,omitempty"`
	// Debug carries the raw results when the full results are absent.
	Debug   map[string]any `json:"debug,omitempty"`
	RawText string         `json:"rawText,omitempty"`
}

// SectionView is one dispatched dashboard section.
type SectionView struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Insight string   `json:"insight"`
	Viz     viz.Spec `json:"viz"`
}

// ChartView is the single chart of the legacy and parametric shapes.
type ChartView struct {
	Title  string        `json:"title"`
	Legacy []LegacyPoint `json:"legacy,omitempty"`
	Slider *Slider       `json:"slider,omitempty"`
	XLabel string        `json:"xLabel,omitempty"`
	YLabel string        `json:"yLabel,omitempty"`
	Points []XY          `json:"points,omitempty"`
}

// Slider is the parameter control of a parametric chart.
type Slider struct {
	Param    string  `json:"param"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Value    float64 `json:"value"`
	Selected float64 `json:"selected"`
}

// XY is a plotted point.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BuildView renders r for chatID. slider overrides the parametric default
// when non-nil.
func BuildView(chatID string, r Results, slider *float64) View {
	v := View{
		ChatID:         chatID,
		Shape:          r.Shape,
		Title:          defaultViewTitle,
		Summary:        r.Summary,
		DownloadReport: r.FullResults,
		RawText:        r.RawText,
	}
	if !r.FullResults {
		v.Debug = r.Raw
	}

	switch r.Shape {
	case ShapeDynamic:
		if r.Dynamic.Title != "" {
			v.Title = r.Dynamic.Title
		}
		v.ExecutiveSummary = r.Dynamic.ExecutiveSummary
		v.Sections = make([]SectionView, 0, len(r.Dynamic.Sections))
		for _, s := range r.Dynamic.Sections {
			v.Sections = append(v.Sections, SectionView{
				ID:      s.ID,
				Title:   s.Title,
				Insight: s.Insight,
				Viz:     viz.Dispatch(s.VizType, s.VizData),
			})
		}

	case ShapeParametric:
		pg := r.Parametric
		value := pg.SliderDefault
		if slider != nil {
			value = *slider
		}
		selected, points, _ := SelectParameter(pg.Points, value)
		title := pg.Title
		if title == "" {
			title = defaultChartTitle
		}
		param := pg.SliderParam
		if param == "" {
			param = "Parameter"
		}
		v.Chart = &ChartView{
			Title: title,
			Slider: &Slider{
				Param:    param,
				Min:      pg.SliderMin,
				Max:      pg.SliderMax,
				Value:    value,
				Selected: selected,
			},
			XLabel: labelOr(pg.XLabel, "X"),
			YLabel: labelOr(pg.YLabel, "Y"),
			Points: points,
		}

	case ShapeLegacy:
		v.Chart = &ChartView{Title: defaultChartTitle, Legacy: r.Legacy}

	default:
		v.Message = noChartMessage
	}
	return v
}

// SelectParameter groups points by parameter value and returns the group
// whose value is nearest target. Ties go to the smaller value. ok is false
// when there are no points.
func SelectParameter(points []DataPoint, target float64) (selected float64, group []XY, ok bool) {
	if len(points) == 0 {
		return 0, []XY{}, false
	}

	groups := make(map[float64][]XY)
	var params []float64
	for _, p := range points {
		if _, seen := groups[p.ParamValue]; !seen {
			params = append(params, p.ParamValue)
		}
		groups[p.ParamValue] = append(groups[p.ParamValue], XY{X: p.X, Y: p.Y})
	}
	slices.Sort(params)

	selected = params[0]
	for _, pv := range params[1:] {
		if math.Abs(pv-target) < math.Abs(selected-target) {
			selected = pv
		}
	}
	return selected, groups[selected], true
}

func labelOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
