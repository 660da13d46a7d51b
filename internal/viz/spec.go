// Package viz turns a dashboard section's visualization kind and payload
// into a chart specification a renderer can draw without further checks.
package viz

// Status tells the renderer what to draw for a section.
type Status string

const (
	// StatusOK means Chart is set and well-formed.
	StatusOK Status = "ok"
	// StatusEmpty means the payload was empty or missing required fields.
	StatusEmpty Status = "empty"
	// StatusUnsupported means the kind is not known.
	StatusUnsupported Status = "unsupported"
)

// NoDataMessage is shown for empty payloads.
const NoDataMessage = "No data available for visualization"

// ChartType is the renderer family.
type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartScatter ChartType = "scatter"
)

// Palette used by the transforms.
const (
	ColorPrimary     = "#3b82f6"
	ColorSignificant = "#10b981"
	ColorMuted       = "#6b7280"
	ColorAlert       = "#ef4444"
	ColorReference   = "#666"
)

// Spec is the outcome of dispatching one section.
type Spec struct {
	Kind    string `json:"kind"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Chart   *Chart `json:"chart,omitempty"`
}

// Axis describes one chart axis.
type Axis struct {
	Type    string `json:"type,omitempty"` // "number" or "category"
	DataKey string `json:"dataKey,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Series is one plotted measure.
type Series struct {
	DataKey string `json:"dataKey"`
	Name    string `json:"name,omitempty"`
	Color   string `json:"color,omitempty"`
	Dashed  bool   `json:"dashed,omitempty"`
	Hidden  bool   `json:"hidden,omitempty"`
}

// ReferenceLine is a constant line on one axis.
type ReferenceLine struct {
	Axis   string  `json:"axis"` // "x" or "y"
	Value  float64 `json:"value"`
	Color  string  `json:"color"`
	Dashed bool    `json:"dashed,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Chart is a renderable chart. Every row in Data carries the keys the
// series and axes reference, with numeric values as float64.
type Chart struct {
	Type           ChartType        `json:"type"`
	Layout         string           `json:"layout,omitempty"`
	Height         int              `json:"height"`
	XAxis          Axis             `json:"xAxis"`
	YAxis          Axis             `json:"yAxis"`
	Series         []Series         `json:"series"`
	ReferenceLines []ReferenceLine  `json:"referenceLines,omitempty"`
	Data           []map[string]any `json:"data"`
	// PointColors, when set, colours row i with PointColors[i].
	PointColors []string `json:"pointColors,omitempty"`
	// Dropped counts payload rows that lacked required fields.
	Dropped int `json:"dropped,omitempty"`
}
