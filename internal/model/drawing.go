package model

import "time"

// ToolType identifies one of the fixed annotation tools.
type ToolType string

const (
	ToolCursor         ToolType = "cursor"
	ToolTrendline      ToolType = "trendline"
	ToolHorizontalLine ToolType = "horizontalLine"
	ToolVerticalLine   ToolType = "verticalLine"
	ToolRectangle      ToolType = "rectangle"
	ToolFibRetracement ToolType = "fibRetracement"
	ToolRay            ToolType = "ray"
	ToolArrow          ToolType = "arrow"
	ToolText           ToolType = "text"
	ToolMeasure        ToolType = "measure"
)

// DrawingPoint anchors a drawing vertex to a bar time and price.
type DrawingPoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Measurement holds the derived fields of a committed measure drawing.
type Measurement struct {
	PriceDelta float64 `json:"priceDelta"`
	PctDelta   float64 `json:"pctDelta"`
	BarCount   int     `json:"barCount"`
}

// Drawing is a committed user annotation. Identity is ID; a drawing is
// immutable once committed (only create/delete/clear exist, no edits).
type Drawing struct {
	ID        string         `json:"id"`
	Type      ToolType       `json:"type"`
	Points    []DrawingPoint `json:"points"`
	Color     string         `json:"color"`
	LineWidth int            `json:"lineWidth"`
	Label     string         `json:"label,omitempty"`

	// Tool-specific derived fields, set at commit time.
	Price   float64      `json:"price,omitempty"` // horizontal line level
	Measure *Measurement `json:"measure,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
