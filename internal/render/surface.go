// Package render defines the drawing-surface port consumed by the pane
// coordinator, plus a headless implementation.
//
// The real 2D chart library is an external collaborator; everything here
// treats it as an opaque surface exposing series, price lines, markers
// and visible-range notifications.
package render

import "chartcore/internal/model"

// SeriesKind selects the visual series type.
type SeriesKind string

const (
	Candlestick SeriesKind = "candlestick"
	Line        SeriesKind = "line"
	Area        SeriesKind = "area"
	Histogram   SeriesKind = "histogram"
)

// SeriesStyle carries the cosmetic options a surface understands.
type SeriesStyle struct {
	Color     string `json:"color,omitempty"`
	LineWidth int    `json:"lineWidth,omitempty"`
	UpColor   string `json:"upColor,omitempty"`
	DownColor string `json:"downColor,omitempty"`
}

// Series is one data series on a surface.
type Series interface {
	Kind() SeriesKind

	// SetData replaces the series contents with indicator points.
	SetData(points []model.SeriesPoint)

	// SetCandles replaces the series contents with OHLCV bars
	// (candlestick kinds only).
	SetCandles(candles []model.Candle)
}

// Surface is one chart instance. All operations on a removed surface are
// no-ops.
type Surface interface {
	AddSeries(kind SeriesKind, style SeriesStyle) Series
	CreatePriceLine(spec model.PriceLineSpec)
	SetMarkers(markers []model.MarkerSpec)

	// SubscribeVisibleRangeChange registers cb for visible-range
	// notifications and returns an unsubscribe function.
	SubscribeVisibleRangeChange(cb func(model.TimeRange)) (unsubscribe func())

	// SetVisibleRange applies a visible window without notifying
	// subscribers (used for the one-directional main→sub echo).
	SetVisibleRange(r model.TimeRange)

	Resize(width, height int)
	Remove()
}

// Factory creates surfaces bound to named containers. A missing or
// unready container yields ErrNoContainer, which callers treat as a
// skipped render, not a failure.
type Factory interface {
	CreatePane(containerID string) (Surface, error)
}
