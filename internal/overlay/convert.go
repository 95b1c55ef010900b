package overlay

import (
	"fmt"
	"time"

	"chartcore/internal/model"
)

// IntelligencePayload is the raw AI overlay data delivered by the
// intelligence fetch: everything the drawing converter turns into render
// primitives.
type IntelligencePayload struct {
	Patterns          []model.PatternEntry `json:"patterns"`
	TrendLines        []TrendLine          `json:"trendLines"`
	Fibonacci         []SignalLevel        `json:"fibonacci"`
	SupportResistance []SignalLevel        `json:"supportResistance"`
	Channels          []Channel            `json:"channels"`
	TradeTargets      []TradeTarget        `json:"tradeTargets"`
}

// TrendLine is a two-point directional line.
type TrendLine struct {
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	StartPrice  float64         `json:"startPrice"`
	EndPrice    float64         `json:"endPrice"`
	Direction   model.Direction `json:"direction"`
	Staleness   float64         `json:"staleness,omitempty"`
	Invalidated bool            `json:"invalidated,omitempty"`
}

// SignalLevel is a horizontal level with a signal kind.
type SignalLevel struct {
	Price       float64 `json:"price"`
	Label       string  `json:"label,omitempty"`
	Kind        string  `json:"kind"` // support|resistance|fibonacci
	Staleness   float64 `json:"staleness,omitempty"`
	Invalidated bool    `json:"invalidated,omitempty"`
}

// Channel is a pair of parallel trend lines.
type Channel struct {
	Upper       TrendLine `json:"upper"`
	Lower       TrendLine `json:"lower"`
	Staleness   float64   `json:"staleness,omitempty"`
	Invalidated bool      `json:"invalidated,omitempty"`
}

// TradeTarget is a target/stop pair for a directional setup.
type TradeTarget struct {
	Direction   model.Direction `json:"direction"`
	Entry       float64         `json:"entry,omitempty"`
	Target      float64         `json:"target"`
	StopLoss    float64         `json:"stopLoss"`
	Invalidated bool            `json:"invalidated,omitempty"`
}

// Fixed color tables keyed by direction and signal type.
var directionColors = map[model.Direction]string{
	model.Bullish: "#22c55e",
	model.Bearish: "#ef4444",
	model.Neutral: "#eab308",
}

var signalColors = map[string]string{
	"support":    "#3b82f6",
	"resistance": "#f97316",
	"fibonacci":  "#a855f7",
	"target":     "#22c55e",
	"stop":       "#ef4444",
}

// Primitives converts an intelligence payload into render primitives:
// price lines, markers and importable drawings. Invalidated entries are
// suppressed; aged entries decay in opacity and line style as a function
// of staleness.
func Primitives(p IntelligencePayload, candles []model.Candle) model.OverlayPrimitives {
	var out model.OverlayPrimitives

	for _, lvl := range p.SupportResistance {
		if lvl.Invalidated {
			continue
		}
		out.PriceLines = append(out.PriceLines, levelLine(lvl))
	}
	for _, lvl := range p.Fibonacci {
		if lvl.Invalidated {
			continue
		}
		l := lvl
		if l.Kind == "" {
			l.Kind = "fibonacci"
		}
		out.PriceLines = append(out.PriceLines, levelLine(l))
	}

	for _, tt := range p.TradeTargets {
		if tt.Invalidated {
			continue
		}
		out.PriceLines = append(out.PriceLines,
			model.PriceLineSpec{
				Price: tt.Target, Color: signalColors["target"],
				LineWidth: 1, Style: "dashed",
				Title: fmt.Sprintf("Target %.2f", tt.Target),
			},
			model.PriceLineSpec{
				Price: tt.StopLoss, Color: signalColors["stop"],
				LineWidth: 1, Style: "dashed",
				Title: fmt.Sprintf("Stop %.2f", tt.StopLoss),
			})
	}

	for _, pat := range p.Patterns {
		if pat.Invalidated {
			continue
		}
		if m, ok := patternMarker(pat, candles); ok {
			out.Markers = append(out.Markers, m)
		}
	}

	for _, tl := range p.TrendLines {
		if tl.Invalidated {
			continue
		}
		out.Drawings = append(out.Drawings, trendDrawing(tl))
	}
	for _, ch := range p.Channels {
		if ch.Invalidated {
			continue
		}
		upper, lower := ch.Upper, ch.Lower
		if upper.Staleness == 0 {
			upper.Staleness = ch.Staleness
		}
		if lower.Staleness == 0 {
			lower.Staleness = ch.Staleness
		}
		out.Drawings = append(out.Drawings, trendDrawing(upper), trendDrawing(lower))
	}

	return out
}

func levelLine(lvl SignalLevel) model.PriceLineSpec {
	color, ok := signalColors[lvl.Kind]
	if !ok {
		color = directionColors[model.Neutral]
	}
	title := lvl.Label
	if title == "" {
		title = fmt.Sprintf("%s %.2f", lvl.Kind, lvl.Price)
	}
	return model.PriceLineSpec{
		Price:     lvl.Price,
		Color:     fadeColor(color, lvl.Staleness),
		LineWidth: 1,
		Style:     styleFor(lvl.Staleness),
		Title:     title,
	}
}

func patternMarker(pat model.PatternEntry, candles []model.Candle) (model.MarkerSpec, bool) {
	if len(candles) == 0 {
		return model.MarkerSpec{}, false
	}
	idx := pat.EndIndex
	if idx < 0 || idx >= len(candles) {
		idx = len(candles) - 1
	}

	m := model.MarkerSpec{
		Time:  candles[idx].Time,
		Color: fadeColor(directionColors[direction(pat.Direction)], pat.Staleness),
		Text:  pat.Name,
	}
	switch pat.Direction {
	case model.Bearish:
		m.Position, m.Shape = "aboveBar", "arrowDown"
	case model.Bullish:
		m.Position, m.Shape = "belowBar", "arrowUp"
	default:
		m.Position, m.Shape = "aboveBar", "circle"
	}
	return m, true
}

func trendDrawing(tl TrendLine) model.Drawing {
	return model.Drawing{
		ID:   fmt.Sprintf("ai-trend-%d-%d", tl.StartTime.Unix(), tl.EndTime.Unix()),
		Type: model.ToolTrendline,
		Points: []model.DrawingPoint{
			{Time: tl.StartTime, Price: tl.StartPrice},
			{Time: tl.EndTime, Price: tl.EndPrice},
		},
		Color:     fadeColor(directionColors[direction(tl.Direction)], tl.Staleness),
		LineWidth: 2,
		CreatedAt: tl.EndTime,
	}
}

func direction(d model.Direction) model.Direction {
	switch d {
	case model.Bullish, model.Bearish:
		return d
	default:
		return model.Neutral
	}
}

// styleFor decays the line style as an entry ages.
func styleFor(staleness float64) string {
	switch {
	case staleness >= 0.7:
		return "dotted"
	case staleness >= 0.3:
		return "dashed"
	default:
		return "solid"
	}
}

// fadeColor appends an alpha channel that decays linearly from opaque to
// 30% as staleness goes 0 → 1. Colors already carrying alpha pass through.
func fadeColor(hex string, staleness float64) string {
	if len(hex) != 7 || hex[0] != '#' {
		return hex
	}
	if staleness <= 0 {
		return hex
	}
	if staleness > 1 {
		staleness = 1
	}
	alpha := int(255 * (1 - 0.7*staleness))
	return fmt.Sprintf("%s%02x", hex, alpha)
}
