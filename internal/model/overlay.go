package model

import "time"

// PatternAnnotation is a drawable highlight box derived from a pattern.
// Ephemeral: recomputed on every derivation call, never mutated.
type PatternAnnotation struct {
	Name       string    `json:"name"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,100]
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	High       float64   `json:"high"` // max high within the pattern slice
	Low        float64   `json:"low"`  // min low within the pattern slice
}

// ZoneBias classifies a confluence zone relative to the latest close.
type ZoneBias string

const (
	BiasSupport    ZoneBias = "support"
	BiasResistance ZoneBias = "resistance"
)

// ConfluenceZone is a price level where at least two independent signals
// coincide. Ephemeral, never persisted.
type ConfluenceZone struct {
	PriceLevel float64  `json:"priceLevel"`
	Strength   float64  `json:"strength"` // min(100, signals*25)
	Signals    []string `json:"signals"`  // contributing labels, insertion order
	Bias       ZoneBias `json:"bias"`
}

// PredictionZone is the derived near-term price range.
type PredictionZone struct {
	Upper      float64   `json:"upper"`
	Lower      float64   `json:"lower"`
	Midline    float64   `json:"midline"`
	Bias       Direction `json:"bias"`
	Confidence float64   `json:"confidence"` // [0,100], avg pattern confidence
}

// SubScore is one bounded component of the health score.
type SubScore struct {
	Value float64 `json:"value"` // [0,100]
	Label string  `json:"label"` // "N/A" when history is insufficient
}

// HealthScore is the composite 0-100 market condition summary.
type HealthScore struct {
	Trend      SubScore `json:"trend"`
	Momentum   SubScore `json:"momentum"`
	Volatility SubScore `json:"volatility"`
	Volume     SubScore `json:"volume"`
	Overall    float64  `json:"overall"` // round(mean of the four)
	Label      string   `json:"label"`   // Strong/Healthy/Neutral/Weak
	Color      string   `json:"color"`   // green/blue/yellow/red
}

// PriceLineSpec describes a horizontal price line render primitive.
type PriceLineSpec struct {
	Price     float64 `json:"price"`
	Color     string  `json:"color"`
	LineWidth int     `json:"lineWidth"`
	Style     string  `json:"style"` // solid|dashed|dotted
	Title     string  `json:"title"`
}

// MarkerSpec describes a bar-anchored marker render primitive.
type MarkerSpec struct {
	Time     time.Time `json:"time"`
	Position string    `json:"position"` // aboveBar|belowBar
	Shape    string    `json:"shape"`    // arrowUp|arrowDown|circle|square
	Color    string    `json:"color"`
	Text     string    `json:"text,omitempty"`
}

// OverlayPrimitives is the output of AI drawing conversion: everything a
// render surface needs to draw one intelligence payload.
type OverlayPrimitives struct {
	PriceLines []PriceLineSpec `json:"priceLines"`
	Markers    []MarkerSpec    `json:"markers"`
	Drawings   []Drawing       `json:"drawings"` // importable into the annotation engine
}
