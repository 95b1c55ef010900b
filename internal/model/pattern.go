package model

import "time"

// Direction classifies a pattern or signal as bullish, bearish or neutral.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// PatternEntry is an externally produced pattern detection. Read-only to
// this core. Confidence may arrive on a [0,1] or [0,100] scale; use
// ConfidencePct for the normalized value.
type PatternEntry struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Confidence  float64   `json:"confidence"`
	StartIndex  int       `json:"startIndex"`
	EndIndex    int       `json:"endIndex"`
	Target      float64   `json:"target,omitempty"`
	StopLoss    float64   `json:"stopLoss,omitempty"`
	Description string    `json:"description,omitempty"`

	// Intelligence-overlay fields consumed by the drawing converter.
	Staleness   float64 `json:"staleness,omitempty"` // 0 fresh .. 1 aged out
	Invalidated bool    `json:"invalidated,omitempty"`
}

// ConfidencePct normalizes confidence to [0,100], defaulting to 50 when
// the source omitted it.
func (p *PatternEntry) ConfidencePct() float64 {
	c := p.Confidence
	if c == 0 {
		return 50
	}
	if c <= 1 {
		c *= 100
	}
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// PriceLevel is a horizontal signal level (support/resistance, Fibonacci).
type PriceLevel struct {
	Price float64 `json:"price"`
	Label string  `json:"label"`
}

// StreamStatus is the lifecycle state of one logical push channel.
type StreamStatus string

const (
	StreamDisconnected StreamStatus = "disconnected"
	StreamConnected    StreamStatus = "connected"
	StreamReconnecting StreamStatus = "reconnecting"
)

// PriceTick is a live trade update pushed over the price channel.
type PriceTick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume,omitempty"`
	Time   time.Time `json:"time"`
}

// Alert is a triggered user alert pushed over the alert channel.
type Alert struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Condition string    `json:"condition"`
	Price     float64   `json:"price"`
	FiredAt   time.Time `json:"firedAt"`
}
