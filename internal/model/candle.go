package model

import (
	"encoding/json"
	"time"
)

// Candle represents a single OHLCV bar for a symbol at a given interval.
// Candles are ordered by time, one entry per bar, and are immutable once
// fetched — an interval or period change replaces the whole slice.
type Candle struct {
	Time   time.Time `json:"time"` // bucket start (UTC, interval-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// SeriesPoint is a single {time, value} sample of an indicator series.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// IndicatorSeries maps an indicator key (e.g. "sma20", "rsi") to its
// ordered samples. Keys have independent lifecycles: a key appears when
// the user toggles it on and disappears when toggled off.
type IndicatorSeries map[string][]SeriesPoint

// Latest returns the last value for a key. ok is false when the key is
// absent or empty.
func (s IndicatorSeries) Latest(key string) (float64, bool) {
	pts := s[key]
	if len(pts) == 0 {
		return 0, false
	}
	return pts[len(pts)-1].Value, true
}
