// Package indicator provides technical indicator calculations over candle data.
//
// All indicators implement the Indicator interface, receiving candles and
// producing float64 values. Updates are O(1) per candle; Series builds the
// per-key point sequences consumed by sub-panes and the overlay engine.
package indicator

import "chartcore/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if a candle with this close
	// price were added next, WITHOUT mutating internal state. Used for
	// live updates applied from forming price ticks.
	Peek(close float64) float64

	// Reset clears the indicator state for reuse.
	Reset()
}
