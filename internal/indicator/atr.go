package indicator

import "chartcore/internal/model"

// ATR calculates Average True Range using Wilder's smoothing.
// Update is O(1) per candle.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64 // accumulation phase
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	tr := a.trueRange(candle)
	a.count++

	if a.count == 1 {
		// First bar has no previous close; TR degenerates to high-low
		a.prevClose = candle.Close
		a.sum = tr
		return
	}
	a.prevClose = candle.Close

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func (a *ATR) trueRange(c model.Candle) float64 {
	hl := c.High - c.Low
	if a.count == 0 {
		return hl
	}
	hc := abs(c.High - a.prevClose)
	lc := abs(c.Low - a.prevClose)
	tr := hl
	if hc > tr {
		tr = hc
	}
	if lc > tr {
		tr = lc
	}
	return tr
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Peek computes what ATR would be with an additional candle (treated as a
// flat bar at close) without mutating state.
func (a *ATR) Peek(close float64) float64 {
	if a.count < a.period {
		return a.current
	}
	tr := abs(close - a.prevClose)
	p := float64(a.period)
	return (a.current*(p-1) + tr) / p
}

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.count = 0
	a.prevClose = 0
	a.sum = 0
	a.current = 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
