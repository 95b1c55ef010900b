package indicator

import (
	"math"

	"chartcore/internal/model"
)

// Bollinger calculates Bollinger Bands (middle SMA ± k standard
// deviations) over a rolling window. Maintains rolling sum and sum of
// squares for O(1) updates.
type Bollinger struct {
	period int
	k      float64
	buf    []float64
	idx    int
	count  int
	sum    float64
	sumSq  float64

	middle float64
	upper  float64
	lower  float64
}

// NewBollinger creates Bollinger Bands with the given period and band
// width in standard deviations (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      k,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) Name() string { return "BB" }

func (b *Bollinger) Update(candle model.Candle) {
	price := candle.Close

	if b.count >= b.period {
		old := b.buf[b.idx]
		b.sum -= old
		b.sumSq -= old * old
	}

	b.buf[b.idx] = price
	b.sum += price
	b.sumSq += price * price
	b.idx = (b.idx + 1) % b.period
	b.count++

	if b.count >= b.period {
		b.recompute()
	}
}

func (b *Bollinger) recompute() {
	n := float64(b.period)
	mean := b.sum / n
	variance := b.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0 // float cancellation guard
	}
	sd := math.Sqrt(variance)
	b.middle = mean
	b.upper = mean + b.k*sd
	b.lower = mean - b.k*sd
}

// Value returns the middle band. Use Upper/Lower for the band edges.
func (b *Bollinger) Value() float64 { return b.middle }

// Upper returns the upper band edge.
func (b *Bollinger) Upper() float64 { return b.upper }

// Lower returns the lower band edge.
func (b *Bollinger) Lower() float64 { return b.lower }

func (b *Bollinger) Ready() bool { return b.count >= b.period }

// Peek computes the middle band with an additional close without
// mutating state.
func (b *Bollinger) Peek(close float64) float64 {
	if b.count < b.period {
		return (b.sum + close) / float64(b.count+1)
	}
	return (b.sum - b.buf[b.idx] + close) / float64(b.period)
}

// Reset clears the band state for reuse.
func (b *Bollinger) Reset() {
	b.idx = 0
	b.count = 0
	b.sum = 0
	b.sumSq = 0
	b.middle = 0
	b.upper = 0
	b.lower = 0
	for i := range b.buf {
		b.buf[i] = 0
	}
}
