package indicator

import (
	"strconv"
	"strings"

	"chartcore/internal/model"
)

// Known series keys. Parameterized keys take the form "<name><period>"
// (e.g. "sma20", "ema9"); bare keys use conventional default periods.
const (
	KeyRSI      = "rsi"
	KeyATR      = "atr"
	KeyBBUpper  = "bb_upper"
	KeyBBMiddle = "bb_middle"
	KeyBBLower  = "bb_lower"
)

const (
	defaultRSIPeriod = 14
	defaultATRPeriod = 14
	defaultBBPeriod  = 20
	defaultBBWidth   = 2.0
)

// BuildSeries computes the requested indicator series over a full candle
// slice. Points are emitted only once the indicator is ready, so every
// series is shorter than the candle slice by its warm-up length.
// Unrecognized keys are skipped.
func BuildSeries(candles []model.Candle, keys []string) model.IndicatorSeries {
	out := make(model.IndicatorSeries, len(keys))
	for _, key := range keys {
		switch {
		case key == KeyBBUpper || key == KeyBBMiddle || key == KeyBBLower || key == "bb":
			// All three band series come from one pass; compute once.
			if _, done := out[KeyBBMiddle]; done {
				continue
			}
			upper, middle, lower := bandSeries(candles)
			out[KeyBBUpper] = upper
			out[KeyBBMiddle] = middle
			out[KeyBBLower] = lower
		default:
			ind, ok := forKey(key)
			if !ok {
				continue
			}
			out[key] = run(candles, ind)
		}
	}
	return out
}

// forKey resolves a series key to a fresh indicator instance.
func forKey(key string) (Indicator, bool) {
	switch {
	case key == KeyRSI:
		return NewRSI(defaultRSIPeriod), true
	case key == KeyATR:
		return NewATR(defaultATRPeriod), true
	case strings.HasPrefix(key, "sma"):
		if p, ok := parsePeriod(key, "sma"); ok {
			return NewSMA(p), true
		}
	case strings.HasPrefix(key, "ema"):
		if p, ok := parsePeriod(key, "ema"); ok {
			return NewEMA(p), true
		}
	case strings.HasPrefix(key, "rsi"):
		if p, ok := parsePeriod(key, "rsi"); ok {
			return NewRSI(p), true
		}
	}
	return nil, false
}

func parsePeriod(key, prefix string) (int, bool) {
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func run(candles []model.Candle, ind Indicator) []model.SeriesPoint {
	pts := make([]model.SeriesPoint, 0, len(candles))
	for _, c := range candles {
		ind.Update(c)
		if ind.Ready() {
			pts = append(pts, model.SeriesPoint{Time: c.Time, Value: ind.Value()})
		}
	}
	return pts
}

func bandSeries(candles []model.Candle) (upper, middle, lower []model.SeriesPoint) {
	bb := NewBollinger(defaultBBPeriod, defaultBBWidth)
	for _, c := range candles {
		bb.Update(c)
		if bb.Ready() {
			upper = append(upper, model.SeriesPoint{Time: c.Time, Value: bb.Upper()})
			middle = append(middle, model.SeriesPoint{Time: c.Time, Value: bb.Value()})
			lower = append(lower, model.SeriesPoint{Time: c.Time, Value: bb.Lower()})
		}
	}
	return upper, middle, lower
}
