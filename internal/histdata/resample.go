package histdata

import (
	"sort"
	"time"

	"chartcore/internal/model"
)

// Resample aggregates candles into bucket-aligned bars: open from the
// first bar in a bucket, close from the last, high/low extremes, volume
// summed. Input order does not matter; the output is time-ordered. A
// trailing partial bucket is emitted as-is.
func Resample(candles []model.Candle, bucket time.Duration) []model.Candle {
	sec := int64(bucket / time.Second)
	if sec <= 0 || len(candles) == 0 {
		return append([]model.Candle(nil), candles...)
	}

	src := append([]model.Candle(nil), candles...)
	sort.Slice(src, func(i, j int) bool { return src[i].Time.Before(src[j].Time) })

	byBucket := make(map[int64]*model.Candle)
	var order []int64
	for _, c := range src {
		ts := c.Time.Unix()
		start := ts - ts%sec

		agg, ok := byBucket[start]
		if !ok {
			nc := c
			nc.Time = time.Unix(start, 0).UTC()
			byBucket[start] = &nc
			order = append(order, start)
			continue
		}
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Close = c.Close
		agg.Volume += c.Volume
	}

	out := make([]model.Candle, 0, len(order))
	for _, start := range order {
		out = append(out, *byBucket[start])
	}
	return out
}
