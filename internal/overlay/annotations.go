package overlay

import "chartcore/internal/model"

// Annotations maps pattern entries onto drawable highlight boxes. The
// vertical extent of each box is the max high / min low of the candle
// slice the pattern spans. Patterns without a name or with an empty
// candle range are skipped.
func Annotations(candles []model.Candle, patterns []model.PatternEntry) []model.PatternAnnotation {
	if len(candles) == 0 {
		return nil
	}

	out := make([]model.PatternAnnotation, 0, len(patterns))
	for _, p := range patterns {
		if p.Name == "" {
			continue
		}
		start, end := clampRange(p.StartIndex, p.EndIndex, len(candles))
		if start > end {
			continue
		}

		high := candles[start].High
		low := candles[start].Low
		for i := start + 1; i <= end; i++ {
			if candles[i].High > high {
				high = candles[i].High
			}
			if candles[i].Low < low {
				low = candles[i].Low
			}
		}

		dir := p.Direction
		if dir == "" {
			dir = model.Neutral
		}

		out = append(out, model.PatternAnnotation{
			Name:       p.Name,
			Direction:  dir,
			Confidence: p.ConfidencePct(),
			StartTime:  candles[start].Time,
			EndTime:    candles[end].Time,
			High:       high,
			Low:        low,
		})
	}
	return out
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	return start, end
}
