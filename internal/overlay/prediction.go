package overlay

import "chartcore/internal/model"

const (
	defaultStopPct     = 0.03 // close±3% stop fallback
	fallbackRangePct   = 0.05 // close±5% when no patterns and no bands
	noPatternConfident = 40
)

// Prediction derives the expected near-term price range from targeted
// pattern entries. The majority side's average target becomes that
// side's boundary and the average of its stops (or a close±3% default)
// the opposite boundary. Ties and empty inputs fall back to the latest
// Bollinger Band edges, then to close±5%.
//
// Note the boundaries are assigned asymmetrically per side with no
// reordering: the zone reports exactly what the rules produce.
func Prediction(candles []model.Candle, patterns []model.PatternEntry,
	indicators model.IndicatorSeries) *model.PredictionZone {

	if len(candles) == 0 {
		return nil
	}
	close := candles[len(candles)-1].Close

	var (
		bullTargets, bullStops []float64
		bearTargets, bearStops []float64
	)
	for _, p := range patterns {
		if p.Target == 0 {
			continue
		}
		switch p.Direction {
		case model.Bullish:
			bullTargets = append(bullTargets, p.Target)
			if p.StopLoss != 0 {
				bullStops = append(bullStops, p.StopLoss)
			}
		case model.Bearish:
			bearTargets = append(bearTargets, p.Target)
			if p.StopLoss != 0 {
				bearStops = append(bearStops, p.StopLoss)
			}
		}
	}

	zone := model.PredictionZone{Confidence: avgConfidence(patterns)}

	switch {
	case len(bullTargets) > len(bearTargets):
		zone.Bias = model.Bullish
		zone.Upper = mean(bullTargets)
		zone.Lower = meanOr(bullStops, close*(1-defaultStopPct))

	case len(bearTargets) > len(bullTargets):
		zone.Bias = model.Bearish
		zone.Lower = mean(bearTargets)
		zone.Upper = meanOr(bearStops, close*(1+defaultStopPct))

	default:
		// Tie or no targeted patterns: band fallback, then flat-range fallback.
		zone.Bias = model.Neutral
		upper, okU := indicators.Latest("bb_upper")
		lower, okL := indicators.Latest("bb_lower")
		if okU && okL {
			zone.Upper, zone.Lower = upper, lower
		} else {
			zone.Upper = close * (1 + fallbackRangePct)
			zone.Lower = close * (1 - fallbackRangePct)
		}
	}

	zone.Midline = (zone.Upper + zone.Lower) / 2
	return &zone
}

func avgConfidence(patterns []model.PatternEntry) float64 {
	if len(patterns) == 0 {
		return noPatternConfident
	}
	sum := 0.0
	for i := range patterns {
		sum += patterns[i].ConfidencePct()
	}
	return sum / float64(len(patterns))
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func meanOr(vals []float64, fallback float64) float64 {
	if len(vals) == 0 {
		return fallback
	}
	return mean(vals)
}
