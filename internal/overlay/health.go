package overlay

import (
	"math"

	"chartcore/internal/indicator"
	"chartcore/internal/model"
)

// minHealthBars is the minimum history for real sub-scores; below it all
// four default to 50 / "N/A".
const minHealthBars = 20

// Health computes the composite health score: four independently bounded
// [0,100] sub-scores (trend, momentum, volatility, volume) and their
// rounded mean.
func Health(candles []model.Candle, indicators model.IndicatorSeries) model.HealthScore {
	na := model.SubScore{Value: 50, Label: "N/A"}
	h := model.HealthScore{Trend: na, Momentum: na, Volatility: na, Volume: na}

	if len(candles) >= minHealthBars {
		close := candles[len(candles)-1].Close
		h.Trend = trendScore(close, indicators)
		h.Momentum = momentumScore(indicators)
		h.Volatility = volatilityScore(candles, close, indicators)
		h.Volume = volumeScore(candles)
	}

	h.Overall = math.Round((h.Trend.Value + h.Momentum.Value + h.Volatility.Value + h.Volume.Value) / 4)

	switch {
	case h.Overall >= 75:
		h.Label, h.Color = "Strong", "green"
	case h.Overall >= 55:
		h.Label, h.Color = "Healthy", "blue"
	case h.Overall >= 40:
		h.Label, h.Color = "Neutral", "yellow"
	default:
		h.Label, h.Color = "Weak", "red"
	}
	return h
}

// trendScore awards 25 points per bullish alignment condition, each
// evaluated only when the relevant series is present.
func trendScore(close float64, indicators model.IndicatorSeries) model.SubScore {
	score := 0.0
	checks := 0

	sma20, ok20 := indicators.Latest("sma20")
	sma50, ok50 := indicators.Latest("sma50")
	sma200, ok200 := indicators.Latest("sma200")

	if ok20 {
		checks++
		if close > sma20 {
			score += 25
		}
	}
	if ok50 {
		checks++
		if close > sma50 {
			score += 25
		}
	}
	if ok20 && ok50 {
		checks++
		if sma20 > sma50 {
			score += 25
		}
	}
	if ok200 {
		checks++
		if close > sma200 {
			score += 25
		}
	}

	if checks == 0 {
		return model.SubScore{Value: 50, Label: "N/A"}
	}

	label := "Bearish"
	switch {
	case score >= 75:
		label = "Bullish"
	case score >= 50:
		label = "Leaning bullish"
	case score >= 25:
		label = "Mixed"
	}
	return model.SubScore{Value: score, Label: label}
}

func momentumScore(indicators model.IndicatorSeries) model.SubScore {
	rsi, ok := indicators.Latest(indicator.KeyRSI)
	if !ok {
		return model.SubScore{Value: 50, Label: "N/A"}
	}
	switch {
	case rsi > 70:
		return model.SubScore{Value: 85, Label: "Overbought"}
	case rsi > 50:
		return model.SubScore{Value: 65, Label: "Bullish"}
	case rsi > 30:
		return model.SubScore{Value: 35, Label: "Bearish"}
	default:
		return model.SubScore{Value: 15, Label: "Oversold"}
	}
}

// volatilityScore scores the 14-bar ATR as a percentage of latest close.
// Uses the precomputed "atr" series when present, otherwise computes it
// from the candles.
func volatilityScore(candles []model.Candle, close float64, indicators model.IndicatorSeries) model.SubScore {
	atr, ok := indicators.Latest(indicator.KeyATR)
	if !ok {
		a := indicator.NewATR(14)
		for _, c := range candles {
			a.Update(c)
		}
		if !a.Ready() {
			return model.SubScore{Value: 50, Label: "N/A"}
		}
		atr = a.Value()
	}
	if close <= 0 {
		return model.SubScore{Value: 50, Label: "N/A"}
	}

	pct := atr / close * 100
	switch {
	case pct < 1:
		return model.SubScore{Value: 80, Label: "Low"}
	case pct < 2:
		return model.SubScore{Value: 65, Label: "Moderate"}
	case pct < 4:
		return model.SubScore{Value: 45, Label: "Elevated"}
	default:
		return model.SubScore{Value: 25, Label: "High"}
	}
}

// volumeScore compares the trailing-5-bar average volume to the
// trailing-20-bar average.
func volumeScore(candles []model.Candle) model.SubScore {
	n := len(candles)
	if n < minHealthBars {
		return model.SubScore{Value: 50, Label: "N/A"}
	}

	avg := func(k int) float64 {
		sum := 0.0
		for _, c := range candles[n-k:] {
			sum += c.Volume
		}
		return sum / float64(k)
	}

	base := avg(20)
	if base == 0 {
		return model.SubScore{Value: 50, Label: "N/A"}
	}
	ratio := avg(5) / base

	switch {
	case ratio > 1.5:
		return model.SubScore{Value: 85, Label: "Surging"}
	case ratio > 1:
		return model.SubScore{Value: 65, Label: "Above average"}
	case ratio > 0.5:
		return model.SubScore{Value: 40, Label: "Below average"}
	default:
		return model.SubScore{Value: 20, Label: "Dry"}
	}
}
