package overlay

import (
	"sort"
	"strings"

	"chartcore/internal/model"
)

// tolerancePct is the clustering tolerance as a fraction of latest close.
const tolerancePct = 0.03

// Confluence clusters price signals into zones where at least two
// independent signals coincide.
//
// Signals are scanned in a fixed priority order: support/resistance
// levels, then Fibonacci levels, then moving averages at the latest bar,
// then Bollinger band edges. Each signal joins the FIRST existing bucket
// whose key is within half the tolerance of its price; otherwise it opens
// a new bucket keyed at that price. The ordering is intentional policy —
// earlier sources anchor bucket keys.
func Confluence(candles []model.Candle, indicators model.IndicatorSeries,
	levels, fib []model.PriceLevel) []model.ConfluenceZone {

	if len(candles) == 0 {
		return nil
	}
	close := candles[len(candles)-1].Close
	if close <= 0 {
		return nil
	}
	halfTol := close * tolerancePct / 2

	type bucket struct {
		key     float64
		signals []string
	}
	var buckets []*bucket

	add := func(price float64, label string) {
		for _, b := range buckets {
			if abs(b.key-price) <= halfTol {
				b.signals = append(b.signals, label)
				return
			}
		}
		buckets = append(buckets, &bucket{key: price, signals: []string{label}})
	}

	for _, l := range levels {
		add(l.Price, orDefault(l.Label, "S/R"))
	}
	for _, l := range fib {
		add(l.Price, orDefault(l.Label, "Fib"))
	}

	// Moving averages at the latest bar, in deterministic key order.
	for _, key := range sortedMAKeys(indicators) {
		if v, ok := indicators.Latest(key); ok {
			add(v, strings.ToUpper(key))
		}
	}

	if v, ok := indicators.Latest("bb_upper"); ok {
		add(v, "BB Upper")
	}
	if v, ok := indicators.Latest("bb_lower"); ok {
		add(v, "BB Lower")
	}

	zones := make([]model.ConfluenceZone, 0, len(buckets))
	for _, b := range buckets {
		if len(b.signals) < 2 {
			continue
		}
		strength := float64(len(b.signals)) * 25
		if strength > 100 {
			strength = 100
		}
		bias := model.BiasResistance
		if b.key < close {
			bias = model.BiasSupport
		}
		zones = append(zones, model.ConfluenceZone{
			PriceLevel: b.key,
			Strength:   strength,
			Signals:    b.signals,
			Bias:       bias,
		})
	}

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].Strength > zones[j].Strength
	})
	return zones
}

// TopZones caps a zone list to the strongest n for display.
func TopZones(zones []model.ConfluenceZone, n int) []model.ConfluenceZone {
	if len(zones) <= n {
		return zones
	}
	return zones[:n]
}

func sortedMAKeys(indicators model.IndicatorSeries) []string {
	var keys []string
	for k := range indicators {
		if strings.HasPrefix(k, "sma") || strings.HasPrefix(k, "ema") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
