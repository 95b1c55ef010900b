// Package overlay derives chart analytics from candle, indicator and
// pattern data: pattern highlight annotations, confluence zones, a
// predicted price range and a composite health score, plus conversion of
// raw intelligence payloads into drawable primitives.
//
// Everything here is a pure function of its inputs. Callers recompute on
// input change; no state is kept between calls.
package overlay

import "chartcore/internal/model"

// Inputs are read-only snapshots fed to a derivation call.
type Inputs struct {
	Candles           []model.Candle
	Patterns          []model.PatternEntry
	Indicators        model.IndicatorSeries
	SupportResistance []model.PriceLevel
	Fibonacci         []model.PriceLevel
}

// Outputs are the derived analytics for one Inputs snapshot.
type Outputs struct {
	Annotations []model.PatternAnnotation `json:"annotations"`
	Zones       []model.ConfluenceZone    `json:"zones"`
	Prediction  *model.PredictionZone     `json:"prediction"`
	Health      model.HealthScore         `json:"health"`
}

// Derive recomputes every derived analytic from the input snapshot.
func Derive(in Inputs) Outputs {
	return Outputs{
		Annotations: Annotations(in.Candles, in.Patterns),
		Zones:       Confluence(in.Candles, in.Indicators, in.SupportResistance, in.Fibonacci),
		Prediction:  Prediction(in.Candles, in.Patterns, in.Indicators),
		Health:      Health(in.Candles, in.Indicators),
	}
}
