package alert

import (
	"fmt"

	"QuantPipe/internal/domain/models"
)

// DirectionFor maps an alert type onto a trade direction.
func DirectionFor(t models.AlertType) models.Direction {
	switch t {
	case models.AlertLongEntry, models.AlertShortExit:
		return models.DirectionBuy
	case models.AlertShortEntry, models.AlertLongExit, models.AlertStopLoss, models.AlertTakeProfit:
		return models.DirectionSell
	case models.AlertCustom:
		return models.DirectionHold
	default:
		return models.DirectionHold
	}
}

// ToSignal converts an alert into a moderate-strength signal. multiplier
// scales position size downstream; zero leaves it unscaled.
func ToSignal(a models.Alert, confidence, multiplier float64) models.Signal {
	return models.Signal{
		Symbol:         a.Symbol,
		Direction:      DirectionFor(a.Type),
		Strength:       models.StrengthModerate,
		Price:          a.Price,
		Timestamp:      a.Timestamp,
		Confidence:     models.ClampConfidence(confidence),
		Source:         models.SourceAlert,
		Strategy:       a.Strategy,
		SizeMultiplier: multiplier,
	}
}

// Describe renders the processor's acceptance message.
func Describe(s models.Signal) string {
	return fmt.Sprintf("Alert converted to %s signal", s.Direction)
}
