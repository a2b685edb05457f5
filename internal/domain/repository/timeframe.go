package repository

import "QuantPipe/internal/domain/models"

// DefaultTimeframe returns the timeframe assumed for feeds and alerts that omit one.
func DefaultTimeframe() models.Timeframe { return models.TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
// Common vendor spellings ("60", "1H", "D") are accepted.
func NormalizeTimeframe(s string) models.Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	if tf, err := models.ParseTimeframe(s); err == nil {
		return tf
	}
	switch s {
	case "1":
		return models.TF1m
	case "5":
		return models.TF5m
	case "15":
		return models.TF15m
	case "30":
		return models.TF30m
	case "60", "1H":
		return models.TF1h
	case "240", "4H":
		return models.TF4h
	case "D", "1D":
		return models.TF1d
	case "W", "1W":
		return models.TF1w
	}
	return DefaultTimeframe()
}
