package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side a signal calls for.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Strength grades a signal.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// SignalSource tells where a signal was produced.
type SignalSource string

const (
	SourceMomentum SignalSource = "momentum"
	SourceAlert    SignalSource = "alert"
)

// Signal is a directional call for one symbol.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Direction  Direction          `json:"direction"`
	Strength   Strength           `json:"strength"`
	Price      decimal.Decimal    `json:"price"`
	Timestamp  time.Time          `json:"timestamp"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Source     SignalSource       `json:"source"`
	Strategy   string             `json:"strategy,omitempty"`
	// SizeMultiplier scales the position budget; zero means 1.
	SizeMultiplier float64 `json:"size_multiplier,omitempty"`
}

// ClampConfidence bounds v to [0,1].
func ClampConfidence(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
