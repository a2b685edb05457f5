package stages

import (
	"QuantPipe/internal/domain/models"

	"github.com/shopspring/decimal"
)

// NeutralRSI is returned while history is too short for a full window.
const NeutralRSI = 50.0

var hundred = decimal.NewFromInt(100)

// RSI is the simple-average relative strength index over the last period
// close-to-close changes, rounded half-even to 2 places.
func RSI(closes []decimal.Decimal, period int) float64 {
	if period < 1 || len(closes) < period+1 {
		return NeutralRSI
	}
	window := closes[len(closes)-period-1:]

	gains, losses := decimal.Zero, decimal.Zero
	for i := 1; i < len(window); i++ {
		delta := window[i].Sub(window[i-1])
		switch {
		case delta.IsPositive():
			gains = gains.Add(delta)
		case delta.IsNegative():
			losses = losses.Sub(delta)
		}
	}
	if losses.IsZero() {
		return 100
	}

	// avg_gain/avg_loss share the period divisor
	rs := gains.Div(losses)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return rsi.RoundBank(2).InexactFloat64()
}

// RSIZone maps an oscillator value to 1 overbought, -1 oversold, 0 otherwise.
func RSIZone(rsi, overbought, oversold float64) float64 {
	switch {
	case rsi >= overbought:
		return 1
	case rsi <= oversold:
		return -1
	default:
		return 0
	}
}

// PriceChange is the fractional move from prev to last. ok is false when prev is not positive.
func PriceChange(prev, last decimal.Decimal) (decimal.Decimal, bool) {
	if !prev.IsPositive() {
		return decimal.Zero, false
	}
	return last.Sub(prev).Div(prev), true
}

func closes(candles []models.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
