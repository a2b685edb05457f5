package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is the bar interval of a candle.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

// ParseTimeframe returns the timeframe for s or an error if unsupported.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	switch tf {
	case TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d, TF1w:
		return tf, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
}

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	case TF1w:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Candle is one OHLCV bar. Values are never mutated after construction.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
}

var (
	ErrCandleSymbol = errors.New("candle symbol empty")
	ErrCandlePrice  = errors.New("candle close must be positive")
	ErrCandleRange  = errors.New("candle high/low do not bound open/close")
	ErrCandleVolume = errors.New("candle volume negative")
)

// Validate checks the OHLC ordering invariants.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return ErrCandleSymbol
	}
	if !c.Close.IsPositive() {
		return ErrCandlePrice
	}
	if c.Volume.IsNegative() {
		return ErrCandleVolume
	}
	if c.High.LessThan(decimal.Max(c.Open, c.Close)) || c.Low.GreaterThan(decimal.Min(c.Open, c.Close)) {
		return ErrCandleRange
	}
	return nil
}

// MarketData is a normalized batch of candles handed from the data stage to the signal stage.
type MarketData struct {
	Candles   []Candle  `json:"candles"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Latest returns the most recent candle for symbol and timeframe.
func (m MarketData) Latest(symbol string, tf Timeframe) (Candle, bool) {
	var (
		out   Candle
		found bool
	)
	for _, c := range m.Candles {
		if c.Symbol != symbol || c.Timeframe != tf {
			continue
		}
		if !found || c.Timestamp.After(out.Timestamp) {
			out, found = c, true
		}
	}
	return out, found
}

// BySymbol groups candles per symbol, preserving arrival order.
func (m MarketData) BySymbol() map[string][]Candle {
	out := make(map[string][]Candle)
	for _, c := range m.Candles {
		out[c.Symbol] = append(out[c.Symbol], c)
	}
	return out
}
