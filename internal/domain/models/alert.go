package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType is the closed set of inbound alert kinds.
type AlertType string

const (
	AlertLongEntry  AlertType = "long_entry"
	AlertLongExit   AlertType = "long_exit"
	AlertShortEntry AlertType = "short_entry"
	AlertShortExit  AlertType = "short_exit"
	AlertStopLoss   AlertType = "stop_loss"
	AlertTakeProfit AlertType = "take_profit"
	AlertCustom     AlertType = "custom"
)

// Alert is a normalized inbound webhook alert.
type Alert struct {
	ID        string            `json:"alert_id"`
	Type      AlertType         `json:"alert_type"`
	Symbol    string            `json:"symbol"`
	Exchange  string            `json:"exchange,omitempty"`
	Price     decimal.Decimal   `json:"price"`
	Timestamp time.Time         `json:"timestamp"`
	Strategy  string            `json:"strategy_name,omitempty"`
	Timeframe string            `json:"timeframe,omitempty"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Strategy is a registered alert-producing strategy.
type Strategy struct {
	Name           string   `json:"name" yaml:"name" validate:"required"`
	Version        string   `json:"version" yaml:"version" default:"1.0.0"`
	Description    string   `json:"description,omitempty" yaml:"description"`
	Symbols        []string `json:"symbols,omitempty" yaml:"symbols"`
	Timeframes     []string `json:"timeframes,omitempty" yaml:"timeframes"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	RiskMultiplier float64  `json:"risk_multiplier" yaml:"risk_multiplier" default:"1.0" validate:"gte=0.1,lte=3"`
	MaxPositions   int      `json:"max_positions" yaml:"max_positions" default:"5" validate:"gte=1"`
}

// AlertResult is the outcome of handling one alert.
type AlertResult struct {
	Alert     Alert        `json:"alert"`
	Executed  bool         `json:"executed"`
	Duplicate bool         `json:"duplicate,omitempty"`
	Signal    *Signal      `json:"signal,omitempty"`
	Cycle     *CycleResult `json:"cycle,omitempty"`
	Message   string       `json:"message"`
	LatencyMs float64      `json:"execution_time_ms"`
}
