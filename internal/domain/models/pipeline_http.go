package models

// Requests for pipeline HTTP endpoints. Defined in domain for consistency and reuse.

type CandleRequest struct {
	Symbol    string `json:"symbol" validate:"required"`
	Timeframe string `json:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	Timestamp string `json:"timestamp"`
	Open      string `json:"open" validate:"required,numeric"`
	High      string `json:"high" validate:"required,numeric"`
	Low       string `json:"low" validate:"required,numeric"`
	Close     string `json:"close" validate:"required,numeric"`
	Volume    string `json:"volume" default:"0" validate:"numeric"`
}

type CycleRequest struct {
	Candles []CandleRequest `json:"candles" validate:"required,min=1,max=5000,dive"`
}

type OrdersRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Open   bool   `query:"open" json:"open"`
}

type ExposureRequest struct {
	Exposure string `json:"exposure" default:"0" validate:"numeric"`
}

type StrategyRequest struct {
	Name           string   `json:"name" validate:"required,max=64"`
	Version        string   `json:"version" default:"1.0.0"`
	Description    string   `json:"description"`
	Symbols        []string `json:"symbols"`
	Timeframes     []string `json:"timeframes" validate:"dive,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	Enabled        *bool    `json:"enabled"`
	RiskMultiplier float64  `json:"risk_multiplier" default:"1.0" validate:"gte=0.1,lte=3"`
	MaxPositions   int      `json:"max_positions" default:"5" validate:"gte=1,lte=100"`
}

// ToStrategy converts the request, enabling the strategy unless told otherwise.
func (r StrategyRequest) ToStrategy() Strategy {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return Strategy{
		Name:           r.Name,
		Version:        r.Version,
		Description:    r.Description,
		Symbols:        r.Symbols,
		Timeframes:     r.Timeframes,
		Enabled:        enabled,
		RiskMultiplier: r.RiskMultiplier,
		MaxPositions:   r.MaxPositions,
	}
}
