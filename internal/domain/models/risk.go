package models

import "github.com/shopspring/decimal"

// RiskLevel scales the per-position budget.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskModerate     RiskLevel = "moderate"
	RiskAggressive   RiskLevel = "aggressive"
)

// Multiplier returns the position budget factor for the level.
func (l RiskLevel) Multiplier() decimal.Decimal {
	switch l {
	case RiskConservative:
		return decimal.NewFromFloat(0.5)
	case RiskAggressive:
		return decimal.NewFromFloat(1.5)
	default:
		return decimal.NewFromInt(1)
	}
}

// PositionSize is the sizing result for one signal.
type PositionSize struct {
	Symbol          string          `json:"symbol"`
	Units           decimal.Decimal `json:"units"`
	NotionalValue   decimal.Decimal `json:"notional_value"`
	RiskAmount      decimal.Decimal `json:"risk_amount"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	RiskRewardRatio float64         `json:"risk_reward_ratio"`
}

// RiskAssessment is the approval decision for one signal.
// Approved assessments always carry a PositionSize; rejected ones always carry a reason.
type RiskAssessment struct {
	Signal          Signal        `json:"signal"`
	Approved        bool          `json:"approved"`
	PositionSize    *PositionSize `json:"position_size,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ExposurePct     float64       `json:"portfolio_exposure_pct"`
}
