package stages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"QuantPipe/internal/domain/models"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/pkg/config"

	"github.com/shopspring/decimal"
)

const RiskStageName = "risk_layer"

const (
	ReasonNeutral     = "neutral signal, no execution required"
	ReasonExposureCap = "maximum portfolio exposure reached"
)

const (
	pricePlaces int32 = 2
	unitPlaces  int32 = 8
)

var ErrNonPositivePortfolio = errors.New("portfolio value must be positive")

// RiskStage sizes positions and approves or rejects signals against the
// portfolio exposure budget. Approval reserves the position's notional value
// until ReleaseExposure or ResetExposure returns it.
type RiskStage struct {
	lifecycle
	cfg   config.RiskStageConfig
	level models.RiskLevel

	positionPct, stopPct, targetPct, maxExposure decimal.Decimal

	mu        sync.Mutex
	portfolio decimal.Decimal
	exposure  decimal.Decimal
	positions map[string]decimal.Decimal
}

func NewRiskStage(cfg config.RiskStageConfig) (*RiskStage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RiskStage{
		lifecycle:   lifecycle{name: RiskStageName, enabled: cfg.Enabled},
		cfg:         cfg,
		level:       models.RiskLevel(cfg.RiskLevel),
		positionPct: decimal.NewFromFloat(cfg.MaxPositionSizePct),
		stopPct:     decimal.NewFromFloat(cfg.StopLossPct),
		targetPct:   decimal.NewFromFloat(cfg.TakeProfitPct),
		maxExposure: decimal.NewFromFloat(cfg.MaxPortfolioExposurePct),
		portfolio:   decimal.NewFromFloat(cfg.PortfolioValue),
		exposure:    decimal.Zero,
		positions:   make(map[string]decimal.Decimal),
	}, nil
}

func (s *RiskStage) Initialize(ctx context.Context) error {
	return s.start()
}

// Process returns one assessment per signal, in input order.
func (s *RiskStage) Process(ctx context.Context, signals []models.Signal) ([]models.RiskAssessment, error) {
	if err := s.mustBeReady(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RiskAssessment, 0, len(signals))
	for _, sig := range signals {
		out = append(out, s.assessLocked(sig))
	}
	return out, nil
}

func (s *RiskStage) assessLocked(sig models.Signal) models.RiskAssessment {
	ratio := s.exposure.Div(s.portfolio)
	a := models.RiskAssessment{
		Signal:      sig,
		ExposurePct: ratio.Mul(hundred).InexactFloat64(),
	}

	if sig.Direction == models.DirectionHold {
		a.RejectionReason = ReasonNeutral
		return a
	}
	if ratio.GreaterThanOrEqual(s.maxExposure) {
		a.RejectionReason = ReasonExposureCap
		return a
	}

	size, ratioExact := s.sizeLocked(sig)
	a.PositionSize = &size
	// gate on the exact ratio; the reported one is rounded
	if ratioExact.LessThan(decimal.NewFromFloat(s.cfg.MinRiskRewardRatio)) {
		a.RejectionReason = fmt.Sprintf("risk/reward ratio %s below minimum %v",
			ratioExact.RoundBank(4).String(), s.cfg.MinRiskRewardRatio)
		return a
	}

	a.Approved = true
	s.exposure = s.exposure.Add(size.NotionalValue)
	s.positions[sig.Symbol] = s.positions[sig.Symbol].Add(size.NotionalValue)
	return a
}

func (s *RiskStage) sizeLocked(sig models.Signal) (models.PositionSize, decimal.Decimal) {
	price := sig.Price
	budget := s.portfolio.Mul(s.positionPct).Mul(s.level.Multiplier())
	if sig.SizeMultiplier > 0 {
		budget = budget.Mul(decimal.NewFromFloat(sig.SizeMultiplier))
	}

	one := decimal.NewFromInt(1)
	var stop, target decimal.Decimal
	if sig.Direction == models.DirectionBuy {
		stop = price.Mul(one.Sub(s.stopPct))
		target = price.Mul(one.Add(s.targetPct))
	} else {
		stop = price.Mul(one.Add(s.stopPct))
		target = price.Mul(one.Sub(s.targetPct))
	}

	risk := price.Sub(stop).Abs()
	reward := target.Sub(price).Abs()
	ratio := decimal.Zero
	if risk.IsPositive() {
		ratio = reward.Div(risk)
	}

	units := decimal.Zero
	if price.IsPositive() {
		units = budget.Div(price).RoundBank(unitPlaces)
	}

	roundedStop, roundedTarget := stop.RoundBank(pricePlaces), target.RoundBank(pricePlaces)
	if !ordered(sig.Direction, roundedStop, price, roundedTarget) {
		// sub-cent instruments: the 2-place increment would collapse the bracket
		roundedStop, roundedTarget = stop, target
	}

	return models.PositionSize{
		Symbol:          sig.Symbol,
		Units:           units,
		NotionalValue:   budget.RoundBank(pricePlaces),
		RiskAmount:      s.portfolio.Mul(s.stopPct).RoundBank(pricePlaces),
		StopLossPrice:   roundedStop,
		TakeProfitPrice: roundedTarget,
		RiskRewardRatio: ratio.RoundBank(2).InexactFloat64(),
	}, ratio
}

func ordered(dir models.Direction, stop, price, target decimal.Decimal) bool {
	if dir == models.DirectionBuy {
		return stop.LessThan(price) && price.LessThan(target)
	}
	return stop.GreaterThan(price) && price.GreaterThan(target)
}

// SetPortfolioValue replaces the sizing base.
func (s *RiskStage) SetPortfolioValue(v decimal.Decimal) error {
	if !v.IsPositive() {
		return ErrNonPositivePortfolio
	}
	s.mu.Lock()
	s.portfolio = v
	s.mu.Unlock()
	return nil
}

func (s *RiskStage) PortfolioValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio
}

// Exposure returns the committed notional value.
func (s *RiskStage) Exposure() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure
}

// ExposurePct returns committed notional as a percentage of the portfolio.
func (s *RiskStage) ExposurePct() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposure.Div(s.portfolio).Mul(hundred).InexactFloat64()
}

// SetExposure overrides the committed notional, e.g. from an external book.
// Per-symbol positions are cleared since they no longer add up.
func (s *RiskStage) SetExposure(v decimal.Decimal) {
	if v.IsNegative() {
		v = decimal.Zero
	}
	s.mu.Lock()
	s.exposure = v
	s.positions = make(map[string]decimal.Decimal)
	s.mu.Unlock()
}

func (s *RiskStage) ResetExposure() { s.SetExposure(decimal.Zero) }

// ReleaseExposure returns notional reserved for symbol, never going below zero.
func (s *RiskStage) ReleaseExposure(symbol string, notional decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.positions[symbol]; ok {
		left := held.Sub(notional)
		if left.IsPositive() {
			s.positions[symbol] = left
		} else {
			delete(s.positions, symbol)
		}
	}
	s.exposure = decimal.Max(decimal.Zero, s.exposure.Sub(notional))
}

// Positions returns reserved notional per symbol.
func (s *RiskStage) Positions() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// Shutdown clears positions and exposure.
func (s *RiskStage) Shutdown(ctx context.Context) error {
	s.ResetExposure()
	s.stop()
	return nil
}

var _ domsvc.Stage[[]models.Signal, []models.RiskAssessment] = (*RiskStage)(nil)
