package stages

import (
	"context"
	"slices"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	"QuantPipe/internal/domain/repository"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/pkg/config"

	"github.com/shopspring/decimal"
)

const SignalStageName = "signal_layer"

// Indicator keys in Signal.Indicators.
const (
	IndicatorRSI         = "rsi"
	IndicatorPriceChange = "price_change_pct"
	IndicatorRSIZone     = "rsi_zone"
)

// SignalStage turns a MarketData batch into one momentum signal per symbol.
type SignalStage struct {
	lifecycle
	cfg     config.SignalStageConfig
	history repository.SeriesReader
	now     func() time.Time

	buy, sell, strong, scale decimal.Decimal

	mu     sync.RWMutex
	recent []models.Signal
}

// NewSignalStage validates cfg. history supplies the full retained series for
// the oscillator; when nil or empty the batch candles are used instead.
func NewSignalStage(cfg config.SignalStageConfig, history repository.SeriesReader) (*SignalStage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SignalStage{
		lifecycle: lifecycle{name: SignalStageName, enabled: cfg.Enabled},
		cfg:       cfg,
		history:   history,
		now:       time.Now,
		buy:       decimal.NewFromFloat(cfg.BuyThreshold),
		sell:      decimal.NewFromFloat(cfg.SellThreshold).Neg(),
		strong:    decimal.NewFromFloat(cfg.StrongThreshold),
		scale:     decimal.NewFromFloat(cfg.ConfidenceScale),
	}, nil
}

func (s *SignalStage) Initialize(ctx context.Context) error {
	return s.start()
}

func (s *SignalStage) Process(ctx context.Context, batch models.MarketData) ([]models.Signal, error) {
	if err := s.mustBeReady(); err != nil {
		return nil, err
	}

	groups := batch.BySymbol()
	symbols := make([]string, 0, len(groups))
	for sym := range groups {
		symbols = append(symbols, sym)
	}
	slices.Sort(symbols)

	signals := make([]models.Signal, 0, len(symbols))
	for _, sym := range symbols {
		if sig, ok := s.evaluate(sym, groups[sym]); ok {
			signals = append(signals, sig)
		}
	}

	s.remember(signals)
	return signals, nil
}

// evaluate scores the two most recent batch candles of one symbol.
func (s *SignalStage) evaluate(symbol string, candles []models.Candle) (models.Signal, bool) {
	if len(candles) < 2 {
		return models.Signal{}, false
	}
	last, prev := candles[len(candles)-1], candles[len(candles)-2]
	change, ok := PriceChange(prev.Close, last.Close)
	if !ok {
		return models.Signal{}, false
	}

	direction, strength := models.DirectionHold, models.StrengthWeak
	switch {
	case change.GreaterThan(s.buy):
		direction = models.DirectionBuy
	case change.LessThan(s.sell):
		direction = models.DirectionSell
	}
	if direction != models.DirectionHold {
		strength = models.StrengthModerate
		if change.Abs().GreaterThan(s.strong) {
			strength = models.StrengthStrong
		}
	}

	series := candles
	if s.history != nil {
		if full := s.history.Series(symbol); len(full) > 0 {
			series = full
		}
	}
	rsi := RSI(closes(series), s.cfg.RSIPeriod)

	return models.Signal{
		Symbol:     symbol,
		Direction:  direction,
		Strength:   strength,
		Price:      last.Close,
		Timestamp:  s.now(),
		Confidence: models.ClampConfidence(change.Abs().Mul(s.scale).InexactFloat64()),
		Indicators: map[string]float64{
			IndicatorRSI:         rsi,
			IndicatorPriceChange: change.Mul(hundred).InexactFloat64(),
			IndicatorRSIZone:     RSIZone(rsi, s.cfg.RSIOverbought, s.cfg.RSIOversold),
		},
		Source: models.SourceMomentum,
	}, true
}

func (s *SignalStage) remember(signals []models.Signal) {
	if s.cfg.HistorySize == 0 || len(signals) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, signals...)
	if over := len(s.recent) - s.cfg.HistorySize; over > 0 {
		s.recent = slices.Clone(s.recent[over:])
	}
}

// LatestSignal returns the newest retained signal for symbol.
func (s *SignalStage) LatestSignal(symbol string) (models.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].Symbol == symbol {
			return s.recent[i], true
		}
	}
	return models.Signal{}, false
}

// Shutdown drops retained signals.
func (s *SignalStage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.recent = nil
	s.mu.Unlock()
	s.stop()
	return nil
}

var _ domsvc.Stage[models.MarketData, []models.Signal] = (*SignalStage)(nil)
