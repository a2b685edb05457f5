package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"QuantPipe/internal/alert"
	"QuantPipe/internal/domain/models"
	drepo "QuantPipe/internal/domain/repository"
	"QuantPipe/pkg/cache"
	"QuantPipe/pkg/config"
	"QuantPipe/pkg/logger"

	"github.com/go-playground/validator/v10"
)

var (
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrDedupUnavailable  = errors.New("alert de-duplication store unavailable")
	strategyValidator    = validator.New()
	errNoSignalsExecutor = errors.New("alert processor: nil signal executor")
)

// SignalExecutor runs signals through risk and execution. *Engine satisfies it.
type SignalExecutor interface {
	ProcessSignals(ctx context.Context, signals []models.Signal) (*models.CycleResult, error)
}

// AlertProcessor turns webhook alerts into engine signals. Alerts are
// de-duplicated by ID for DedupTTL; a replayed ID gets the first result back.
type AlertProcessor struct {
	exec    SignalExecutor
	store   cache.Service
	cfg     config.WebhookConfig
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu         sync.RWMutex
	strategies map[string]models.Strategy

	histMu  sync.Mutex
	history []models.Alert
}

func NewAlertProcessor(exec SignalExecutor, store cache.Service, cfg config.WebhookConfig,
	metrics drepo.Metrics, log *logger.Logger) (*AlertProcessor, error) {
	if exec == nil {
		return nil, errNoSignalsExecutor
	}
	if store == nil {
		store = cache.NewMemoryCache()
	}
	if log == nil {
		log = logger.Nop()
	}

	p := &AlertProcessor{
		exec:       exec,
		store:      store,
		cfg:        cfg,
		metrics:    orNop(metrics),
		log:        log,
		now:        time.Now,
		strategies: make(map[string]models.Strategy),
	}
	for _, sc := range cfg.Strategies {
		if err := p.Register(strategyFromConfig(sc)); err != nil {
			return nil, fmt.Errorf("strategy %q: %w", sc.Name, err)
		}
	}
	return p, nil
}

func strategyFromConfig(sc config.StrategyConfig) models.Strategy {
	enabled := true
	if sc.Enabled != nil {
		enabled = *sc.Enabled
	}
	return models.Strategy{
		Name:           sc.Name,
		Version:        sc.Version,
		Description:    sc.Description,
		Symbols:        sc.Symbols,
		Timeframes:     sc.Timeframes,
		Enabled:        enabled,
		RiskMultiplier: sc.RiskMultiplier,
		MaxPositions:   sc.MaxPositions,
	}
}

// Register adds or replaces a strategy.
func (p *AlertProcessor) Register(s models.Strategy) error {
	if err := strategyValidator.Struct(s); err != nil {
		return err
	}
	p.mu.Lock()
	p.strategies[s.Name] = s
	p.mu.Unlock()
	p.log.Info("strategy registered", logger.String("strategy", s.Name), logger.Bool("enabled", s.Enabled))
	return nil
}

func (p *AlertProcessor) Unregister(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.strategies[name]; !ok {
		return fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	delete(p.strategies, name)
	p.log.Info("strategy unregistered", logger.String("strategy", name))
	return nil
}

func (p *AlertProcessor) Strategy(name string) (models.Strategy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.strategies[name]
	return s, ok
}

// Strategies lists registered strategies by name.
func (p *AlertProcessor) Strategies() []models.Strategy {
	p.mu.RLock()
	out := make([]models.Strategy, 0, len(p.strategies))
	for _, s := range p.strategies {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Process handles one parsed alert. The returned error is reserved for
// infrastructure failures (store, engine); policy outcomes are reported in
// the result with Executed=false.
func (p *AlertProcessor) Process(ctx context.Context, a models.Alert) (models.AlertResult, error) {
	start := p.now()
	defer func() { p.metrics.RecordLatency("alert", time.Since(start).Seconds()) }()

	lockKey := cache.GenerateKey("alert", a.ID)
	acquired, err := p.store.TryLock(ctx, lockKey, p.cfg.DedupTTL)
	if err != nil {
		p.metrics.RecordError("alert_dedup")
		return models.AlertResult{}, fmt.Errorf("%w: %v", ErrDedupUnavailable, err)
	}
	if !acquired {
		return p.duplicate(ctx, a, start), nil
	}

	result, err := p.process(ctx, a, start)
	if err != nil {
		// allow the sender to retry the same alert
		if uerr := p.store.Unlock(ctx, lockKey); uerr != nil {
			p.log.Warn("alert unlock failed", logger.String("alert_id", a.ID), logger.Error(uerr))
		}
		p.metrics.RecordError("alert_execute")
		return models.AlertResult{}, err
	}

	if err := p.store.Set(ctx, cache.GenerateKey("alert_result", a.ID), result, p.cfg.DedupTTL); err != nil {
		p.log.Warn("alert result not cached", logger.String("alert_id", a.ID), logger.Error(err))
	}
	return result, nil
}

func (p *AlertProcessor) process(ctx context.Context, a models.Alert, start time.Time) (models.AlertResult, error) {
	multiplier := 1.0
	if s, ok := p.Strategy(a.Strategy); ok {
		if !s.Enabled {
			return p.reject(a, start, fmt.Sprintf("Strategy %s is disabled", a.Strategy)), nil
		}
		if len(s.Symbols) > 0 && !slices.ContainsFunc(s.Symbols, func(sym string) bool {
			return strings.EqualFold(sym, a.Symbol)
		}) {
			return p.reject(a, start, fmt.Sprintf("Symbol %s is not traded by strategy %s", a.Symbol, a.Strategy)), nil
		}
		multiplier = s.RiskMultiplier
	}

	signal := alert.ToSignal(a, p.cfg.AlertConfidence, multiplier)
	cycle, err := p.exec.ProcessSignals(ctx, []models.Signal{signal})
	if err != nil {
		return models.AlertResult{}, fmt.Errorf("process alert %s: %w", a.ID, err)
	}

	p.remember(a)
	result := models.AlertResult{
		Alert:     a,
		Executed:  true,
		Signal:    &signal,
		Cycle:     cycle,
		Message:   alert.Describe(signal),
		LatencyMs: elapsedMs(start, p.now()),
	}
	p.log.Info("alert processed",
		logger.String("alert_id", a.ID),
		logger.String("alert_type", string(a.Type)),
		logger.String("symbol", a.Symbol),
		logger.String("direction", string(signal.Direction)),
		logger.Int("orders", len(cycle.ExecutionReports)))
	return result, nil
}

func (p *AlertProcessor) reject(a models.Alert, start time.Time, msg string) models.AlertResult {
	p.log.Info("alert skipped", logger.String("alert_id", a.ID), logger.String("reason", msg))
	return models.AlertResult{
		Alert:     a,
		Message:   msg,
		LatencyMs: elapsedMs(start, p.now()),
	}
}

func (p *AlertProcessor) duplicate(ctx context.Context, a models.Alert, start time.Time) models.AlertResult {
	var prior models.AlertResult
	if err := p.store.Get(ctx, cache.GenerateKey("alert_result", a.ID), &prior); err != nil {
		prior = models.AlertResult{Alert: a}
	}
	prior.Duplicate = true
	prior.Executed = false
	prior.Message = fmt.Sprintf("Alert %s already processed", a.ID)
	prior.LatencyMs = elapsedMs(start, p.now())
	p.log.Debug("duplicate alert", logger.String("alert_id", a.ID))
	return prior
}

func (p *AlertProcessor) remember(a models.Alert) {
	limit := p.cfg.HistorySize
	if limit <= 0 {
		return
	}
	p.histMu.Lock()
	defer p.histMu.Unlock()
	p.history = append(p.history, a)
	if over := len(p.history) - limit; over > 0 {
		p.history = append(p.history[:0:0], p.history[over:]...)
	}
}

// Processed returns executed alerts, oldest first.
func (p *AlertProcessor) Processed() []models.Alert {
	p.histMu.Lock()
	defer p.histMu.Unlock()
	return slices.Clone(p.history)
}

func (p *AlertProcessor) ClearProcessed() {
	p.histMu.Lock()
	p.history = nil
	p.histMu.Unlock()
}

func elapsedMs(start, end time.Time) float64 {
	ms := float64(end.Sub(start).Microseconds()) / 1000
	return float64(int64(ms*100+0.5)) / 100
}
