package usecase

import (
	"context"
	"errors"
	"fmt"

	"QuantPipe/internal/domain/models"
	"QuantPipe/pkg/logger"

	"github.com/robfig/cron/v3"
)

// CandleSource hands over everything buffered since the previous call.
type CandleSource interface {
	Drain() []models.Candle
}

// Runner drains a candle source into the engine on a cron schedule.
// Overlapping ticks are skipped; the engine serializes cycles anyway.
type Runner struct {
	engine *Engine
	source CandleSource
	log    *logger.Logger
	cron   *cron.Cron
}

// NewRunner parses schedule (standard five-field or @every descriptors) and registers the tick.
func NewRunner(engine *Engine, source CandleSource, schedule string, log *logger.Logger) (*Runner, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		engine: engine,
		source: source,
		log:    log,
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Tick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("register cycle schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// the in-flight cycle to complete.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	r.log.Info("cycle runner started", logger.Int("entries", len(r.cron.Entries())))
	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.log.Info("cycle runner stopped")
	return nil
}

// Tick runs one cycle over whatever the source has buffered. Empty drains are skipped.
func (r *Runner) Tick(ctx context.Context) {
	candles := r.source.Drain()
	if len(candles) == 0 {
		return
	}
	res, err := r.engine.ProcessCycle(ctx, candles)
	if err != nil {
		if errors.Is(err, ErrEngineNotRunning) {
			r.log.Warn("cycle skipped, engine not running", logger.Int("candles", len(candles)))
			return
		}
		r.log.Error("scheduled cycle failed", logger.Error(err), logger.Int("candles", len(candles)))
		return
	}
	r.log.Debug("scheduled cycle done",
		logger.Int("candles", len(candles)),
		logger.Int("signals", len(res.Signals)),
		logger.Int("reports", len(res.ExecutionReports)),
	)
}
