package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	drepo "QuantPipe/internal/domain/repository"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/internal/services/stages"
	"QuantPipe/pkg/logger"

	"github.com/shopspring/decimal"
)

var (
	ErrEngineNotRunning     = errors.New("engine is not running")
	ErrEngineAlreadyRunning = errors.New("engine is already running")
)

// StageError names the stage that failed a lifecycle call or a cycle.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

type (
	DataStage      = domsvc.Stage[any, models.MarketData]
	SignalStage    = domsvc.Stage[models.MarketData, []models.Signal]
	RiskStage      = domsvc.Stage[[]models.Signal, []models.RiskAssessment]
	ExecutionStage = domsvc.Stage[[]models.RiskAssessment, []models.ExecutionReport]
)

// ExposureBook is implemented by risk stages that reserve exposure on approval.
type ExposureBook interface {
	ReleaseExposure(symbol string, notional decimal.Decimal)
	ExposurePct() float64
}

// lifecycleStage is the type-erased view Start/Stop/HealthCheck work on.
type lifecycleStage interface {
	Name() string
	Enabled() bool
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
}

// Engine owns the four stages, runs cycles through them and keeps the status.
type Engine struct {
	data      DataStage
	signal    SignalStage
	risk      RiskStage
	exec      ExecutionStage
	book      ExposureBook
	publisher drepo.ReportPublisher
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time

	// cycleMu serializes cycles and lifecycle transitions.
	cycleMu  sync.Mutex
	statusMu sync.RWMutex
	status   models.EngineStatus
}

// NewEngine wires the stages. publisher may be nil.
func NewEngine(data DataStage, signal SignalStage, risk RiskStage, exec ExecutionStage,
	publisher drepo.ReportPublisher, metrics drepo.Metrics, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		data:      data,
		signal:    signal,
		risk:      risk,
		exec:      exec,
		publisher: publisher,
		metrics:   orNop(metrics),
		log:       log,
		now:       time.Now,
		status:    models.EngineStatus{TotalLayers: 4},
	}
	if book, ok := risk.(ExposureBook); ok {
		e.book = book
	}
	return e
}

func (e *Engine) stagesInOrder() []lifecycleStage {
	return []lifecycleStage{e.data, e.signal, e.risk, e.exec}
}

// Start initializes enabled stages in order data, signal, risk, execution.
// The first failure shuts the already started stages down and leaves the engine stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	if e.IsRunning() {
		return ErrEngineAlreadyRunning
	}

	e.log.Info("starting engine")
	started := make([]lifecycleStage, 0, 4)
	for _, st := range e.stagesInOrder() {
		if !st.Enabled() {
			e.log.Info("stage disabled", logger.String("stage", st.Name()))
			continue
		}
		if err := st.Initialize(ctx); err != nil {
			e.metrics.RecordError(st.Name())
			e.log.Error("stage initialization failed", logger.String("stage", st.Name()), logger.Error(err))
			for _, s := range started {
				_ = s.Shutdown(ctx)
			}
			return &StageError{Stage: st.Name(), Err: err}
		}
		started = append(started, st)
		e.log.Info("stage initialized", logger.String("stage", st.Name()))
	}

	e.statusMu.Lock()
	e.status.Running = true
	e.status.LayersInitialized = len(started)
	e.statusMu.Unlock()

	e.log.Info("engine started", logger.Int("layers_initialized", len(started)))
	return nil
}

// Stop shuts every stage down concurrently and marks the engine stopped.
// Safe to call on a stopped engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.log.Info("stopping engine")
	all := e.stagesInOrder()
	errs := make([]error, len(all))
	var wg sync.WaitGroup
	for i, st := range all {
		wg.Add(1)
		go func(i int, st lifecycleStage) {
			defer wg.Done()
			if err := st.Shutdown(ctx); err != nil {
				errs[i] = &StageError{Stage: st.Name(), Err: err}
			}
		}(i, st)
	}
	wg.Wait()

	e.statusMu.Lock()
	e.status.Running = false
	e.status.LayersInitialized = 0
	e.statusMu.Unlock()

	e.log.Info("engine stopped")
	return errors.Join(errs...)
}

func (e *Engine) IsRunning() bool {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status.Running
}

// Status returns a snapshot.
func (e *Engine) Status() models.EngineStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	st := e.status
	if st.LastCycleAt != nil {
		at := *st.LastCycleAt
		st.LastCycleAt = &at
	}
	return st
}

// HealthCheck reports every stage's health by name without touching run state.
func (e *Engine) HealthCheck(ctx context.Context) map[string]bool {
	out := make(map[string]bool, 4)
	for _, st := range e.stagesInOrder() {
		out[st.Name()] = st.HealthCheck(ctx)
	}
	return out
}

// ProcessCycle runs raw input through data, signal, risk and execution.
// A stage error aborts the cycle and leaves the status untouched.
func (e *Engine) ProcessCycle(ctx context.Context, raw any) (*models.CycleResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	if !e.IsRunning() {
		return nil, ErrEngineNotRunning
	}

	start := time.Now()
	result := models.NewCycleResult()

	var batch models.MarketData
	if e.data.Enabled() {
		var err error
		batch, err = timed(e, e.data.Name(), func() (models.MarketData, error) { return e.data.Process(ctx, raw) })
		if err != nil {
			return nil, err
		}
		result.MarketData = append(result.MarketData, batch)
	} else {
		batch = models.MarketData{Candles: stages.CoerceCandles(raw), UpdatedAt: e.now()}
	}
	e.recordPrices(batch)

	if e.signal.Enabled() {
		signals, err := timed(e, e.signal.Name(), func() ([]models.Signal, error) { return e.signal.Process(ctx, batch) })
		if err != nil {
			return nil, err
		}
		if signals != nil {
			result.Signals = signals
		}
	}

	if err := e.riskAndExecute(ctx, result); err != nil {
		return nil, err
	}

	e.finishCycle(result, start)
	return result, nil
}

// ProcessSignals runs externally produced signals through risk and execution.
func (e *Engine) ProcessSignals(ctx context.Context, signals []models.Signal) (*models.CycleResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	if !e.IsRunning() {
		return nil, ErrEngineNotRunning
	}

	start := time.Now()
	result := models.NewCycleResult()
	if signals != nil {
		result.Signals = signals
	}
	if err := e.riskAndExecute(ctx, result); err != nil {
		return nil, err
	}
	e.finishCycle(result, start)
	return result, nil
}

func (e *Engine) riskAndExecute(ctx context.Context, result *models.CycleResult) error {
	if !e.risk.Enabled() {
		return nil
	}
	assessments, err := timed(e, e.risk.Name(), func() ([]models.RiskAssessment, error) { return e.risk.Process(ctx, result.Signals) })
	if err != nil {
		return err
	}
	if assessments != nil {
		result.RiskAssessments = assessments
	}

	if !e.exec.Enabled() {
		return nil
	}
	reports, err := timed(e, e.exec.Name(), func() ([]models.ExecutionReport, error) { return e.exec.Process(ctx, assessments) })
	if err != nil {
		e.releaseAll(assessments)
		return err
	}
	if reports != nil {
		result.ExecutionReports = reports
	}
	e.releaseFailed(assessments, reports)
	return nil
}

// releaseFailed returns the reservation of every approval whose order did not fill.
// Execution emits one report per approved buy/sell assessment, in order.
func (e *Engine) releaseFailed(assessments []models.RiskAssessment, reports []models.ExecutionReport) {
	if e.book == nil {
		return
	}
	approved := executable(assessments)
	if len(approved) != len(reports) {
		e.log.Warn("cannot correlate reports with approvals",
			logger.Int("approved", len(approved)),
			logger.Int("reports", len(reports)),
		)
		return
	}
	for i, r := range reports {
		if !r.Success {
			ps := approved[i].PositionSize
			e.book.ReleaseExposure(ps.Symbol, ps.NotionalValue)
		}
	}
}

func (e *Engine) releaseAll(assessments []models.RiskAssessment) {
	if e.book == nil {
		return
	}
	for _, a := range executable(assessments) {
		e.book.ReleaseExposure(a.PositionSize.Symbol, a.PositionSize.NotionalValue)
	}
}

func executable(assessments []models.RiskAssessment) []models.RiskAssessment {
	out := make([]models.RiskAssessment, 0, len(assessments))
	for _, a := range assessments {
		if a.Approved && a.PositionSize != nil &&
			(a.Signal.Direction == models.DirectionBuy || a.Signal.Direction == models.DirectionSell) {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) finishCycle(result *models.CycleResult, start time.Time) {
	filled := 0
	for _, r := range result.ExecutionReports {
		if r.Success {
			filled++
		}
		e.metrics.RecordOrder(string(r.Order.Status))
	}
	for _, s := range result.Signals {
		e.metrics.RecordSignal(string(s.Direction))
	}
	for _, a := range result.RiskAssessments {
		if a.Approved {
			e.metrics.RecordAssessment("approved")
		} else {
			e.metrics.RecordAssessment("rejected")
		}
	}
	if e.book != nil {
		e.metrics.RecordExposure(e.book.ExposurePct())
	}

	at := e.now()
	e.statusMu.Lock()
	e.status.CyclesCompleted++
	e.status.SignalsGenerated += int64(len(result.Signals))
	e.status.OrdersExecuted += int64(filled)
	e.status.LastCycleAt = &at
	e.statusMu.Unlock()

	elapsed := time.Since(start)
	e.metrics.RecordCycle(elapsed.Seconds())
	e.log.Debug("cycle completed",
		logger.Int("signals", len(result.Signals)),
		logger.Int("assessments", len(result.RiskAssessments)),
		logger.Int("reports", len(result.ExecutionReports)),
		logger.Int("filled", filled),
		logger.Duration("duration_ms", elapsed),
	)

	e.publish(result.ExecutionReports)
}

// publish hands reports downstream; a publisher failure never fails the cycle.
func (e *Engine) publish(reports []models.ExecutionReport) {
	if e.publisher == nil || len(reports) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.publisher.PublishReports(ctx, reports); err != nil {
		e.metrics.RecordError("publish_reports")
		e.log.Error("publish execution reports failed", logger.Error(err), logger.Int("reports", len(reports)))
	}
}

func (e *Engine) recordPrices(batch models.MarketData) {
	for sym, candles := range batch.BySymbol() {
		e.metrics.RecordLastPrice(sym, candles[len(candles)-1].Close.InexactFloat64())
	}
}

// timed runs one stage call, records its latency and wraps a failure with the stage name.
func timed[T any](e *Engine, stage string, call func() (T, error)) (T, error) {
	start := time.Now()
	out, err := call()
	e.metrics.RecordStageLatency(stage, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordError(stage)
		e.log.Error("stage failed, cycle aborted", logger.String("stage", stage), logger.Error(err))
		var zero T
		return zero, &StageError{Stage: stage, Err: err}
	}
	return out, nil
}
