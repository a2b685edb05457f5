package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"QuantPipe/internal/domain/models"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/internal/services/stages"
	"QuantPipe/pkg/config"
	"QuantPipe/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type pipeline struct {
	engine *Engine
	data   *stages.DataStage
	signal *stages.SignalStage
	risk   *stages.RiskStage
	exec   *stages.ExecutionStage
	pub    *recordingPublisher
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]models.ExecutionReport
	err     error
}

func (p *recordingPublisher) PublishReports(_ context.Context, r []models.ExecutionReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, r)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newPipeline(t *testing.T, mutate func(*config.StagesConfig)) *pipeline {
	t.Helper()
	c, err := config.Default()
	require.NoError(t, err)
	sc := c.Stages
	if mutate != nil {
		mutate(&sc)
	}

	data, err := stages.NewDataStage(sc.Data, nil)
	require.NoError(t, err)
	signal, err := stages.NewSignalStage(sc.Signal, data)
	require.NoError(t, err)
	risk, err := stages.NewRiskStage(sc.Risk)
	require.NoError(t, err)
	exec, err := stages.NewExecutionStage(sc.Execution, nil, nil)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	return &pipeline{
		engine: NewEngine(data, signal, risk, exec, pub, rec, nil),
		data:   data, signal: signal, risk: risk, exec: exec, pub: pub,
	}
}

func candles(symbol string, closes ...string) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		v := decimal.RequireFromString(c)
		out[i] = models.Candle{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      v, High: v, Low: v, Close: v,
			Volume:    decimal.NewFromInt(1),
			Symbol:    symbol,
			Timeframe: models.TF1h,
		}
	}
	return out
}

func TestEngineScenarioEndToEnd(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)

	require.Len(t, res.MarketData, 1)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, models.DirectionBuy, res.Signals[0].Direction)
	assert.Equal(t, models.StrengthModerate, res.Signals[0].Strength)
	assert.Equal(t, 0.25, res.Signals[0].Confidence)

	require.Len(t, res.RiskAssessments, 1)
	assert.True(t, res.RiskAssessments[0].Approved)
	assert.Equal(t, 2.0, res.RiskAssessments[0].PositionSize.RiskRewardRatio)

	require.Len(t, res.ExecutionReports, 1)
	r := res.ExecutionReports[0]
	assert.True(t, r.Success)
	assert.Equal(t, models.StatusFilled, r.Order.Status)
	expected := decimal.RequireFromString("41041")
	assert.True(t, r.Order.AveragePrice.Sub(expected).Abs().LessThanOrEqual(expected.Mul(decimal.RequireFromString("0.001"))))

	st := p.engine.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 4, st.LayersInitialized)
	assert.EqualValues(t, 1, st.CyclesCompleted)
	assert.EqualValues(t, 1, st.SignalsGenerated)
	assert.EqualValues(t, 1, st.OrdersExecuted)
	require.NotNil(t, st.LastCycleAt)

	require.Len(t, p.pub.batches, 1)
	assert.Len(t, p.pub.batches[0], 1)

	_, ok := p.exec.Order(r.Order.ID)
	assert.True(t, ok)
}

func TestEngineHoldNeverReachesExecution(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, candles("ETH/USD", "2000", "2001"))
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, models.DirectionHold, res.Signals[0].Direction)
	require.Len(t, res.RiskAssessments, 1)
	assert.Equal(t, "neutral signal, no execution required", res.RiskAssessments[0].RejectionReason)
	assert.NotNil(t, res.ExecutionReports)
	assert.Empty(t, res.ExecutionReports)
	assert.Empty(t, p.pub.batches)
	assert.EqualValues(t, 0, p.engine.Status().OrdersExecuted)
}

func TestEngineExposureCapAcrossCycles(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))
	p.risk.SetExposure(decimal.NewFromInt(60000))

	for i := 0; i < 2; i++ {
		res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "100", "110"))
		require.NoError(t, err)
		require.Len(t, res.RiskAssessments, 1)
		assert.False(t, res.RiskAssessments[0].Approved)
		assert.Contains(t, res.RiskAssessments[0].RejectionReason, "exposure")
	}

	p.risk.ResetExposure()
	res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "100", "110"))
	require.NoError(t, err)
	assert.True(t, res.RiskAssessments[0].Approved)
}

func TestEngineNotRunning(t *testing.T) {
	p := newPipeline(t, nil)
	before := p.engine.Status()

	_, err := p.engine.ProcessCycle(context.Background(), candles("BTC/USD", "1", "2"))
	assert.ErrorIs(t, err, ErrEngineNotRunning)
	_, err = p.engine.ProcessSignals(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEngineNotRunning)

	assert.Equal(t, before, p.engine.Status())
	assert.Empty(t, p.data.Series("BTC/USD"))
}

func TestEngineStartTwice(t *testing.T) {
	p := newPipeline(t, nil)
	require.NoError(t, p.engine.Start(context.Background()))
	assert.ErrorIs(t, p.engine.Start(context.Background()), ErrEngineAlreadyRunning)
}

func TestEngineStopShutsEverythingDown(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))
	_, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)

	require.NoError(t, p.engine.Stop(ctx))
	assert.False(t, p.engine.IsRunning())
	for name, ok := range p.engine.HealthCheck(ctx) {
		assert.False(t, ok, name)
	}
	assert.Empty(t, p.data.Series("BTC/USD"))
	assert.Empty(t, p.exec.Orders(""))
	// counters survive a stop
	assert.EqualValues(t, 1, p.engine.Status().CyclesCompleted)

	require.NoError(t, p.engine.Stop(ctx))
}

func TestEngineHealthCheckNames(t *testing.T) {
	p := newPipeline(t, func(sc *config.StagesConfig) { sc.Risk.Enabled = false })
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	health := p.engine.HealthCheck(ctx)
	assert.Equal(t, map[string]bool{
		"data_layer":      true,
		"signal_layer":    true,
		"risk_layer":      false,
		"execution_layer": true,
	}, health)
	assert.Equal(t, 3, p.engine.Status().LayersInitialized)
	assert.True(t, p.engine.IsRunning())
}

func TestEngineDisabledStagesPassThrough(t *testing.T) {
	p := newPipeline(t, func(sc *config.StagesConfig) {
		sc.Data.Enabled = false
		sc.Execution.Enabled = false
	})
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)
	assert.Empty(t, res.MarketData)
	require.Len(t, res.Signals, 1)
	require.Len(t, res.RiskAssessments, 1)
	assert.NotNil(t, res.ExecutionReports)
	assert.Empty(t, res.ExecutionReports)
}

func TestEngineDisabledSignalYieldsEmptyDownstream(t *testing.T) {
	p := newPipeline(t, func(sc *config.StagesConfig) { sc.Signal.Enabled = false })
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)
	assert.Len(t, res.MarketData, 1)
	assert.Empty(t, res.Signals)
	assert.Empty(t, res.RiskAssessments)
	assert.Empty(t, res.ExecutionReports)
}

func TestEngineGarbageInputIsEmptyCycle(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, map[string]int{"nope": 1})
	require.NoError(t, err)
	require.Len(t, res.MarketData, 1)
	assert.Empty(t, res.MarketData[0].Candles)
	assert.Empty(t, res.Signals)
	assert.EqualValues(t, 1, p.engine.Status().CyclesCompleted)
}

func TestEngineProcessSignalsStartsAtRisk(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	sig := models.Signal{
		Symbol: "SOL/USD", Direction: models.DirectionSell, Strength: models.StrengthModerate,
		Price: decimal.NewFromInt(150), Timestamp: t0, Confidence: 0.7, Source: models.SourceAlert,
	}
	res, err := p.engine.ProcessSignals(ctx, []models.Signal{sig})
	require.NoError(t, err)
	assert.Empty(t, res.MarketData)
	require.Len(t, res.ExecutionReports, 1)
	assert.Equal(t, models.SideSell, res.ExecutionReports[0].Order.Side)
	assert.EqualValues(t, 1, p.engine.Status().SignalsGenerated)
	assert.EqualValues(t, 1, p.engine.Status().OrdersExecuted)
}

type failingVenue struct{}

func (failingVenue) Name() string { return "failing" }

func (failingVenue) Execute(context.Context, models.Order, decimal.Decimal) (domsvc.Fill, error) {
	return domsvc.Fill{}, errors.New("venue down")
}

func TestEngineReleasesExposureForFailedFills(t *testing.T) {
	c, err := config.Default()
	require.NoError(t, err)
	data, _ := stages.NewDataStage(c.Stages.Data, nil)
	signal, _ := stages.NewSignalStage(c.Stages.Signal, data)
	risk, _ := stages.NewRiskStage(c.Stages.Risk)
	exec, err := stages.NewExecutionStage(c.Stages.Execution, failingVenue{}, nil)
	require.NoError(t, err)
	engine := NewEngine(data, signal, risk, exec, nil, nil, nil)

	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	res, err := engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)

	require.Len(t, res.ExecutionReports, 1)
	assert.False(t, res.ExecutionReports[0].Success)
	assert.True(t, risk.Exposure().IsZero())
	assert.EqualValues(t, 0, engine.Status().OrdersExecuted)
}

func TestEngineKeepsExposureForFills(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))
	_, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)
	assert.True(t, p.risk.Exposure().Equal(decimal.NewFromInt(10000)))
}

// stubStage lets tests force lifecycle and process failures.
type stubStage[In, Out any] struct {
	name       string
	initErr    error
	processErr error
	out        Out
	ready      bool
	shutdowns  int
}

func (s *stubStage[In, Out]) Name() string  { return s.name }
func (s *stubStage[In, Out]) Enabled() bool { return true }
func (s *stubStage[In, Out]) Initialize(context.Context) error {
	if s.initErr != nil {
		return s.initErr
	}
	s.ready = true
	return nil
}
func (s *stubStage[In, Out]) Process(context.Context, In) (Out, error) { return s.out, s.processErr }
func (s *stubStage[In, Out]) Shutdown(context.Context) error {
	s.shutdowns++
	s.ready = false
	return nil
}
func (s *stubStage[In, Out]) HealthCheck(context.Context) bool { return s.ready }

func TestEngineStartFailFast(t *testing.T) {
	data := &stubStage[any, models.MarketData]{name: "data_layer"}
	signal := &stubStage[models.MarketData, []models.Signal]{name: "signal_layer", initErr: errors.New("boom")}
	risk := &stubStage[[]models.Signal, []models.RiskAssessment]{name: "risk_layer"}
	exec := &stubStage[[]models.RiskAssessment, []models.ExecutionReport]{name: "execution_layer"}
	engine := NewEngine(data, signal, risk, exec, nil, nil, nil)

	err := engine.Start(context.Background())
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "signal_layer", se.Stage)
	assert.False(t, engine.IsRunning())
	assert.Equal(t, 1, data.shutdowns)
	assert.False(t, risk.ready)
	assert.Equal(t, 0, engine.Status().LayersInitialized)
}

func TestEngineStageErrorAbortsCycle(t *testing.T) {
	data := &stubStage[any, models.MarketData]{name: "data_layer"}
	signal := &stubStage[models.MarketData, []models.Signal]{name: "signal_layer", processErr: errors.New("indicator exploded")}
	risk := &stubStage[[]models.Signal, []models.RiskAssessment]{name: "risk_layer"}
	exec := &stubStage[[]models.RiskAssessment, []models.ExecutionReport]{name: "execution_layer"}
	engine := NewEngine(data, signal, risk, exec, nil, nil, nil)
	require.NoError(t, engine.Start(context.Background()))

	res, err := engine.ProcessCycle(context.Background(), nil)
	assert.Nil(t, res)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "signal_layer", se.Stage)
	assert.EqualValues(t, 0, engine.Status().CyclesCompleted)
	assert.Nil(t, engine.Status().LastCycleAt)
}

func TestEngineNilStageOutputsStayNonNil(t *testing.T) {
	data := &stubStage[any, models.MarketData]{name: "data_layer"}
	signal := &stubStage[models.MarketData, []models.Signal]{name: "signal_layer"}
	risk := &stubStage[[]models.Signal, []models.RiskAssessment]{name: "risk_layer"}
	exec := &stubStage[[]models.RiskAssessment, []models.ExecutionReport]{name: "execution_layer"}
	engine := NewEngine(data, signal, risk, exec, nil, nil, nil)
	require.NoError(t, engine.Start(context.Background()))

	res, err := engine.ProcessCycle(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Signals)
	assert.NotNil(t, res.RiskAssessments)
	assert.NotNil(t, res.ExecutionReports)
}

func TestEnginePublisherFailureDoesNotFailCycle(t *testing.T) {
	p := newPipeline(t, nil)
	p.pub.err = errors.New("broker unavailable")
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	res, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "40000", "41000"))
	require.NoError(t, err)
	assert.Len(t, res.ExecutionReports, 1)
}

func TestEngineSerializesConcurrentCycles(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	require.NoError(t, p.engine.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.engine.ProcessCycle(ctx, candles("BTC/USD", "100", "100.5"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 8, p.engine.Status().CyclesCompleted)
	assert.Len(t, p.data.Series("BTC/USD"), 16)
}
