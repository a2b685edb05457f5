package stages

import (
	"context"
	"encoding/json"
	"testing"

	"QuantPipe/internal/domain/models"
	domsvc "QuantPipe/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDataStage(t *testing.T, mutate func(*DataStage)) *DataStage {
	t.Helper()
	s, err := NewDataStage(defaultStages(t).Data, nil)
	require.NoError(t, err)
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestDataStageProcessBeforeInitialize(t *testing.T) {
	s, err := NewDataStage(defaultStages(t).Data, nil)
	require.NoError(t, err)

	_, err = s.Process(context.Background(), series("BTC/USD", "1", "2"))
	assert.ErrorIs(t, err, domsvc.ErrStageNotInitialized)
	assert.False(t, s.HealthCheck(context.Background()))
}

func TestDataStageAppendsInArrivalOrder(t *testing.T) {
	s := newDataStage(t, nil)
	ctx := context.Background()

	batch, err := s.Process(ctx, series("BTC/USD", "100", "101"))
	require.NoError(t, err)
	assert.Len(t, batch.Candles, 2)
	assert.False(t, batch.UpdatedAt.IsZero())

	_, err = s.Process(ctx, []*models.Candle{ptr(candle("BTC/USD", 2, "102")), nil})
	require.NoError(t, err)

	hist := s.Series("BTC/USD")
	require.Len(t, hist, 3)
	assert.True(t, hist[2].Close.Equal(d("102")))
	assert.Empty(t, s.Series("ETH/USD"))
	assert.ElementsMatch(t, []string{"BTC/USD"}, s.Symbols())
}

func ptr(c models.Candle) *models.Candle { return &c }

func TestDataStageNonCandleInputIsEmptyBatch(t *testing.T) {
	s := newDataStage(t, nil)
	for _, raw := range []any{nil, "garbage", 42, []string{"a"}, []byte("not json")} {
		batch, err := s.Process(context.Background(), raw)
		require.NoError(t, err)
		assert.NotNil(t, batch.Candles)
		assert.Empty(t, batch.Candles)
	}
}

func TestDataStageAcceptsJSONAndMarketData(t *testing.T) {
	s := newDataStage(t, nil)
	raw, err := json.Marshal(series("ETH/USD", "2000", "2010"))
	require.NoError(t, err)

	batch, err := s.Process(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, batch.Candles, 2)
	assert.True(t, batch.Candles[1].Close.Equal(d("2010")))

	batch, err = s.Process(context.Background(), models.MarketData{Candles: series("SOL/USD", "10")})
	require.NoError(t, err)
	assert.Len(t, batch.Candles, 1)
}

func TestDataStageDropsInvalidCandles(t *testing.T) {
	s := newDataStage(t, nil)
	bad := candle("BTC/USD", 1, "100")
	bad.High = d("90")
	noSymbol := candle("", 2, "100")

	batch, err := s.Process(context.Background(), []models.Candle{candle("BTC/USD", 0, "100"), bad, noSymbol})
	require.NoError(t, err)
	assert.Len(t, batch.Candles, 1)
	assert.EqualValues(t, 2, s.Dropped())
}

func TestDataStageValidationDisabledKeepsGarbage(t *testing.T) {
	cfg := defaultStages(t).Data
	cfg.ValidateCandles = false
	s, err := NewDataStage(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	bad := candle("BTC/USD", 0, "100")
	bad.Low = d("200")
	batch, err := s.Process(context.Background(), []models.Candle{bad})
	require.NoError(t, err)
	assert.Len(t, batch.Candles, 1)
}

func TestDataStageRetentionEvictsOldest(t *testing.T) {
	cfg := defaultStages(t).Data
	cfg.MaxCandles = 3
	s, err := NewDataStage(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))

	_, err = s.Process(context.Background(), series("BTC/USD", "1", "2", "3", "4", "5"))
	require.NoError(t, err)

	hist := s.Series("BTC/USD")
	require.Len(t, hist, 3)
	assert.True(t, hist[0].Close.Equal(d("3")))
	assert.True(t, hist[2].Close.Equal(d("5")))
}

func TestDataStageSeriesIsSnapshot(t *testing.T) {
	s := newDataStage(t, nil)
	_, err := s.Process(context.Background(), series("BTC/USD", "1", "2"))
	require.NoError(t, err)

	snap := s.Series("BTC/USD")
	snap[0].Symbol = "mutated"
	assert.Equal(t, "BTC/USD", s.Series("BTC/USD")[0].Symbol)
}

func TestDataStageShutdownResetsAndIsIdempotent(t *testing.T) {
	s := newDataStage(t, nil)
	ctx := context.Background()
	_, err := s.Process(ctx, series("BTC/USD", "1", "2"))
	require.NoError(t, err)
	assert.True(t, s.HealthCheck(ctx))

	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.HealthCheck(ctx))
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.HealthCheck(ctx))
	assert.Empty(t, s.Series("BTC/USD"))

	_, err = s.Process(ctx, series("BTC/USD", "1"))
	assert.ErrorIs(t, err, domsvc.ErrStageNotInitialized)
}

func TestDataStageInitializeIdempotentAndDisabled(t *testing.T) {
	s := newDataStage(t, nil)
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.HealthCheck(context.Background()))

	cfg := defaultStages(t).Data
	cfg.Enabled = false
	off, err := NewDataStage(cfg, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, off.Initialize(context.Background()), domsvc.ErrStageDisabled)
	assert.False(t, off.HealthCheck(context.Background()))
}

func TestNewDataStageRejectsNegativeCap(t *testing.T) {
	cfg := defaultStages(t).Data
	cfg.MaxCandles = -1
	_, err := NewDataStage(cfg, nil)
	assert.Error(t, err)
}
