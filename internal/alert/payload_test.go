package alert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"QuantPipe/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func decodeBody(t *testing.T, body string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	return m
}

func TestParseType(t *testing.T) {
	cases := map[string]models.AlertType{
		"buy":         models.AlertLongEntry,
		"LONG":        models.AlertLongEntry,
		"sell":        models.AlertShortEntry,
		"short":       models.AlertShortEntry,
		"close_long":  models.AlertLongExit,
		"close_short": models.AlertShortExit,
		"stop_loss":   models.AlertStopLoss,
		"take_profit": models.AlertTakeProfit,
		"rebalance":   models.AlertCustom,
		"":            models.AlertCustom,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseType(raw), raw)
	}
}

func TestParsePayload_FullBody(t *testing.T) {
	data := decodeBody(t, `{
		"alert_id": "a-1",
		"action": "buy",
		"ticker": "BTCUSDT",
		"exchange": "BINANCE",
		"close": 42000.5,
		"strategy": "breakout",
		"interval": "1h",
		"comment": "go long",
		"leverage": 2,
		"tags": ["x", "y"]
	}`)

	a, err := ParsePayload(data, now)
	require.NoError(t, err)

	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, models.AlertLongEntry, a.Type)
	assert.Equal(t, "BTCUSDT", a.Symbol)
	assert.Equal(t, "BINANCE", a.Exchange)
	assert.True(t, decimal.RequireFromString("42000.5").Equal(a.Price))
	assert.Equal(t, "breakout", a.Strategy)
	assert.Equal(t, "1h", a.Timeframe)
	assert.Equal(t, "go long", a.Message)
	assert.Equal(t, now, a.Timestamp)

	assert.Equal(t, "2", a.Metadata["leverage"])
	assert.Equal(t, `["x","y"]`, a.Metadata["tags"])
	assert.Equal(t, "a-1", a.Metadata["alert_id"])
	for _, k := range []string{"action", "type", "symbol", "ticker", "price", "close"} {
		assert.NotContains(t, a.Metadata, k)
	}
}

func TestParsePayload_Defaults(t *testing.T) {
	a, err := ParsePayload(map[string]any{}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, models.AlertCustom, a.Type)
	assert.Equal(t, UnknownSymbol, a.Symbol)
	assert.True(t, a.Price.IsZero())
	assert.Empty(t, a.Metadata)
}

func TestParsePayload_PrefersPrimaryKeys(t *testing.T) {
	a, err := ParsePayload(map[string]any{
		"action": "sell", "type": "buy",
		"symbol": "ETHUSDT", "ticker": "BTCUSDT",
		"price": "3000", "close": "2900",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, models.AlertShortEntry, a.Type)
	assert.Equal(t, "ETHUSDT", a.Symbol)
	assert.True(t, decimal.NewFromInt(3000).Equal(a.Price))
}

func TestParsePayload_Timestamp(t *testing.T) {
	a, err := ParsePayload(map[string]any{"time": "2024-01-02T03:04:05Z"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), a.Timestamp)

	a, err = ParsePayload(decodeBody(t, `{"timestamp": 1704164645000}`), now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), a.Timestamp)

	a, err = ParsePayload(map[string]any{"time": "yesterday"}, now)
	require.NoError(t, err)
	assert.Equal(t, now, a.Timestamp)
}

func TestParsePayload_InvalidPrice(t *testing.T) {
	_, err := ParsePayload(map[string]any{"price": "abc"}, now)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ParsePayload(map[string]any{"price": "-1"}, now)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ParsePayload(map[string]any{"price": []any{1}}, now)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestDirectionFor(t *testing.T) {
	assert.Equal(t, models.DirectionBuy, DirectionFor(models.AlertLongEntry))
	assert.Equal(t, models.DirectionBuy, DirectionFor(models.AlertShortExit))
	assert.Equal(t, models.DirectionSell, DirectionFor(models.AlertShortEntry))
	assert.Equal(t, models.DirectionSell, DirectionFor(models.AlertLongExit))
	assert.Equal(t, models.DirectionSell, DirectionFor(models.AlertStopLoss))
	assert.Equal(t, models.DirectionSell, DirectionFor(models.AlertTakeProfit))
	assert.Equal(t, models.DirectionHold, DirectionFor(models.AlertCustom))
	assert.Equal(t, models.DirectionHold, DirectionFor("bogus"))
}

func TestToSignal(t *testing.T) {
	a := models.Alert{
		Type:      models.AlertLongEntry,
		Symbol:    "BTCUSDT",
		Price:     decimal.NewFromInt(100),
		Timestamp: now,
		Strategy:  "breakout",
	}
	s := ToSignal(a, 0.7, 1.5)

	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, models.DirectionBuy, s.Direction)
	assert.Equal(t, models.StrengthModerate, s.Strength)
	assert.Equal(t, 0.7, s.Confidence)
	assert.Equal(t, models.SourceAlert, s.Source)
	assert.Equal(t, "breakout", s.Strategy)
	assert.Equal(t, 1.5, s.SizeMultiplier)
	assert.True(t, s.Price.Equal(a.Price))
	assert.Equal(t, "Alert converted to buy signal", Describe(s))

	assert.Equal(t, 1.0, ToSignal(a, 3, 0).Confidence)
}
