package stages

import (
	"testing"
	"time"

	"QuantPipe/internal/domain/models"
	"QuantPipe/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func defaultStages(t *testing.T) config.StagesConfig {
	t.Helper()
	c, err := config.Default()
	require.NoError(t, err)
	return c.Stages
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// candle builds a well-formed bar closing at close, i bars after t0.
func candle(symbol string, i int, close string) models.Candle {
	c := d(close)
	return models.Candle{
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      c,
		High:      c,
		Low:       c,
		Close:     c,
		Volume:    d("1"),
		Symbol:    symbol,
		Timeframe: models.TF1h,
	}
}

func series(symbol string, closes ...string) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle(symbol, i, c)
	}
	return out
}

type fixedSeries map[string][]models.Candle

func (f fixedSeries) Series(symbol string) []models.Candle { return f[symbol] }
