package stages

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"QuantPipe/internal/domain/models"
	"QuantPipe/internal/domain/repository"
	domsvc "QuantPipe/internal/domain/service"
	"QuantPipe/pkg/config"
	"QuantPipe/pkg/logger"
)

const DataStageName = "data_layer"

// DataStage normalizes raw candle input into a MarketData batch and keeps
// a per-symbol history in arrival order.
type DataStage struct {
	lifecycle
	cfg config.DataStageConfig
	log *logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	series  map[string][]models.Candle
	dropped atomic.Int64
}

// NewDataStage validates cfg and builds the stage.
func NewDataStage(cfg config.DataStageConfig, log *logger.Logger) (*DataStage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DataStage{
		lifecycle: lifecycle{name: DataStageName, enabled: cfg.Enabled},
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		series:    make(map[string][]models.Candle),
	}, nil
}

func (s *DataStage) Initialize(ctx context.Context) error {
	return s.start()
}

// Process accepts []Candle, []*Candle, MarketData or a JSON candle array.
// Anything else is an empty batch, not an error.
func (s *DataStage) Process(ctx context.Context, raw any) (models.MarketData, error) {
	if err := s.mustBeReady(); err != nil {
		return models.MarketData{}, err
	}

	candles := CoerceCandles(raw)
	batch := models.MarketData{Candles: make([]models.Candle, 0, len(candles)), UpdatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		if s.cfg.ValidateCandles {
			if err := c.Validate(); err != nil {
				s.dropped.Add(1)
				s.log.Debug("candle dropped",
					logger.String("symbol", c.Symbol),
					logger.Error(err),
				)
				continue
			}
		}
		batch.Candles = append(batch.Candles, c)
		s.appendLocked(c)
	}
	return batch, nil
}

func (s *DataStage) appendLocked(c models.Candle) {
	hist := append(s.series[c.Symbol], c)
	if limit := s.cfg.MaxCandles; limit > 0 && len(hist) > limit {
		// evict oldest first; copy so the backing array does not grow forever
		trimmed := make([]models.Candle, limit)
		copy(trimmed, hist[len(hist)-limit:])
		hist = trimmed
	}
	s.series[c.Symbol] = hist
}

// Series returns a copy of the retained history for symbol.
func (s *DataStage) Series(symbol string) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.series[symbol]
	out := make([]models.Candle, len(hist))
	copy(out, hist)
	return out
}

// Symbols lists every symbol with retained history.
func (s *DataStage) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	return out
}

// Dropped counts candles rejected by validation since construction.
func (s *DataStage) Dropped() int64 { return s.dropped.Load() }

// Shutdown clears the store entirely.
func (s *DataStage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.series = make(map[string][]models.Candle)
	s.mu.Unlock()
	s.stop()
	return nil
}

// CoerceCandles extracts candles from loosely typed cycle input.
func CoerceCandles(raw any) []models.Candle {
	switch v := raw.(type) {
	case []models.Candle:
		return v
	case []*models.Candle:
		out := make([]models.Candle, 0, len(v))
		for _, c := range v {
			if c != nil {
				out = append(out, *c)
			}
		}
		return out
	case models.MarketData:
		return v.Candles
	case *models.MarketData:
		if v == nil {
			return nil
		}
		return v.Candles
	case []byte:
		var out []models.Candle
		if err := json.Unmarshal(v, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

var (
	_ domsvc.Stage[any, models.MarketData] = (*DataStage)(nil)
	_ repository.SeriesReader              = (*DataStage)(nil)
)
