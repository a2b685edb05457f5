package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"QuantPipe/internal/domain/models"
	domrepo "QuantPipe/internal/domain/repository"
	pkgkafka "QuantPipe/pkg/kafka"
)

var ErrEmptyCandleMessage = errors.New("empty candle message")

// KafkaCandlesHandler feeds candles from a Kafka topic into a candle sink.
// Payloads are a JSON candle object or an array of them.
type KafkaCandlesHandler struct {
	topic   string
	sink    CandleSink
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, sink CandleSink, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, sink: sink, metrics: orNop(metrics)}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// Handle returns an error only for undecodable payloads. Individually invalid
// candles are counted and skipped so one bad bar does not dead-letter a batch.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	candles, err := decodeCandles(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	for _, c := range candles {
		if c.Timeframe == "" {
			c.Timeframe = domrepo.DefaultTimeframe()
		} else {
			c.Timeframe = domrepo.NormalizeTimeframe(string(c.Timeframe))
		}
		if !c.Timestamp.IsZero() {
			h.metrics.RecordLatency("ingest_e2e", time.Since(c.Timestamp).Seconds())
		}
		if err := h.sink.Push(ctx, c); err != nil {
			h.metrics.RecordError("consumer_invalid_candle")
			continue
		}
		h.metrics.RecordMessageSent("buffer", h.topic)
	}
	return nil
}

func decodeCandles(b []byte) ([]models.Candle, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrEmptyCandleMessage
	}
	if b[0] == '[' {
		var out []models.Candle
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode candle array: %w", err)
		}
		return out, nil
	}
	var c models.Candle
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode candle: %w", err)
	}
	return []models.Candle{c}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
