package repository

import (
	"context"

	"QuantPipe/internal/domain/models"
)

// MarketStream is a live candle feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Candle, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ReportPublisher fans cycle outputs out to downstream consumers.
type ReportPublisher interface {
	PublishReports(ctx context.Context, reports []models.ExecutionReport) error
	Close() error
}

// SeriesReader exposes read-only snapshots of retained candle history.
type SeriesReader interface {
	Series(symbol string) []models.Candle
}

type Metrics interface {
	RecordCycle(seconds float64)
	RecordStageLatency(stage string, seconds float64)
	RecordSignal(direction string)
	RecordAssessment(outcome string)
	RecordOrder(status string)
	RecordError(kind string)
	RecordExposure(pct float64)
	RecordLastPrice(symbol string, price float64)
	RecordMessageSent(backend, topic string)
	RecordLatency(op string, seconds float64)
	RecordBufferDrain(size int)
}
