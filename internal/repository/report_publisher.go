package repository

import (
	"context"

	"QuantPipe/internal/domain/models"
	"QuantPipe/internal/domain/repository"
	pkgkafka "QuantPipe/pkg/kafka"
)

// BatchProducer is the slice of *pkgkafka.Producer the publisher needs.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaReportPublisher publishes execution reports keyed by symbol so a
// symbol's reports stay ordered within one partition.
type KafkaReportPublisher struct {
	producer BatchProducer
	topic    string
	metrics  repository.Metrics
}

func NewKafkaReportPublisher(producer BatchProducer, topic string, metrics repository.Metrics) repository.ReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic, metrics: metrics}
}

func (p *KafkaReportPublisher) PublishReports(ctx context.Context, reports []models.ExecutionReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(reports))
	for i, r := range reports {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(r.Order.Symbol),
			Value: r,
			Headers: map[string]string{
				"order_id": r.Order.ID,
				"status":   string(r.Order.Status),
			},
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("publish_reports")
		}
		return err
	}
	if p.metrics != nil {
		for range reports {
			p.metrics.RecordMessageSent("kafka", p.topic)
		}
	}
	return nil
}

func (p *KafkaReportPublisher) Close() error {
	return p.producer.Close()
}

// NoopReportPublisher discards reports. Used when Kafka is disabled.
type NoopReportPublisher struct{}

func NewNoopReportPublisher() repository.ReportPublisher { return NoopReportPublisher{} }

func (NoopReportPublisher) PublishReports(context.Context, []models.ExecutionReport) error {
	return nil
}

func (NoopReportPublisher) Close() error { return nil }
