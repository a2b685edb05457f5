package repository

import (
	"context"
	"errors"
	"testing"

	"QuantPipe/internal/domain/models"
	pkgkafka "QuantPipe/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	topic  string
	msgs   []pkgkafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, messages...)
	return f.err
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func report(id, symbol string, status models.OrderStatus) models.ExecutionReport {
	return models.ExecutionReport{
		Order:   models.Order{ID: id, Symbol: symbol, Status: status},
		Success: status == models.StatusFilled,
	}
}

func TestKafkaReportPublisher_KeysBySymbol(t *testing.T) {
	fp := &fakeProducer{}
	p := NewKafkaReportPublisher(fp, "executions", nil)

	err := p.PublishReports(context.Background(), []models.ExecutionReport{
		report("o1", "BTCUSDT", models.StatusFilled),
		report("o2", "ETHUSDT", models.StatusRejected),
	})
	require.NoError(t, err)

	assert.Equal(t, "executions", fp.topic)
	require.Len(t, fp.msgs, 2)
	assert.Equal(t, "BTCUSDT", string(fp.msgs[0].Key))
	assert.Equal(t, "o2", fp.msgs[1].Headers["order_id"])
	assert.Equal(t, string(models.StatusRejected), fp.msgs[1].Headers["status"])

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}

func TestKafkaReportPublisher_EmptyAndError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	p := NewKafkaReportPublisher(fp, "executions", nil)

	require.NoError(t, p.PublishReports(context.Background(), nil))
	assert.Empty(t, fp.msgs)

	assert.Error(t, p.PublishReports(context.Background(), []models.ExecutionReport{report("o1", "X", models.StatusFilled)}))
}

func TestNoopReportPublisher(t *testing.T) {
	p := NewNoopReportPublisher()
	assert.NoError(t, p.PublishReports(context.Background(), []models.ExecutionReport{{}}))
	assert.NoError(t, p.Close())
}
