package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChain_OrderAndThreading(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	ctx, km, data, err := chain.BeforeHandle(context.Background(), "candles", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))
	chain.AfterHandle(ctx, "candles", km, data, nil)

	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)
}

func TestHookChain_PanicBecomesError(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("ignored") },
	})

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, "x", string(data))

	assert.NotPanics(t, func() { chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil) })
}

func TestLoggingHook(t *testing.T) {
	h := LoggingHook{Slow: time.Second}

	_, _, _, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_EMPTY", he.Code)

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "t", km, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	_, ok := StartTime(ctx)
	assert.True(t, ok)
	assert.NotPanics(t, func() { h.AfterHandle(ctx, "t", km, nil, nil) })
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, 2*time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorIs(t, err, ErrNoBrokers)
	_, err = NewConsumer(nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
}
