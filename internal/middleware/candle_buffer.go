package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	domrepo "QuantPipe/internal/domain/repository"
)

// CandleBuffer sits between ingestion (websocket feed, Kafka) and the cycle
// runner. It validates, throttles per series and keeps a bounded batch that
// Drain hands to the next cycle. When full the oldest candle is dropped.
type CandleBuffer struct {
	metrics  domrepo.Metrics
	maxSize  int
	throttle time.Duration
	now      func() time.Time

	mu       sync.Mutex
	buf      []models.Candle
	index    map[seriesKey]int // position of the latest buffered bar per series
	lastSeen map[seriesKey]time.Time
	dropped  int64
}

type seriesKey struct {
	symbol    string
	timeframe models.Timeframe
}

type BufferOption func(*CandleBuffer)

// WithBufferSize bounds the number of buffered candles.
func WithBufferSize(n int) BufferOption {
	return func(b *CandleBuffer) {
		if n > 0 {
			b.maxSize = n
		}
	}
}

// WithThrottle drops updates for a series arriving closer than d apart.
func WithThrottle(d time.Duration) BufferOption {
	return func(b *CandleBuffer) { b.throttle = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BufferOption {
	return func(b *CandleBuffer) { b.now = now }
}

func NewCandleBuffer(metrics domrepo.Metrics, opts ...BufferOption) *CandleBuffer {
	b := &CandleBuffer{
		metrics:  metrics,
		maxSize:  10000,
		now:      time.Now,
		index:    make(map[seriesKey]int),
		lastSeen: make(map[seriesKey]time.Time),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push validates and buffers one candle. A bar with the same open time as the
// series' latest buffered bar replaces it, so in-progress kline updates
// collapse into one candle. Throttled candles are dropped without error.
func (b *CandleBuffer) Push(_ context.Context, c models.Candle) error {
	if err := c.Validate(); err != nil {
		b.recordError("buffer_validate")
		return fmt.Errorf("candle %s: %w", c.Symbol, err)
	}

	key := seriesKey{symbol: c.Symbol, timeframe: c.Timeframe}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.index[key]; ok && b.buf[i].Timestamp.Equal(c.Timestamp) {
		b.buf[i] = c
		b.lastSeen[key] = now
		return nil
	}

	if b.throttle > 0 {
		if last, ok := b.lastSeen[key]; ok && now.Sub(last) < b.throttle {
			b.recordError("buffer_throttle")
			return nil
		}
	}
	b.lastSeen[key] = now

	if len(b.buf) >= b.maxSize {
		b.buf = b.buf[1:]
		b.dropped++
		b.recordError("buffer_drop")
		b.reindexLocked()
	}
	b.buf = append(b.buf, c)
	b.index[key] = len(b.buf) - 1
	return nil
}

// PushBatch buffers every candle, returning the first validation error.
func (b *CandleBuffer) PushBatch(ctx context.Context, candles []models.Candle) error {
	var first error
	for _, c := range candles {
		if err := b.Push(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Drain empties the buffer, returning candles in arrival order.
func (b *CandleBuffer) Drain() []models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = nil
	clear(b.index)
	if b.metrics != nil {
		b.metrics.RecordBufferDrain(len(out))
	}
	return out
}

func (b *CandleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Dropped counts candles evicted because the buffer was full.
func (b *CandleBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *CandleBuffer) reindexLocked() {
	clear(b.index)
	for i, c := range b.buf {
		b.index[seriesKey{symbol: c.Symbol, timeframe: c.Timeframe}] = i
	}
}

func (b *CandleBuffer) recordError(kind string) {
	if b.metrics != nil {
		b.metrics.RecordError(kind)
	}
}
