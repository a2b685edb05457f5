package usecase

import (
	"context"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	drepo "QuantPipe/internal/domain/repository"
	"QuantPipe/pkg/logger"
)

// CandleSink accepts ingested candles. *middleware.CandleBuffer satisfies it.
type CandleSink interface {
	Push(ctx context.Context, c models.Candle) error
}

// CandleCollector pumps a live market stream into a candle sink, reconnecting
// on stream errors.
type CandleCollector struct {
	stream         drepo.MarketStream
	sink           CandleSink
	metrics        drepo.Metrics
	log            *logger.Logger
	reconnectDelay time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewCandleCollector(stream drepo.MarketStream, sink CandleSink, metrics drepo.Metrics,
	log *logger.Logger, reconnectDelay time.Duration) *CandleCollector {
	if log == nil {
		log = logger.Nop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &CandleCollector{
		stream:         stream,
		sink:           sink,
		metrics:        orNop(metrics),
		log:            log,
		reconnectDelay: reconnectDelay,
	}
}

// IsConnected returns true if the market stream is connected.
func (c *CandleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and consumes in the background until Shutdown.
func (c *CandleCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	candles, errs := c.stream.Read(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, candles, errs)
	}()
	return nil
}

func (c *CandleCollector) consume(ctx context.Context, candles <-chan models.Candle, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("market stream error", logger.Error(err))
			c.reconnect(ctx)
		case candle, ok := <-candles:
			if !ok {
				return
			}
			if err := c.sink.Push(ctx, candle); err != nil {
				c.log.Debug("candle rejected", logger.String("symbol", candle.Symbol), logger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(candle.Symbol, candle.Close.InexactFloat64())
		}
	}
}

func (c *CandleCollector) reconnect(ctx context.Context) {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			return
		}
		c.log.Error("market stream reconnect failed", logger.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Shutdown stops consumption and closes the stream.
func (c *CandleCollector) Shutdown(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.stream.Close()
}
