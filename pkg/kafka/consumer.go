package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"QuantPipe/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics through one consumer group and fans
// messages out to a worker pool. At most one message per (topic, partition)
// is in flight so per-symbol ordering survives when producers key by symbol.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	msgChan  chan *message
	cancel   context.CancelFunc
	readWg   sync.WaitGroup
	workWg   sync.WaitGroup
	stopOnce sync.Once

	lockMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

type partitionKey struct {
	topic     string
	partition int
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "quantpipe",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log,
		hook:      NoopHook{},
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) error {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		return fmt.Errorf("kafka: handler already registered for topic %s", topic)
	}
	c.handlers[topic] = handler
	return nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one reader per topic and the worker pool.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("kafka: no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWg.Add(1)
		go c.worker(ctx)
	}
	for topic, reader := range c.readers {
		c.readWg.Add(1)
		go c.fetch(ctx, topic, reader)
	}

	c.log.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop stops readers, drains workers, and closes connections.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.readWg.Wait()
			close(c.msgChan)
			c.workWg.Wait()
			close(done)
		}()

		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("kafka reader close failed", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka DLQ writer close failed", logger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, topic string, reader *kafka.Reader) {
	defer c.readWg.Done()
	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}

		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.workWg.Done()
	for msg := range c.msgChan {
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(ctx, handler, msg)
	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(ctx, msg.topic, msg.km, msg.km.Value, err)
		c.log.Error("kafka message failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Error(err))
		if c.dlq != nil {
			c.deadLetter(msg)
			result = "dead_lettered"
		}
	}
	consumerResults.WithLabelValues(msg.topic, result).Inc()

	// commit on success or after dead-lettering to avoid poison loops
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			c.commitWithRetry(reader, msg.km, 3)
		}
	}
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg *message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()

	for attempt := 1; ; attempt++ {
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			return berr
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, data, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return err
		}
	}
}

func (c *Consumer) deadLetter(msg *message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	})
	if err != nil {
		c.log.Error("kafka DLQ write failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
	}
}

// commitWithRetry commits with a fresh context so offsets still land during shutdown.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, attempts int) {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka commit failed", logger.String("topic", km.Topic), logger.Int64("offset", km.Offset), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	key := partitionKey{topic: topic, partition: partition}
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := hi
	if attempt < 32 {
		if e := lo * time.Duration(1<<uint(attempt-1)); e > 0 && e < hi {
			exp = e
		}
	}
	// up to 50% jitter
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}
