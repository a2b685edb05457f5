package di

import (
	"fmt"
	"time"

	"QuantPipe/internal/alert"
	"QuantPipe/internal/domain/repository"
	"QuantPipe/internal/handler/api"
	mid "QuantPipe/internal/middleware"
	internalrepo "QuantPipe/internal/repository"
	"QuantPipe/internal/service/feed"
	"QuantPipe/internal/service/ratelimit"
	"QuantPipe/internal/services/stages"
	"QuantPipe/internal/usecase"
	"QuantPipe/pkg/cache"
	"QuantPipe/pkg/config"
	xhttp "QuantPipe/pkg/http"
	pkgkafka "QuantPipe/pkg/kafka"
	"QuantPipe/pkg/logger"
	"QuantPipe/pkg/metrics"
	"QuantPipe/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder. Kafka collectors go
// to the same registry.
func ProvideMetrics() repository.Metrics {
	pkgkafka.SetMetricsRegisterer(prometheus.DefaultRegisterer)
	return metrics.New()
}

func ProvideCandleBuffer(cfg *config.Config, m repository.Metrics) *mid.CandleBuffer {
	return mid.NewCandleBuffer(m,
		mid.WithBufferSize(cfg.Buffer.MaxSize),
		mid.WithThrottle(cfg.Buffer.ThrottleInterval),
	)
}

func ProvideDataStage(cfg *config.Config, l *logger.Logger) (*stages.DataStage, error) {
	return stages.NewDataStage(cfg.Stages.Data, l)
}

func ProvideSignalStage(cfg *config.Config, data *stages.DataStage) (*stages.SignalStage, error) {
	return stages.NewSignalStage(cfg.Stages.Signal, data)
}

func ProvideRiskStage(cfg *config.Config) (*stages.RiskStage, error) {
	return stages.NewRiskStage(cfg.Stages.Risk)
}

// ProvideExecutionStage uses the simulated venue; live venues are not built in.
func ProvideExecutionStage(cfg *config.Config, l *logger.Logger) (*stages.ExecutionStage, error) {
	return stages.NewExecutionStage(cfg.Stages.Execution, nil, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReportPublisher publishes execution reports to Kafka when a producer exists.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config, m repository.Metrics) repository.ReportPublisher {
	if producer == nil {
		return internalrepo.NewNoopReportPublisher()
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ExecutionsTopic, m)
}

func ProvideEngine(
	data *stages.DataStage,
	signal *stages.SignalStage,
	risk *stages.RiskStage,
	exec *stages.ExecutionStage,
	pub repository.ReportPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(data, signal, risk, exec, pub, m, l)
}

// ProvideStore backs alert de-duplication with Redis when enabled, memory otherwise.
func ProvideStore(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

func ProvideAlertProcessor(engine *usecase.Engine, store cache.Service, cfg *config.Config,
	m repository.Metrics, l *logger.Logger) (*usecase.AlertProcessor, error) {
	return usecase.NewAlertProcessor(engine, store, cfg.Webhook, m, l)
}

// ProvideRunner returns nil when scheduled cycles are disabled.
func ProvideRunner(cfg *config.Config, engine *usecase.Engine, buf *mid.CandleBuffer, l *logger.Logger) (*usecase.Runner, error) {
	if !cfg.Engine.RunnerEnabled {
		return nil, nil
	}
	return usecase.NewRunner(engine, buf, cfg.Engine.CycleSpec, l)
}

// ProvideCandleCollector returns nil when the websocket feed is disabled.
func ProvideCandleCollector(cfg *config.Config, buf *mid.CandleBuffer, m repository.Metrics, l *logger.Logger) *usecase.CandleCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.NewKlineStream(feed.Config{
		URL:            cfg.Feed.WebSocketURL,
		Symbols:        cfg.Feed.Symbols,
		Interval:       cfg.Feed.Interval,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
	}, l)
	return usecase.NewCandleCollector(stream, buf, m, l, cfg.Feed.ReconnectDelay)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.LoggingHook{Log: l, Slow: time.Second}))
	return consumer, nil
}

// ProvideKafkaCandlesHandler feeds the candles topic into the buffer.
func ProvideKafkaCandlesHandler(cfg *config.Config, buf *mid.CandleBuffer, m repository.Metrics) *usecase.KafkaCandlesHandler {
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, buf, m)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Webhook.RateLimit.Capacity, cfg.Webhook.RateLimit.RefillPerSec)
}

func ProvidePipelineHandler(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.Engine,
	processor *usecase.AlertProcessor,
	exec *stages.ExecutionStage,
	risk *stages.RiskStage,
	signal *stages.SignalStage,
	limiter *ratelimit.Limiter,
) *api.PipelineHandler {
	return api.NewPipelineHandler(l, api.Deps{
		Pipeline:        engine,
		Alerts:          processor,
		Orders:          exec,
		Risk:            risk,
		Signals:         signal,
		Verifier:        alert.NewVerifier(cfg.Webhook.Secret),
		Limiter:         limiter,
		SignatureHeader: cfg.Webhook.SignatureHeader,
	})
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.PipelineHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, nil, nil),
	)
}

// ProvideApp creates the application server. Kafka pieces are left out when
// Kafka is disabled.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.Engine,
	runner *usecase.Runner,
	collector *usecase.CandleCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaCandlesHandler,
	pub repository.ReportPublisher,
	store cache.Service,
	srv *xhttp.Server,
) *server.App {
	c := server.Components{
		Engine:    engine,
		Runner:    runner,
		Collector: collector,
		Publisher: pub,
		Store:     store,
		HTTP:      srv,
	}
	if consumer != nil {
		c.Consumer = consumer
		c.CandlesHandler = kh
	}
	return server.New(cfg, l, c)
}
