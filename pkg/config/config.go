package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"QuantPipe/pkg/logger"
	"QuantPipe/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ErrLiveVenueUnavailable is returned when simulate=false; only the simulated venue is built in.
var ErrLiveVenueUnavailable = errors.New("live execution requested but no live venue is configured")

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		CORS            bool          `yaml:"cors"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine  EngineConfig  `yaml:"engine"`
	Stages  StagesConfig  `yaml:"stages"`
	Webhook WebhookConfig `yaml:"webhook"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Kafka   struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		CandlesTopic    string   `yaml:"candles_topic" default:"candles"`
		ExecutionsTopic string   `yaml:"executions_topic" default:"executions"`
		RequiredAcks    int      `yaml:"required_acks" default:"1"`
		Compression     string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"quantpipe"`
			Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
		Prefix   string `yaml:"prefix" default:"quantpipe"`
	} `yaml:"redis"`
	Feed FeedConfig `yaml:"feed"`
}

// EngineConfig controls the scheduled cycle runner.
type EngineConfig struct {
	RunnerEnabled bool   `yaml:"runner_enabled" default:"true"`
	CycleSpec     string `yaml:"cycle_spec" default:"@every 5s" validate:"required"`
	// StopTimeout bounds the concurrent stage shutdown.
	StopTimeout time.Duration `yaml:"stop_timeout" default:"10s"`
}

type StagesConfig struct {
	Data      DataStageConfig      `yaml:"data"`
	Signal    SignalStageConfig    `yaml:"signal"`
	Risk      RiskStageConfig      `yaml:"risk"`
	Execution ExecutionStageConfig `yaml:"execution"`
}

type DataStageConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// MaxCandles caps retained history per symbol; 0 keeps everything.
	MaxCandles      int  `yaml:"max_candles" default:"1000" validate:"gte=0"`
	ValidateCandles bool `yaml:"validate_candles" default:"true"`
}

type SignalStageConfig struct {
	Enabled         bool    `yaml:"enabled" default:"true"`
	BuyThreshold    float64 `yaml:"buy_threshold" default:"0.01" validate:"gte=0,lt=1"`
	SellThreshold   float64 `yaml:"sell_threshold" default:"0.01" validate:"gte=0,lt=1"`
	StrongThreshold float64 `yaml:"strong_threshold" default:"0.03" validate:"gte=0,lt=1"`
	ConfidenceScale float64 `yaml:"confidence_scale" default:"10" validate:"gt=0"`
	RSIPeriod       int     `yaml:"rsi_period" default:"14" validate:"gte=1,lte=500"`
	RSIOverbought   float64 `yaml:"rsi_overbought" default:"70" validate:"gt=0,lte=100,gtfield=RSIOversold"`
	RSIOversold     float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lt=100"`
	HistorySize     int     `yaml:"history_size" default:"500" validate:"gte=0"`
}

type RiskStageConfig struct {
	Enabled                 bool    `yaml:"enabled" default:"true"`
	PortfolioValue          float64 `yaml:"portfolio_value" default:"100000" validate:"gt=0"`
	MaxPositionSizePct      float64 `yaml:"max_position_size_pct" default:"0.1" validate:"gt=0,lte=1"`
	MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct" default:"0.5" validate:"gt=0,lte=1"`
	StopLossPct             float64 `yaml:"stop_loss_pct" default:"0.02" validate:"gt=0,lt=1"`
	TakeProfitPct           float64 `yaml:"take_profit_pct" default:"0.04" validate:"gt=0,lt=1"`
	MinRiskRewardRatio      float64 `yaml:"min_risk_reward_ratio" default:"1.5" validate:"gte=0"`
	RiskLevel               string  `yaml:"risk_level" default:"moderate" validate:"oneof=conservative moderate aggressive"`
}

type ExecutionStageConfig struct {
	Enabled          bool          `yaml:"enabled" default:"true"`
	Simulate         bool          `yaml:"simulate" default:"true"`
	SlippagePct      float64       `yaml:"slippage_pct" default:"0.001" validate:"gte=0,lt=1"`
	FeeRate          float64       `yaml:"fee_rate" default:"0.001" validate:"gte=0,lt=1"`
	DefaultOrderType string        `yaml:"default_order_type" default:"market" validate:"oneof=market limit stop_market stop_limit"`
	FillTimeout      time.Duration `yaml:"fill_timeout" default:"5s" validate:"gt=0"`
	SimulatedLatency time.Duration `yaml:"simulated_latency" validate:"gte=0"`
}

type WebhookConfig struct {
	Secret          string        `yaml:"secret"`
	SignatureHeader string        `yaml:"signature_header" default:"X-Signature"`
	DedupTTL        time.Duration `yaml:"dedup_ttl" default:"10m"`
	AlertConfidence float64       `yaml:"alert_confidence" default:"0.7" validate:"gte=0,lte=1"`
	HistorySize     int           `yaml:"history_size" default:"1000" validate:"gte=0"`
	RateLimit       struct {
		Capacity     int     `yaml:"capacity" default:"20" validate:"gte=1"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"5" validate:"gt=0"`
	} `yaml:"rate_limit"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"dive"`
}

// StrategyConfig pre-registers an alert strategy. Enabled defaults to true when omitted.
type StrategyConfig struct {
	Name           string   `yaml:"name" validate:"required"`
	Version        string   `yaml:"version" default:"1.0.0"`
	Description    string   `yaml:"description"`
	Symbols        []string `yaml:"symbols"`
	Timeframes     []string `yaml:"timeframes"`
	Enabled        *bool    `yaml:"enabled"`
	RiskMultiplier float64  `yaml:"risk_multiplier" default:"1.0" validate:"gte=0.1,lte=3"`
	MaxPositions   int      `yaml:"max_positions" default:"5" validate:"gte=1"`
}

// BufferConfig sizes the ingestion buffer that feeds scheduled cycles.
type BufferConfig struct {
	MaxSize          int           `yaml:"max_size" default:"10000" validate:"gte=1"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/ws"`
	Symbols        []string      `yaml:"symbols"`
	Interval       string        `yaml:"interval" default:"1m"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

// Default returns a fully defaulted configuration.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
// Defaults are applied before decoding so explicit zero values in the file win.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Webhook.Strategies {
		if err := defaults.Set(&c.Webhook.Strategies[i]); err != nil {
			return nil, fmt.Errorf("apply strategy defaults: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("QUANTPIPE_WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitAndTrim(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("QUANTPIPE_PAPER_TRADING"); v != "" {
		paper, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("QUANTPIPE_PAPER_TRADING: %w", err)
		}
		c.Stages.Execution.Simulate = paper
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Feed.Enabled && len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols cannot be empty when the feed is enabled")
	}
	if err := c.Stages.Execution.Validate(); err != nil {
		return err
	}
	return nil
}

func (c DataStageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("data stage config: %w", err)
	}
	return nil
}

func (c SignalStageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("signal stage config: %w", err)
	}
	if c.StrongThreshold < c.BuyThreshold || c.StrongThreshold < c.SellThreshold {
		return fmt.Errorf("signal stage config: strong_threshold %v below buy/sell threshold", c.StrongThreshold)
	}
	return nil
}

func (c RiskStageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("risk stage config: %w", err)
	}
	return nil
}

func (c ExecutionStageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("execution stage config: %w", err)
	}
	return nil
}

// RequireVenue reports a configuration error when live execution is requested without a venue.
func (c ExecutionStageConfig) RequireVenue(haveLive bool) error {
	if !c.Simulate && !haveLive {
		return ErrLiveVenueUnavailable
	}
	return nil
}
