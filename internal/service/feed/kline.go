// Package feed streams exchange klines over websocket as candles.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"QuantPipe/internal/domain/models"
	drepo "QuantPipe/internal/domain/repository"
	"QuantPipe/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var ErrNotConnected = errors.New("feed: not connected")

// Config configures a kline stream.
type Config struct {
	URL            string
	Symbols        []string
	Interval       string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// KlineStream implements MarketStream over a Binance-compatible kline
// websocket. The channels returned by Read survive reconnects.
type KlineStream struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	ready     chan struct{}
	nextID    int
}

func NewKlineStream(cfg Config, log *logger.Logger) *KlineStream {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	return &KlineStream{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    log,
		ready:  make(chan struct{}, 1),
	}
}

var _ drepo.MarketStream = (*KlineStream)(nil)

// Connect dials the websocket endpoint.
func (s *KlineStream) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	s.log.Info("kline feed connected", logger.String("url", s.cfg.URL))
	return nil
}

// Subscribe requests <symbol>@kline_<interval> streams for every configured symbol.
func (s *KlineStream) Subscribe(_ context.Context) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	params := make([]string, len(s.cfg.Symbols))
	for i, sym := range s.cfg.Symbols {
		params[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), s.cfg.Interval)
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	s.writeMu.Lock()
	err := conn.WriteJSON(map[string]any{"method": "SUBSCRIBE", "params": params, "id": id})
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	s.log.Info("kline feed subscribed", logger.Strings("streams", params))
	return nil
}

// encoding/json matches keys case-insensitively, so "E", "T", "L" and "V"
// need their own fields or they land on "e", "t", "l" and "v".
type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		Start     int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		LastTrade int64  `json:"L"`
		TakerBuy  string `json:"V"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// ParseKline converts one closed kline frame. ok is false for non-kline
// frames such as subscription acks and for updates of a bar still open.
func ParseKline(b []byte) (models.Candle, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return models.Candle{}, false, err
	}
	if ev.Event != "kline" || !ev.Kline.Closed {
		return models.Candle{}, false, nil
	}

	k := ev.Kline
	var (
		c    models.Candle
		errs []error
	)
	parse := func(v string) decimal.Decimal {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	c.Open, c.High, c.Low, c.Close, c.Volume = parse(k.Open), parse(k.High), parse(k.Low), parse(k.Close), parse(k.Volume)
	if err := errors.Join(errs...); err != nil {
		return models.Candle{}, false, fmt.Errorf("kline %s: %w", ev.Symbol, err)
	}
	c.Symbol = ev.Symbol
	c.Timestamp = time.UnixMilli(k.Start).UTC()
	c.Timeframe = drepo.NormalizeTimeframe(k.Interval)
	return c, true, nil
}

// Read streams candles until ctx is done. A read error is reported on the
// error channel and reading resumes once Connect or Reconnect succeeds.
func (s *KlineStream) Read(ctx context.Context) (<-chan models.Candle, <-chan error) {
	candles := make(chan models.Candle, 1024)
	errs := make(chan error, 1)

	if s.cfg.PingInterval > 0 {
		go s.pingLoop(ctx)
	}

	go func() {
		defer close(candles)
		for {
			conn := s.current()
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-s.ready:
					continue
				}
			}

			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.markDisconnected(conn)
				select {
				case errs <- fmt.Errorf("feed read: %w", err):
				case <-ctx.Done():
					return
				}
				continue
			}

			c, ok, err := ParseKline(b)
			if err != nil {
				s.log.Debug("kline frame ignored", logger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case candles <- c:
			case <-ctx.Done():
				return
			default:
				s.log.Warn("kline dropped, consumer behind", logger.String("symbol", c.Symbol))
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return candles, errs
}

func (s *KlineStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn := s.current(); conn != nil {
				s.writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.writeMu.Unlock()
			}
		}
	}
}

// Reconnect closes the current connection, waits ReconnectDelay and
// resubscribes.
func (s *KlineStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.ReconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the websocket connection.
func (s *KlineStream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *KlineStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *KlineStream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *KlineStream) markDisconnected(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.connected = false
	}
	s.mu.Unlock()
	_ = conn.Close()
}
