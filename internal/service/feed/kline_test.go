package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"QuantPipe/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	klineFrame   = `{"e":"kline","E":1709294460000,"s":"BTCUSDT","k":{"t":1709294400000,"T":1709294459999,"s":"BTCUSDT","i":"1m","f":100,"L":200,"o":"61000.10","c":"61050.00","h":"61080.00","l":"60990.00","v":"12.5","n":100,"x":true,"q":"763125.0","V":"6.1","Q":"372000.0","B":"0"}}`
	partialFrame = `{"e":"kline","E":1709294430000,"s":"BTCUSDT","k":{"t":1709294400000,"T":1709294459999,"s":"BTCUSDT","i":"1m","o":"61000.10","c":"61020.00","h":"61030.00","l":"60990.00","v":"6.0","x":false}}`
)

func TestParseKline(t *testing.T) {
	c, ok, err := ParseKline([]byte(klineFrame))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, models.TF1m, c.Timeframe)
	assert.Equal(t, time.UnixMilli(1709294400000).UTC(), c.Timestamp)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("61050")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("60990")), c.Low.String())
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("12.5")), c.Volume.String())
	assert.NoError(t, c.Validate())

	_, ok, err = ParseKline([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseKline([]byte(`{"e":"kline","s":"X","k":{"o":"abc","h":"1","l":"1","c":"1","v":"1","x":true}}`))
	assert.Error(t, err)
}

func TestParseKline_SkipsOpenBar(t *testing.T) {
	_, ok, err := ParseKline([]byte(partialFrame))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKlineStream_SubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan map[string]any, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(partialFrame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineFrame))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream := NewKlineStream(Config{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"BTCUSDT"},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, stream.Connect(ctx))
	assert.True(t, stream.IsConnected())
	require.NoError(t, stream.Subscribe(ctx))

	req := <-subscribed
	assert.Equal(t, "SUBSCRIBE", req["method"])
	assert.Equal(t, []any{"btcusdt@kline_1m"}, req["params"])

	candles, _ := stream.Read(ctx)
	select {
	case c := <-candles:
		assert.Equal(t, "BTCUSDT", c.Symbol)
		assert.True(t, c.Close.Equal(decimal.RequireFromString("61050")), c.Close.String())
	case <-ctx.Done():
		t.Fatal("no candle received")
	}

	require.NoError(t, stream.Close())
	assert.False(t, stream.IsConnected())
}

func TestKlineStream_SubscribeWithoutConnect(t *testing.T) {
	stream := NewKlineStream(Config{URL: "ws://127.0.0.1:1"}, nil)
	assert.ErrorIs(t, stream.Subscribe(context.Background()), ErrNotConnected)
}
