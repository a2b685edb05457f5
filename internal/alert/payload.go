// Package alert normalizes inbound strategy alerts (TradingView style webhooks)
// into pipeline signals.
package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"QuantPipe/internal/domain/models"
	"QuantPipe/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnknownSymbol is used when the payload names no symbol or ticker.
const UnknownSymbol = "UNKNOWN"

var ErrInvalidPrice = errors.New("alert: invalid price")

var typeAliases = map[string]models.AlertType{
	"buy":         models.AlertLongEntry,
	"long":        models.AlertLongEntry,
	"sell":        models.AlertShortEntry,
	"short":       models.AlertShortEntry,
	"close_long":  models.AlertLongExit,
	"close_short": models.AlertShortExit,
	"stop_loss":   models.AlertStopLoss,
	"take_profit": models.AlertTakeProfit,
}

// reserved keys are consumed by the typed fields and never copied to metadata.
var reserved = map[string]struct{}{
	"action": {}, "type": {}, "symbol": {}, "ticker": {}, "price": {}, "close": {},
}

// ParseType maps an action string onto the closed alert type set. Unknown
// actions become custom.
func ParseType(raw string) models.AlertType {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return models.AlertCustom
}

// ParsePayload builds an Alert from a decoded webhook body. now stamps the
// alert unless the payload carries time or timestamp.
func ParsePayload(data map[string]any, now time.Time) (models.Alert, error) {
	price, err := parsePrice(first(data, "price", "close"))
	if err != nil {
		return models.Alert{}, err
	}

	a := models.Alert{
		ID:        stringOr(first(data, "alert_id"), ""),
		Type:      ParseType(stringOr(first(data, "action", "type"), string(models.AlertCustom))),
		Symbol:    stringOr(first(data, "symbol", "ticker"), UnknownSymbol),
		Exchange:  stringOr(first(data, "exchange"), ""),
		Price:     price,
		Timestamp: now.UTC(),
		Strategy:  stringOr(first(data, "strategy", "strategy_name"), ""),
		Timeframe: stringOr(first(data, "timeframe", "interval"), ""),
		Message:   stringOr(first(data, "message", "comment"), ""),
		Metadata:  make(map[string]string, len(data)),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if ts, ok := parseTime(first(data, "time", "timestamp")); ok {
		a.Timestamp = ts
	}

	for k, v := range data {
		if _, skip := reserved[k]; skip {
			continue
		}
		a.Metadata[k] = stringify(v)
	}
	return a, nil
}

// first returns the value of the first key present, or nil.
func first(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func parsePrice(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidPrice, d)
	}
	return d, nil
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		return util.ParseTime(t)
	case json.Number:
		return util.ParseTime(t.String())
	case float64:
		return util.FromUnix(int64(t)), true
	}
	return time.Time{}, false
}
