package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is how an order is priced.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopMarket OrderType = "stop_market"
	OrderTypeStopLimit  OrderType = "stop_limit"
)

// ParseOrderType validates s as an order type.
func ParseOrderType(s string) (OrderType, error) {
	t := OrderType(s)
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopMarket, OrderTypeStopLimit:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported order type %q", s)
	}
}

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusSubmitted OrderStatus = "submitted"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

var ErrInvalidTransition = errors.New("invalid order state transition")

// CanTransition reports whether from -> to is a forward move.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusSubmitted || to == StatusFilled || to == StatusRejected || to == StatusCancelled
	case StatusSubmitted:
		return to == StatusPartial || to == StatusFilled || to == StatusCancelled || to == StatusRejected
	case StatusPartial:
		return to == StatusPartial || to == StatusFilled || to == StatusCancelled
	default:
		return false
	}
}

// IsOpen reports whether the status can still change.
func (s OrderStatus) IsOpen() bool {
	return s == StatusPending || s == StatusSubmitted || s == StatusPartial
}

// Order is an execution intent.
type Order struct {
	ID             string           `json:"order_id"`
	Symbol         string           `json:"symbol"`
	Side           OrderSide        `json:"side"`
	Type           OrderType        `json:"order_type"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"take_profit,omitempty"`
	Status         OrderStatus      `json:"status"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	AveragePrice   *decimal.Decimal `json:"average_price,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Transition moves the order to the next status.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// Fill records a complete fill at price.
func (o *Order) Fill(price decimal.Decimal, at time.Time) error {
	if err := o.Transition(StatusFilled, at); err != nil {
		return err
	}
	o.FilledQuantity = o.Quantity
	o.AveragePrice = &price
	return nil
}

// FailureKind classifies unsuccessful execution reports.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureRejected FailureKind = "rejected"
	FailureTimeout  FailureKind = "timeout"
)

// ExecutionReport is the outcome of one order attempt.
type ExecutionReport struct {
	Order       Order           `json:"order"`
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	LatencyMs   float64         `json:"execution_time_ms"`
	Fees        decimal.Decimal `json:"fees"`
	FailureKind FailureKind     `json:"failure_kind,omitempty"`
}
