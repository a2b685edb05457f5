package service

import (
	"context"
	"errors"

	"QuantPipe/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ErrFillTimeout marks a fill that did not complete before its deadline.
var ErrFillTimeout = errors.New("fill timed out")

// Fill is the venue's answer for one order.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fees     decimal.Decimal
	Message  string
}

// Venue executes orders. Implementations must honor ctx cancellation.
type Venue interface {
	Name() string
	Execute(ctx context.Context, order models.Order, reference decimal.Decimal) (Fill, error)
}
