package stages

import (
	"context"
	"errors"
	"time"

	"QuantPipe/internal/domain/models"
	domsvc "QuantPipe/internal/domain/service"

	"github.com/shopspring/decimal"
)

var (
	ErrNoFillPrice  = errors.New("no positive price to fill at")
	ErrZeroQuantity = errors.New("order quantity must be positive")
)

// SimulatedVenue fills every order in full with adverse slippage and a flat fee rate.
type SimulatedVenue struct {
	slippage decimal.Decimal
	feeRate  decimal.Decimal
	latency  time.Duration
}

func NewSimulatedVenue(slippagePct, feeRate float64, latency time.Duration) *SimulatedVenue {
	return &SimulatedVenue{
		slippage: decimal.NewFromFloat(slippagePct),
		feeRate:  decimal.NewFromFloat(feeRate),
		latency:  latency,
	}
}

func (v *SimulatedVenue) Name() string { return "simulated" }

// Execute prices off the limit price, then the stop price, then reference.
func (v *SimulatedVenue) Execute(ctx context.Context, order models.Order, reference decimal.Decimal) (domsvc.Fill, error) {
	base := reference
	switch {
	case order.Price != nil:
		base = *order.Price
	case order.StopPrice != nil:
		base = *order.StopPrice
	}
	if !base.IsPositive() {
		return domsvc.Fill{}, ErrNoFillPrice
	}
	if !order.Quantity.IsPositive() {
		return domsvc.Fill{}, ErrZeroQuantity
	}

	if v.latency > 0 {
		t := time.NewTimer(v.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return domsvc.Fill{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return domsvc.Fill{}, err
	}

	slip := base.Mul(v.slippage)
	price := base.Add(slip)
	if order.Side == models.SideSell {
		price = base.Sub(slip)
	}
	price = price.RoundBank(pricePlaces)

	return domsvc.Fill{
		Price:    price,
		Quantity: order.Quantity,
		Fees:     order.Quantity.Mul(price).Mul(v.feeRate).RoundBank(pricePlaces),
		Message:  "simulated fill",
	}, nil
}

var _ domsvc.Venue = (*SimulatedVenue)(nil)
