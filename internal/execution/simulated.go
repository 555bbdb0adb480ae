package execution

import (
	"context"
	"fmt"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ids"
)

// Simulated fills every order at its reference price with a proportional
// fee and no slippage. Fill ids come from the id source, so a seeded
// source makes runs reproducible.
type Simulated struct {
	feeRate float64
	ids     ids.Source
}

// NewSimulated creates a simulated adapter.
func NewSimulated(feeRate float64, src ids.Source) *Simulated {
	if src == nil {
		src = ids.NewRandomULIDSource()
	}
	return &Simulated{feeRate: feeRate, ids: src}
}

func (s *Simulated) PlaceOrder(ctx context.Context, order core.Order) (core.Fill, error) {
	if err := ctx.Err(); err != nil {
		return core.Fill{}, err
	}
	if order.Price <= 0 {
		return core.Fill{}, core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("%s: no reference price for order %s", order.Market, order.ID))
	}

	var qty float64
	switch order.Side {
	case core.SideBuy:
		if order.Notional <= 0 {
			return core.Fill{}, core.WrapError(core.ErrOrderRejected,
				fmt.Errorf("%s: buy order %s has no notional", order.Market, order.ID))
		}
		qty = order.Notional / order.Price
	case core.SideSell:
		if order.Quantity <= 0 {
			return core.Fill{}, core.WrapError(core.ErrOrderRejected,
				fmt.Errorf("%s: sell order %s has no quantity", order.Market, order.ID))
		}
		qty = order.Quantity
	default:
		return core.Fill{}, core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("%s: unknown side %q", order.Market, order.Side))
	}

	return core.Fill{
		ID:       s.ids.New(order.CreatedAt),
		OrderID:  order.ID,
		Market:   order.Market,
		Side:     order.Side,
		Price:    order.Price,
		Quantity: qty,
		Fee:      order.Price * qty * s.feeRate,
		Reason:   order.Reason,
		Time:     order.CreatedAt,
	}, nil
}
