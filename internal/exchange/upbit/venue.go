package upbit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/execution"
	"github.com/shopspring/decimal"
)

// volumePlaces is the base quantity precision Upbit accepts.
const volumePlaces = 8

// Venue adapts the client to execution.Venue. The order id is sent as the
// Upbit identifier, which the exchange refuses to reuse.
type Venue struct {
	client *Client
}

// NewVenue creates a venue backed by client.
func NewVenue(client *Client) *Venue {
	return &Venue{client: client}
}

func (v *Venue) Submit(ctx context.Context, order core.Order) (execution.Report, error) {
	req := OrderRequest{Market: order.Market, Identifier: order.ID}
	switch order.Side {
	case core.SideBuy:
		req.Side = SideBid
		req.Price = decimal.NewFromFloat(order.Notional).Truncate(quotePlaces(order.Market))
	case core.SideSell:
		req.Side = SideAsk
		req.Volume = decimal.NewFromFloat(order.Quantity).Truncate(volumePlaces)
	default:
		return execution.Report{}, core.WrapError(core.ErrOrderRejected, fmt.Errorf("unknown side %q", order.Side))
	}

	o, err := v.client.PlaceOrder(ctx, req)
	if err != nil {
		return execution.Report{}, classify(err)
	}
	return report(o), nil
}

func (v *Venue) Lookup(ctx context.Context, identifier string) (execution.Report, error) {
	o, err := v.client.OrderByIdentifier(ctx, identifier)
	if err != nil {
		return execution.Report{}, classify(err)
	}
	return report(o), nil
}

func report(o Order) execution.Report {
	at := o.CreatedAt
	for _, t := range o.Trades {
		if t.CreatedAt.After(at) {
			at = t.CreatedAt
		}
	}
	return execution.Report{
		ExchangeID: o.UUID,
		Identifier: o.Identifier,
		State:      o.State,
		Done:       o.Closed(),
		Price:      o.AveragePrice().InexactFloat64(),
		Quantity:   o.ExecutedVolume.InexactFloat64(),
		Fee:        o.PaidFee.InexactFloat64(),
		Time:       at.UTC(),
	}
}

// classify maps API errors onto the execution error taxonomy. Transport
// errors pass through unchanged.
func classify(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Status == http.StatusNotFound || strings.Contains(apiErr.Name, "not_found"):
		return fmt.Errorf("%w: %v", execution.ErrOrderNotFound, err)
	case apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500:
		return core.WrapError(core.ErrExchangeFailed, err)
	default:
		return core.WrapError(core.ErrOrderRejected, err)
	}
}
