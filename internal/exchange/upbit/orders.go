package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order sides and types as Upbit names them.
const (
	SideBid = "bid"
	SideAsk = "ask"

	// OrdTypePrice is a market buy for a quote amount.
	OrdTypePrice = "price"
	// OrdTypeMarket is a market sell of a base volume.
	OrdTypeMarket = "market"
)

// Order states
const (
	StateWait   = "wait"
	StateWatch  = "watch"
	StateDone   = "done"
	StateCancel = "cancel"
)

// OrderRequest places a market order. Price is the quote amount for a
// bid, Volume the base quantity for an ask.
type OrderRequest struct {
	Market     string
	Side       string
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Identifier string
}

func (r OrderRequest) params() url.Values {
	p := url.Values{}
	p.Set("market", r.Market)
	p.Set("side", r.Side)
	if r.Side == SideBid {
		p.Set("ord_type", OrdTypePrice)
		p.Set("price", r.Price.String())
	} else {
		p.Set("ord_type", OrdTypeMarket)
		p.Set("volume", r.Volume.String())
	}
	if r.Identifier != "" {
		p.Set("identifier", r.Identifier)
	}
	return p
}

// Trade is one execution of an order.
type Trade struct {
	Market    string          `json:"market"`
	UUID      string          `json:"uuid"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Funds     decimal.Decimal `json:"funds"`
	Side      string          `json:"side"`
	CreatedAt time.Time       `json:"created_at"`
}

// Order is the exchange view of an order.
type Order struct {
	UUID            string          `json:"uuid"`
	Side            string          `json:"side"`
	OrdType         string          `json:"ord_type"`
	Price           decimal.Decimal `json:"price"`
	State           string          `json:"state"`
	Market          string          `json:"market"`
	CreatedAt       time.Time       `json:"created_at"`
	Volume          decimal.Decimal `json:"volume"`
	RemainingVolume decimal.Decimal `json:"remaining_volume"`
	ExecutedVolume  decimal.Decimal `json:"executed_volume"`
	PaidFee         decimal.Decimal `json:"paid_fee"`
	TradesCount     int             `json:"trades_count"`
	Identifier      string          `json:"identifier"`
	Trades          []Trade         `json:"trades"`
}

// Closed reports whether the order will not execute further. Market buys
// by amount end as cancelled once the remainder is too small to fill.
func (o Order) Closed() bool {
	return o.State == StateDone || o.State == StateCancel
}

// AveragePrice is the volume-weighted execution price.
func (o Order) AveragePrice() decimal.Decimal {
	funds, vol := decimal.Zero, decimal.Zero
	for _, t := range o.Trades {
		funds = funds.Add(t.Funds)
		vol = vol.Add(t.Volume)
	}
	if vol.IsZero() {
		return o.Price
	}
	return funds.Div(vol)
}

// PlaceOrder submits a market order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", req.params(), true, &out); err != nil {
		return Order{}, fmt.Errorf("placing %s %s order: %w", req.Market, req.Side, err)
	}
	return out, nil
}

// OrderByIdentifier looks an order up by the client identifier it was
// placed with.
func (c *Client) OrderByIdentifier(ctx context.Context, identifier string) (Order, error) {
	params := url.Values{}
	params.Set("identifier", identifier)

	var out Order
	if err := c.do(ctx, http.MethodGet, "/v1/order", params, true, &out); err != nil {
		return Order{}, fmt.Errorf("looking up order %s: %w", identifier, err)
	}
	return out, nil
}

// quotePlaces is the number of decimals accepted for a quote amount.
func quotePlaces(market string) int32 {
	if strings.HasPrefix(market, "KRW-") {
		return 0
	}
	return 8
}
