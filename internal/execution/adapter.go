// Package execution turns orders into fills, either simulated or on an
// exchange.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// ErrOrderNotFound is returned by Venue.Lookup when the exchange has no
// order with the given identifier.
var ErrOrderNotFound = errors.New("execution: order not found")

// Adapter executes an order and reports the resulting fill. Rejections
// wrap core.ErrOrderRejected.
type Adapter interface {
	PlaceOrder(ctx context.Context, order core.Order) (core.Fill, error)
}

// Report is the exchange view of an order.
type Report struct {
	// ExchangeID is the exchange-assigned order id.
	ExchangeID string
	// Identifier is the client order id the order was submitted with.
	Identifier string
	// State is the raw exchange state, e.g. "wait", "done", "cancel".
	State string
	// Done is true once the order will not execute further.
	Done bool
	// Price is the average execution price.
	Price float64
	// Quantity is the executed base quantity.
	Quantity float64
	// Fee is the fee paid in quote currency.
	Fee  float64
	Time time.Time
}

// Venue is an exchange that accepts orders keyed by a client identifier.
// Submitting the same identifier twice must not create a second order.
type Venue interface {
	Submit(ctx context.Context, order core.Order) (Report, error)
	Lookup(ctx context.Context, identifier string) (Report, error)
}
