package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"go.uber.org/zap"
)

// dustTolerance absorbs the quantity lost when a sell is rounded to the
// exchange's precision, so the exit still closes the whole position.
const dustTolerance = 1e-8

// Exchange places orders on a live venue. Every attempt runs under a
// timeout; a timed-out or failed attempt is retried once with the same
// client identifier, after first checking whether the venue already has
// the order.
type Exchange struct {
	venue        Venue
	timeout      time.Duration
	pollInterval time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// ExchangeOption configures an Exchange.
type ExchangeOption func(*Exchange)

// WithPollInterval sets how often pending orders are polled.
func WithPollInterval(d time.Duration) ExchangeOption {
	return func(e *Exchange) { e.pollInterval = d }
}

// WithExchangeLogger sets the adapter logger.
func WithExchangeLogger(logger *zap.Logger) ExchangeOption {
	return func(e *Exchange) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExchange creates a live adapter.
func NewExchange(venue Venue, timeout time.Duration, opts ...ExchangeOption) *Exchange {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &Exchange{
		venue:        venue,
		timeout:      timeout,
		pollInterval: 250 * time.Millisecond,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exchange) PlaceOrder(ctx context.Context, order core.Order) (core.Fill, error) {
	rep, err := e.attempt(ctx, order, false)
	if err != nil && retryable(err) && ctx.Err() == nil {
		e.logger.Warn("order attempt failed, retrying",
			zap.String("market", order.Market),
			zap.String("identifier", order.ID),
			zap.Error(err),
		)
		rep, err = e.attempt(ctx, order, true)
	}
	if err != nil {
		return core.Fill{}, fmt.Errorf("%s order %s: %w", order.Market, order.ID, err)
	}

	if rep.Quantity <= 0 {
		return core.Fill{}, core.WrapError(core.ErrOrderRejected,
			fmt.Errorf("%s order %s ended in state %q with nothing executed", order.Market, order.ID, rep.State))
	}

	qty := rep.Quantity
	if order.Side == core.SideSell && math.Abs(qty-order.Quantity) <= dustTolerance {
		qty = order.Quantity
	}

	fillID := rep.ExchangeID
	if fillID == "" {
		fillID = order.ID
	}
	at := rep.Time
	if at.IsZero() {
		at = e.now()
	}
	return core.Fill{
		ID:       fillID,
		OrderID:  order.ID,
		Market:   order.Market,
		Side:     order.Side,
		Price:    rep.Price,
		Quantity: qty,
		Fee:      rep.Fee,
		Reason:   order.Reason,
		Time:     at,
	}, nil
}

func (e *Exchange) attempt(parent context.Context, order core.Order, retry bool) (Report, error) {
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	var (
		rep Report
		err error
	)
	if retry {
		rep, err = e.venue.Lookup(ctx, order.ID)
		switch {
		case err == nil:
			e.logger.Info("order found on retry", zap.String("identifier", order.ID))
		case errors.Is(err, ErrOrderNotFound):
			rep, err = e.venue.Submit(ctx, order)
		}
	} else {
		rep, err = e.venue.Submit(ctx, order)
	}
	if err != nil {
		return Report{}, classify(ctx, err)
	}

	for !rep.Done {
		select {
		case <-ctx.Done():
			return Report{}, classify(ctx, ctx.Err())
		case <-time.After(e.pollInterval):
		}
		rep, err = e.venue.Lookup(ctx, order.ID)
		if err != nil {
			return Report{}, classify(ctx, err)
		}
	}
	return rep, nil
}

func classify(ctx context.Context, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.WrapError(core.ErrExchangeTimeout, err)
	}
	return core.WrapError(core.ErrExchangeFailed, err)
}

func retryable(err error) bool {
	return errors.Is(err, core.ErrExchangeTimeout) || errors.Is(err, core.ErrExchangeFailed)
}
