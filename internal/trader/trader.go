// Package trader runs a bar through indicators, signal fusion, risk,
// execution and the ledger. Live trading and backtests share it.
package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/execution"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/newthinker/upbot/internal/risk"
	"github.com/newthinker/upbot/internal/strategy"
	"go.uber.org/zap"
)

// Outcome describes what happened on one bar.
type Outcome struct {
	Bar      core.Bar
	Snapshot indicator.Snapshot
	Signal   core.Signal
	// Position is the open position after marking, before any order.
	Position *ledger.Position
	Decision risk.Decision
	Order    *core.Order
	Record   *core.TradeRecord
}

// Traded reports whether a fill was applied.
func (o Outcome) Traded() bool {
	return o.Record != nil
}

// Components are the collaborators of a Trader.
type Components struct {
	Indicators indicator.Config
	Engine     *strategy.Engine
	Risk       *risk.Manager
	Ledger     *ledger.Ledger
	Adapter    execution.Adapter
	Logger     *zap.Logger
}

// Trader keeps per-market indicator state over a shared ledger. Different
// markets may be processed concurrently; bars of one market must be fed
// in order from a single goroutine.
type Trader struct {
	indicators indicator.Config
	engine     *strategy.Engine
	risk       *risk.Manager
	ledger     *ledger.Ledger
	adapter    execution.Adapter
	logger     *zap.Logger

	mu   sync.Mutex
	sets map[string]*indicator.Set
}

// New creates a Trader.
func New(c Components) *Trader {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trader{
		indicators: c.Indicators,
		engine:     c.Engine,
		risk:       c.Risk,
		ledger:     c.Ledger,
		adapter:    c.Adapter,
		logger:     logger,
		sets:       make(map[string]*indicator.Set),
	}
}

// Ledger returns the shared ledger.
func (t *Trader) Ledger() *ledger.Ledger {
	return t.ledger
}

func (t *Trader) set(market string) *indicator.Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sets[market]
	if !ok {
		s = indicator.NewSet(market, t.indicators)
		t.sets[market] = s
	}
	return s
}

// Observe feeds bar to the indicators and the signal engine without
// touching positions. It is used to warm up state from history.
func (t *Trader) Observe(bar core.Bar) (indicator.Snapshot, core.Signal, error) {
	if err := bar.Validate(); err != nil {
		return indicator.Snapshot{}, core.Signal{}, err
	}
	snap, err := t.set(bar.Market).Update(bar)
	if err != nil {
		return indicator.Snapshot{}, core.Signal{}, err
	}
	return snap, t.engine.Evaluate(snap), nil
}

// OnBar processes one closed bar: it computes the signal, marks the open
// position, lets the risk manager decide and executes the resulting order.
// A failed order leaves the ledger untouched apart from releasing its
// reservation.
func (t *Trader) OnBar(ctx context.Context, bar core.Bar) (Outcome, error) {
	snap, sig, err := t.Observe(bar)
	if err != nil {
		return Outcome{Bar: bar}, err
	}
	out := Outcome{Bar: bar, Snapshot: snap, Signal: sig}

	var pos *ledger.Position
	if p, open := t.ledger.Mark(bar.Market, bar.Close, bar.Time); open {
		pos = &p
		out.Position = &p
	}

	order, decision := t.risk.Decide(sig, pos, t.ledger.Account())
	out.Decision = decision
	if order == nil {
		return out, nil
	}
	out.Order = order

	fill, err := t.adapter.PlaceOrder(ctx, *order)
	if err != nil {
		t.ledger.Release(order.ID)
		return out, fmt.Errorf("placing %s %s order: %w", order.Market, order.Side, err)
	}

	rec, err := t.ledger.ApplyFill(fill)
	if err != nil {
		t.ledger.Release(order.ID)
		return out, fmt.Errorf("applying fill %s: %w", fill.ID, err)
	}
	out.Record = &rec

	t.logger.Info("order filled",
		zap.String("market", rec.Market),
		zap.String("side", string(rec.Side)),
		zap.String("reason", string(rec.Reason)),
		zap.Float64("price", rec.Price),
		zap.Float64("size", rec.Size),
		zap.Float64("fee", rec.Fee),
		zap.Float64("realized_pnl", rec.RealizedPnL),
	)
	return out, nil
}
