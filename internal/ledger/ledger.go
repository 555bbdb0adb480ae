package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"go.uber.org/zap"
)

// sizeEpsilon is the relative tolerance under which a SELL fill is treated
// as closing the whole position.
const sizeEpsilon = 1e-9

// Ledger is the single source of truth for positions, cash and the trade
// log. It is safe for concurrent use. Cash changes only through ApplyFill.
type Ledger struct {
	mu sync.RWMutex

	initialCash  float64
	cash         float64
	realized     float64
	trailingPct  float64
	positions    map[string]*Position // open positions by market
	closed       []Position
	trades       []core.TradeRecord
	applied      map[string]int // fill id -> index into trades
	reservations map[string]reservation
	lastPrices   map[string]float64
	lastEvent    time.Time

	logger *zap.Logger
}

type reservation struct {
	market   string
	notional float64
	fee      float64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTrailingStop makes Mark maintain TrailingStopPrice at the given
// fractional distance below the high-water mark.
func WithTrailingStop(pct float64) Option {
	return func(l *Ledger) { l.trailingPct = pct }
}

// WithLogger sets the ledger logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a ledger holding initialCash and no positions.
func New(initialCash float64, opts ...Option) *Ledger {
	l := &Ledger{
		initialCash:  initialCash,
		cash:         initialCash,
		positions:    make(map[string]*Position),
		applied:      make(map[string]int),
		reservations: make(map[string]reservation),
		lastPrices:   make(map[string]float64),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitialCash returns the starting balance.
func (l *Ledger) InitialCash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialCash
}

// ApplyFill records a confirmed fill. A BUY opens a position and releases
// the reservation held under the fill's order id; a SELL reduces or closes
// the open position and realizes P&L. Applying a fill id that was already
// applied returns the original record and changes nothing.
func (l *Ledger) ApplyFill(fill core.Fill) (core.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.applied[fill.ID]; ok && fill.ID != "" {
		return l.trades[idx], nil
	}
	if err := validateFill(fill); err != nil {
		return core.TradeRecord{}, err
	}

	var (
		rec core.TradeRecord
		err error
	)
	switch fill.Side {
	case core.SideBuy:
		rec, err = l.applyBuy(fill)
	case core.SideSell:
		rec, err = l.applySell(fill)
	default:
		err = core.WrapError(core.ErrMalformedData, fmt.Errorf("fill %s: unknown side %q", fill.ID, fill.Side))
	}
	if err != nil {
		return core.TradeRecord{}, err
	}

	l.trades = append(l.trades, rec)
	l.applied[rec.ID] = len(l.trades) - 1
	l.lastPrices[fill.Market] = fill.Price
	if fill.Time.After(l.lastEvent) {
		l.lastEvent = fill.Time
	}

	l.logger.Debug("fill applied",
		zap.String("market", rec.Market),
		zap.String("side", string(rec.Side)),
		zap.Float64("price", rec.Price),
		zap.Float64("size", rec.Size),
		zap.Float64("realized_pnl", rec.RealizedPnL),
		zap.Float64("cash", l.cash),
	)
	return rec, nil
}

func validateFill(fill core.Fill) error {
	switch {
	case fill.ID == "":
		return core.WrapError(core.ErrMalformedData, fmt.Errorf("fill for %s has no id", fill.Market))
	case fill.Market == "":
		return core.WrapError(core.ErrMalformedData, fmt.Errorf("fill %s has no market", fill.ID))
	case fill.Price <= 0 || fill.Quantity <= 0:
		return core.WrapError(core.ErrMalformedData, fmt.Errorf("fill %s: non-positive price or quantity", fill.ID))
	case fill.Fee < 0:
		return core.WrapError(core.ErrMalformedData, fmt.Errorf("fill %s: negative fee", fill.ID))
	}
	return nil
}

func (l *Ledger) applyBuy(fill core.Fill) (core.TradeRecord, error) {
	if _, open := l.positions[fill.Market]; open {
		return core.TradeRecord{}, core.WrapError(core.ErrDuplicatePosition,
			fmt.Errorf("BUY fill %s for %s while a position is open", fill.ID, fill.Market))
	}

	cost := fill.Price * fill.Quantity
	l.cash -= cost + fill.Fee
	delete(l.reservations, fill.OrderID)

	pos := &Position{
		Market:     fill.Market,
		EntryPrice: fill.Price,
		Size:       fill.Quantity,
		Cost:       cost,
		EntryFee:   fill.Fee,
		OpenedAt:   fill.Time,
		HighWater:  fill.Price,
		LastPrice:  fill.Price,
		Status:     StatusOpen,
	}
	l.updateTrailing(pos)
	l.positions[fill.Market] = pos

	return core.TradeRecord{
		ID:      fill.ID,
		OrderID: fill.OrderID,
		Market:  fill.Market,
		Side:    core.SideBuy,
		Price:   fill.Price,
		Size:    fill.Quantity,
		Fee:     fill.Fee,
		Time:    fill.Time,
		Reason:  fill.Reason,
	}, nil
}

func (l *Ledger) applySell(fill core.Fill) (core.TradeRecord, error) {
	pos, open := l.positions[fill.Market]
	if !open {
		return core.TradeRecord{}, core.WrapError(core.ErrNoPosition,
			fmt.Errorf("SELL fill %s for %s without an open position", fill.ID, fill.Market))
	}

	qty := fill.Quantity
	full := math.Abs(qty-pos.Size) <= sizeEpsilon*pos.Size
	if !full && qty > pos.Size {
		return core.TradeRecord{}, core.WrapError(core.ErrMalformedData,
			fmt.Errorf("SELL fill %s for %s exceeds position size %.8f", fill.ID, fill.Market, pos.Size))
	}
	if full {
		qty = pos.Size
	}

	// entry fee is charged to closes in proportion to the size sold
	entryFee := pos.EntryFee
	if !full {
		entryFee = pos.EntryFee * qty / pos.Size
	}
	realized := (fill.Price-pos.EntryPrice)*qty - entryFee - fill.Fee

	l.cash += fill.Price*qty - fill.Fee
	l.realized += realized

	if full {
		closed := *pos
		closed.LastPrice = fill.Price
		closed.Status = StatusClosed
		closed.ClosedAt = fill.Time
		l.closed = append(l.closed, closed)
		delete(l.positions, fill.Market)
	} else {
		pos.Size -= qty
		pos.Cost = pos.EntryPrice * pos.Size
		pos.EntryFee -= entryFee
		pos.LastPrice = fill.Price
	}

	return core.TradeRecord{
		ID:          fill.ID,
		OrderID:     fill.OrderID,
		Market:      fill.Market,
		Side:        core.SideSell,
		Price:       fill.Price,
		Size:        qty,
		Fee:         fill.Fee,
		Time:        fill.Time,
		RealizedPnL: realized,
		Reason:      fill.Reason,
	}, nil
}

func (l *Ledger) updateTrailing(pos *Position) {
	if l.trailingPct > 0 {
		pos.TrailingStopPrice = pos.HighWater * (1 - l.trailingPct)
	}
}

// Mark records the latest close for market, raising the high-water mark
// and trailing stop of an open position. It returns the updated position.
func (l *Ledger) Mark(market string, price float64, at time.Time) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastPrices[market] = price
	if at.After(l.lastEvent) {
		l.lastEvent = at
	}

	pos, open := l.positions[market]
	if !open {
		return Position{}, false
	}
	pos.LastPrice = price
	if price > pos.HighWater {
		pos.HighWater = price
		l.updateTrailing(pos)
	}
	return *pos, true
}

// Position returns a copy of the open position in market.
func (l *Ledger) Position(market string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[market]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions sorted by market.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedPositions()
}

func (l *Ledger) sortedPositions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

// Account returns the current cash and equity.
func (l *Ledger) Account() Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.account()
}

func (l *Ledger) account() Account {
	a := Account{
		Cash:          l.cash,
		RealizedPnL:   l.realized,
		OpenPositions: len(l.positions),
	}
	for _, r := range l.reservations {
		a.Reserved += r.notional + r.fee
	}
	a.Equity = l.cash
	for _, p := range l.positions {
		a.Equity += p.MarketValue()
	}
	return a
}

// Exposure returns the market value of the open position in market plus
// capital reserved for pending orders in that market.
func (l *Ledger) Exposure(market string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exposure(market)
}

func (l *Ledger) exposure(market string) float64 {
	var total float64
	if p, ok := l.positions[market]; ok {
		total += p.MarketValue()
	}
	for _, r := range l.reservations {
		if r.market == market {
			total += r.notional
		}
	}
	return total
}

// Reserve claims notional plus fee of free cash for orderID. The claim
// fails with ErrSizingVeto if notional would push the market's exposure
// above maxRatio × equity, or if notional plus fee exceeds free cash. Check
// and claim happen under one lock so concurrent markets cannot both spend
// the same cash.
func (l *Ledger) Reserve(market, orderID string, notional, fee, maxRatio float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if notional <= 0 {
		return core.WrapError(core.ErrSizingVeto, fmt.Errorf("%s: reservation of %.2f", market, notional))
	}
	if _, exists := l.reservations[orderID]; exists {
		return core.WrapError(core.ErrSizingVeto, fmt.Errorf("%s: order %s already holds a reservation", market, orderID))
	}

	acct := l.account()
	limit := maxRatio * acct.Equity
	if exp := l.exposure(market); exp+notional > limit*(1+sizeEpsilon) {
		return core.WrapError(core.ErrSizingVeto,
			fmt.Errorf("%s: exposure %.2f + %.2f exceeds limit %.2f", market, exp, notional, limit))
	}
	if need := notional + fee; need > acct.Free()*(1+sizeEpsilon) {
		return core.WrapError(core.ErrSizingVeto,
			fmt.Errorf("%s: reservation %.2f exceeds free cash %.2f", market, need, acct.Free()))
	}

	l.reservations[orderID] = reservation{market: market, notional: notional, fee: fee}
	return nil
}

// Release drops the reservation held by orderID, if any.
func (l *Ledger) Release(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reservations, orderID)
}

// Trades returns a copy of the trade log in application order.
func (l *Ledger) Trades() []core.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// Closed returns the positions closed so far.
func (l *Ledger) Closed() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// Snapshot returns a serializable copy of the ledger. Reservations are
// transient and not included.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := State{
		InitialCash: l.initialCash,
		Cash:        l.cash,
		RealizedPnL: l.realized,
		Positions:   l.sortedPositions(),
		Closed:      make([]Position, len(l.closed)),
		Trades:      make([]core.TradeRecord, len(l.trades)),
		LastPrices:  make(map[string]float64, len(l.lastPrices)),
		TakenAt:     l.lastEvent,
	}
	copy(st.Closed, l.closed)
	copy(st.Trades, l.trades)
	for k, v := range l.lastPrices {
		st.LastPrices[k] = v
	}
	return st
}

// Restore replaces the ledger contents with st.
func (l *Ledger) Restore(st State) error {
	positions := make(map[string]*Position, len(st.Positions))
	for i := range st.Positions {
		p := st.Positions[i]
		if _, dup := positions[p.Market]; dup {
			return core.WrapError(core.ErrDuplicatePosition, fmt.Errorf("snapshot holds two positions for %s", p.Market))
		}
		positions[p.Market] = &p
	}
	applied := make(map[string]int, len(st.Trades))
	for i, t := range st.Trades {
		applied[t.ID] = i
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.initialCash = st.InitialCash
	l.cash = st.Cash
	l.realized = st.RealizedPnL
	l.positions = positions
	l.closed = append([]Position(nil), st.Closed...)
	l.trades = append([]core.TradeRecord(nil), st.Trades...)
	l.applied = applied
	l.reservations = make(map[string]reservation)
	l.lastPrices = make(map[string]float64, len(st.LastPrices))
	for k, v := range st.LastPrices {
		l.lastPrices[k] = v
	}
	l.lastEvent = st.TakenAt
	return nil
}

// Replay rebuilds a ledger from initialCash and a trade log. Cash,
// positions and realized P&L match the ledger that produced the log;
// high-water marks start again from the entry price.
func Replay(initialCash float64, records []core.TradeRecord, opts ...Option) (*Ledger, error) {
	l := New(initialCash, opts...)
	for _, r := range records {
		if _, err := l.ApplyFill(r.Fill()); err != nil {
			return nil, fmt.Errorf("replaying %s: %w", r.ID, err)
		}
	}
	return l, nil
}
