// Package ledger tracks positions, cash and the trade log of the bot.
package ledger

import (
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position is a long holding in one market.
type Position struct {
	// Market is the trading pair, e.g. KRW-BTC.
	Market string `json:"market"`
	// EntryPrice is the fill price of the opening BUY.
	EntryPrice float64 `json:"entry_price"`
	// Size is the quantity held in base units.
	Size float64 `json:"size"`
	// Cost is EntryPrice times Size, excluding fees.
	Cost float64 `json:"cost"`
	// EntryFee is the fee paid on the opening BUY not yet charged to a close.
	EntryFee float64 `json:"entry_fee"`
	// OpenedAt is the time of the opening fill.
	OpenedAt time.Time `json:"opened_at"`
	// HighWater is the highest mark seen since entry.
	HighWater float64 `json:"high_water"`
	// TrailingStopPrice is HighWater less the trailing distance; zero when
	// trailing stops are disabled.
	TrailingStopPrice float64 `json:"trailing_stop_price,omitempty"`
	// LastPrice is the most recent mark.
	LastPrice float64 `json:"last_price"`
	// Status is OPEN until the closing SELL fill.
	Status Status `json:"status"`
	// ClosedAt is set when the position is closed.
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// MarketValue returns the position value at the last mark.
func (p Position) MarketValue() float64 {
	return p.Size * p.LastPrice
}

// UnrealizedPnL returns the P&L if the position closed at the last mark
// with no exit fee.
func (p Position) UnrealizedPnL() float64 {
	return (p.LastPrice-p.EntryPrice)*p.Size - p.EntryFee
}

// ReturnPct returns the price change since entry as a fraction.
func (p Position) ReturnPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.LastPrice - p.EntryPrice) / p.EntryPrice
}

// Account summarizes cash and equity.
type Account struct {
	// Cash is the quote balance, changed only by fills.
	Cash float64 `json:"cash"`
	// Reserved is capital claimed by in-flight BUY orders.
	Reserved float64 `json:"reserved"`
	// Equity is Cash plus the market value of open positions.
	Equity float64 `json:"equity"`
	// RealizedPnL is the sum of realized P&L over all closes.
	RealizedPnL float64 `json:"realized_pnl"`
	// OpenPositions counts open positions.
	OpenPositions int `json:"open_positions"`
}

// Free returns cash not claimed by reservations.
func (a Account) Free() float64 {
	return a.Cash - a.Reserved
}

// State is a serializable copy of the ledger.
type State struct {
	InitialCash float64            `json:"initial_cash"`
	Cash        float64            `json:"cash"`
	RealizedPnL float64            `json:"realized_pnl"`
	Positions   []Position         `json:"positions"`
	Closed      []Position         `json:"closed,omitempty"`
	Trades      []core.TradeRecord `json:"trades"`
	LastPrices  map[string]float64 `json:"last_prices,omitempty"`
	TakenAt     time.Time          `json:"taken_at"`
}
