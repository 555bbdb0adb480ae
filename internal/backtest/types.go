package backtest

import (
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

// Report holds the complete backtest output
type Report struct {
	Markets       []string           `json:"markets"`
	Start         time.Time          `json:"start"`
	End           time.Time          `json:"end"`
	Bars          int                `json:"bars"`
	InitialEquity float64            `json:"initial_equity"`
	FinalEquity   float64            `json:"final_equity"`
	RealizedPnL   float64            `json:"realized_pnl"`
	Stats         Stats              `json:"stats"`
	Trades        []core.TradeRecord `json:"trades"`
	OpenPositions []ledger.Position  `json:"open_positions,omitempty"`
	Equity        []EquityPoint      `json:"equity_curve,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// EquityPoint is the account equity after all bars of one timestamp.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Stats holds performance statistics
type Stats struct {
	// TotalTrades counts fills, entries and exits.
	TotalTrades int `json:"total_trades"`
	// ClosedTrades counts SELL fills.
	ClosedTrades  int `json:"closed_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`
	// WinRate is the percentage of closes with positive realized P&L.
	WinRate float64 `json:"win_rate"`
	// TotalReturn is the equity return in percent.
	TotalReturn float64 `json:"total_return"`
	// MaxDrawdown is the largest peak-to-trough equity decline in percent.
	MaxDrawdown float64 `json:"max_drawdown"`
	// SharpeRatio is annualized from per-bar equity returns.
	SharpeRatio float64 `json:"sharpe_ratio"`
	TotalFees   float64 `json:"total_fees"`
}
