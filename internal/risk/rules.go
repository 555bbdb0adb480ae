package risk

import (
	"fmt"
	"math"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

// ExitRule is one predicate of the exit chain. Rules are checked in order
// on every bar while a position is open; the first match wins.
type ExitRule interface {
	Reason() core.ExitReason
	// Check reports whether the position should be closed at price.
	Check(pos ledger.Position, price float64, sig core.Signal) (bool, string)
}

// StopLoss exits when price falls pct below entry.
type StopLoss struct{ Pct float64 }

func (r StopLoss) Reason() core.ExitReason { return core.ReasonStopLoss }

func (r StopLoss) Check(pos ledger.Position, price float64, _ core.Signal) (bool, string) {
	trigger := pos.EntryPrice * (1 - r.Pct)
	if price <= trigger {
		return true, fmt.Sprintf("close %.2f at or below stop %.2f (entry %.2f, -%.1f%%)", price, trigger, pos.EntryPrice, r.Pct*100)
	}
	return false, ""
}

// TakeProfit exits when price rises pct above entry.
type TakeProfit struct{ Pct float64 }

func (r TakeProfit) Reason() core.ExitReason { return core.ReasonTakeProfit }

func (r TakeProfit) Check(pos ledger.Position, price float64, _ core.Signal) (bool, string) {
	trigger := pos.EntryPrice * (1 + r.Pct)
	if price >= trigger {
		return true, fmt.Sprintf("close %.2f at or above target %.2f (entry %.2f, +%.1f%%)", price, trigger, pos.EntryPrice, r.Pct*100)
	}
	return false, ""
}

// TrailingStop exits when price falls pct below the high-water mark.
type TrailingStop struct{ Pct float64 }

func (r TrailingStop) Reason() core.ExitReason { return core.ReasonTrailingStop }

func (r TrailingStop) Check(pos ledger.Position, price float64, _ core.Signal) (bool, string) {
	high := math.Max(pos.HighWater, price)
	trigger := high * (1 - r.Pct)
	if price <= trigger {
		return true, fmt.Sprintf("close %.2f at or below trailing stop %.2f (high %.2f)", price, trigger, high)
	}
	return false, ""
}

// SignalExit exits on a SELL signal of at least MinStrength.
type SignalExit struct{ MinStrength float64 }

func (r SignalExit) Reason() core.ExitReason { return core.ReasonSignal }

func (r SignalExit) Check(_ ledger.Position, _ float64, sig core.Signal) (bool, string) {
	if sig.Direction == core.DirectionSell && sig.Strength >= r.MinStrength {
		return true, fmt.Sprintf("sell signal %.2f: %s", sig.Strength, sig.Reason)
	}
	return false, ""
}

// DefaultRules builds the exit chain: stop-loss, take-profit, trailing stop
// (when enabled), then discretionary signal exit.
func DefaultRules(cfg Config) []ExitRule {
	rules := []ExitRule{
		StopLoss{Pct: cfg.StopLoss},
		TakeProfit{Pct: cfg.TakeProfit},
	}
	if cfg.UseTrailingStop {
		rules = append(rules, TrailingStop{Pct: cfg.TrailingStop})
	}
	return append(rules, SignalExit{MinStrength: cfg.MinSignalStrength})
}
