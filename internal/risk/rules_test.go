package risk

import (
	"testing"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

func TestTrailingStop_UsesCurrentHigh(t *testing.T) {
	r := TrailingStop{Pct: 0.02}
	pos := ledger.Position{EntryPrice: 100, HighWater: 100}

	// price above the stored high raises the reference, so no trigger
	if hit, _ := r.Check(pos, 110, core.Signal{}); hit {
		t.Error("new high should not trigger trailing stop")
	}
	if hit, _ := r.Check(ledger.Position{EntryPrice: 100, HighWater: 110}, 107.7, core.Signal{}); !hit {
		t.Error("2% below high should trigger")
	}
}

func TestSignalExit_Threshold(t *testing.T) {
	r := SignalExit{MinStrength: 0.6}
	pos := ledger.Position{}

	if hit, _ := r.Check(pos, 1, core.Signal{Direction: core.DirectionSell, Strength: 0.59}); hit {
		t.Error("weak sell should not exit")
	}
	if hit, _ := r.Check(pos, 1, core.Signal{Direction: core.DirectionSell, Strength: 0.6}); !hit {
		t.Error("sell at threshold should exit")
	}
	if hit, _ := r.Check(pos, 1, core.Signal{Direction: core.DirectionBuy, Strength: 1}); hit {
		t.Error("buy never exits")
	}
}

func TestStopLossAndTakeProfit(t *testing.T) {
	pos := ledger.Position{EntryPrice: 200}

	if hit, _ := (StopLoss{Pct: 0.05}).Check(pos, 191, core.Signal{}); hit {
		t.Error("4.5% loss should not hit a 5% stop")
	}
	if hit, _ := (StopLoss{Pct: 0.05}).Check(pos, 189, core.Signal{}); !hit {
		t.Error("5.5% loss should hit a 5% stop")
	}
	if hit, _ := (TakeProfit{Pct: 0.1}).Check(pos, 221, core.Signal{}); !hit {
		t.Error("10.5% gain should take profit")
	}
}
