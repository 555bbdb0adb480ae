package core

import (
	"errors"
	"testing"
	"time"
)

func TestBar_Validate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := Bar{Market: "KRW-BTC", Time: now, Open: 100, High: 110, Low: 90, Close: 105, Volume: 3}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid bar, got %v", err)
	}

	tests := []struct {
		name string
		mod  func(b *Bar)
	}{
		{"no market", func(b *Bar) { b.Market = "" }},
		{"no time", func(b *Bar) { b.Time = time.Time{} }},
		{"zero close", func(b *Bar) { b.Close = 0 }},
		{"high below low", func(b *Bar) { b.High = 80 }},
		{"negative volume", func(b *Bar) { b.Volume = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.mod(&b)
			err := b.Validate()
			if !errors.Is(err, ErrMalformedData) {
				t.Errorf("expected malformed data error, got %v", err)
			}
		})
	}
}

func TestDirection_Constants(t *testing.T) {
	dirs := []Direction{DirectionBuy, DirectionSell, DirectionHold}
	expected := []string{"BUY", "SELL", "HOLD"}

	for i, d := range dirs {
		if string(d) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], d)
		}
	}
}

func TestSignal_IsActionable(t *testing.T) {
	if (Signal{Direction: DirectionHold}).IsActionable() {
		t.Error("hold should not be actionable")
	}
	if !(Signal{Direction: DirectionBuy}).IsActionable() {
		t.Error("buy should be actionable")
	}
}

func TestExitReason_IsForced(t *testing.T) {
	forced := []ExitReason{ReasonStopLoss, ReasonTakeProfit, ReasonTrailingStop}
	for _, r := range forced {
		if !r.IsForced() {
			t.Errorf("%s should be forced", r)
		}
	}
	if ReasonSignal.IsForced() {
		t.Error("signal exits are discretionary")
	}
}

func TestTradeRecord_FillRoundTrip(t *testing.T) {
	rec := TradeRecord{
		ID: "f1", OrderID: "o1", Market: "KRW-ETH", Side: SideSell,
		Price: 10, Size: 2, Fee: 0.01, Reason: ReasonTakeProfit,
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f := rec.Fill()
	if f.ID != rec.ID || f.Quantity != rec.Size || f.Reason != rec.Reason {
		t.Errorf("fill does not mirror record: %+v", f)
	}
	if f.Notional() != 20 {
		t.Errorf("expected notional 20, got %f", f.Notional())
	}
}

func TestTradeRecord_IsWin(t *testing.T) {
	if !(TradeRecord{Side: SideSell, RealizedPnL: 1}).IsWin() {
		t.Error("profitable close should be a win")
	}
	if (TradeRecord{Side: SideBuy, RealizedPnL: 1}).IsWin() {
		t.Error("buys are never wins")
	}
}
