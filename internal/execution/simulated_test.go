package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ids"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestSimulated_Buy(t *testing.T) {
	s := NewSimulated(0.0005, ids.NewULIDSource(7))

	fill, err := s.PlaceOrder(context.Background(), core.Order{
		ID:        "o-1",
		Market:    "KRW-BTC",
		Side:      core.SideBuy,
		Notional:  100_000,
		Price:     50_000,
		Reason:    core.ReasonSignal,
		CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if fill.Quantity != 2 {
		t.Errorf("expected quantity 2, got %f", fill.Quantity)
	}
	if math.Abs(fill.Fee-50) > 1e-9 {
		t.Errorf("expected fee 50, got %f", fill.Fee)
	}
	if fill.OrderID != "o-1" || fill.ID == "" {
		t.Errorf("unexpected ids: fill=%q order=%q", fill.ID, fill.OrderID)
	}
	if !fill.Time.Equal(t0) {
		t.Errorf("fill time should be the order time, got %s", fill.Time)
	}
}

func TestSimulated_Sell(t *testing.T) {
	s := NewSimulated(0.001, ids.NewULIDSource(7))

	fill, err := s.PlaceOrder(context.Background(), core.Order{
		ID:        "o-2",
		Market:    "KRW-BTC",
		Side:      core.SideSell,
		Quantity:  1.5,
		Price:     40_000,
		Reason:    core.ReasonStopLoss,
		CreatedAt: t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Quantity != 1.5 || fill.Price != 40_000 {
		t.Errorf("unexpected fill %+v", fill)
	}
	if math.Abs(fill.Fee-60) > 1e-9 {
		t.Errorf("expected fee 60, got %f", fill.Fee)
	}
	if fill.Reason != core.ReasonStopLoss {
		t.Errorf("reason not carried: %s", fill.Reason)
	}
}

func TestSimulated_Deterministic(t *testing.T) {
	order := core.Order{ID: "o", Market: "KRW-BTC", Side: core.SideBuy, Notional: 10_000, Price: 100, CreatedAt: t0}

	a, _ := NewSimulated(0, ids.NewULIDSource(3)).PlaceOrder(context.Background(), order)
	b, _ := NewSimulated(0, ids.NewULIDSource(3)).PlaceOrder(context.Background(), order)
	if a.ID != b.ID {
		t.Errorf("same seed should give same fill id: %s != %s", a.ID, b.ID)
	}
}

func TestSimulated_Rejects(t *testing.T) {
	s := NewSimulated(0, ids.NewULIDSource(1))

	tests := []struct {
		name  string
		order core.Order
	}{
		{"no price", core.Order{Side: core.SideBuy, Notional: 100}},
		{"buy without notional", core.Order{Side: core.SideBuy, Price: 100}},
		{"sell without quantity", core.Order{Side: core.SideSell, Price: 100}},
		{"unknown side", core.Order{Side: "HOLD", Price: 100, Notional: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.PlaceOrder(context.Background(), tt.order)
			if !errors.Is(err, core.ErrOrderRejected) {
				t.Errorf("expected rejection, got %v", err)
			}
		})
	}
}
