package ma_crossover

import (
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func snap(close, short, long, trend float64) indicator.Snapshot {
	return indicator.NewSnapshot("KRW-BTC", t0, close, 1, map[string]float64{
		indicator.KeyMAShort: short,
		indicator.KeyMALong:  long,
		indicator.KeyMATrend: trend,
	}, nil)
}

func TestMACrossover_ImplementsStrategy(t *testing.T) {
	var _ strategy.Strategy = (*MACrossover)(nil)
}

func TestMACrossover_Name(t *testing.T) {
	s := New("sma", 9, 21, 50)
	if s.Name() != "ma_crossover" {
		t.Errorf("expected 'ma_crossover', got '%s'", s.Name())
	}
	if s.Kind() != strategy.KindDirectional {
		t.Error("crossover should be directional")
	}
}

func TestMACrossover_GoldenCross(t *testing.T) {
	s := New("sma", 9, 21, 50)

	prev := snap(100, 99, 100, 95)
	curr := snap(103, 101, 100, 95)

	v := s.Evaluate(prev, curr)
	if v.Direction != core.DirectionBuy {
		t.Errorf("expected Buy for golden cross, got %s", v.Direction)
	}
}

func TestMACrossover_GoldenCrossAgainstTrend(t *testing.T) {
	s := New("sma", 9, 21, 50)

	// short crosses long but close is under the trend MA
	prev := snap(100, 99, 100, 110)
	curr := snap(103, 101, 100, 110)

	if v := s.Evaluate(prev, curr); v.Direction != core.DirectionHold {
		t.Errorf("cross against trend should hold, got %s", v.Direction)
	}
}

func TestMACrossover_DeathCross(t *testing.T) {
	s := New("sma", 9, 21, 50)

	prev := snap(100, 101, 100, 105)
	curr := snap(97, 99, 100, 105)

	if v := s.Evaluate(prev, curr); v.Direction != core.DirectionSell {
		t.Errorf("expected Sell for death cross, got %s", v.Direction)
	}
}

func TestMACrossover_NoCross(t *testing.T) {
	s := New("sma", 9, 21, 50)

	prev := snap(100, 102, 100, 90)
	curr := snap(101, 103, 100, 90)

	if v := s.Evaluate(prev, curr); v.Direction != core.DirectionHold {
		t.Errorf("already above should hold, got %s", v.Direction)
	}
}

func TestMACrossover_WithIndicatorSet(t *testing.T) {
	cfg := indicator.Config{MA: indicator.MAConfig{Enabled: true, Type: indicator.MATypeSMA, Short: 2, Long: 4, Trend: 4}}
	set := indicator.NewSet("KRW-BTC", cfg)
	engine := strategy.NewEngine()
	engine.Register(New("sma", 2, 4, 4))

	// declining then a sharp recovery at the end
	closes := []float64{100, 95, 90, 85, 80, 120}
	var sig core.Signal
	for i, c := range closes {
		sn, err := set.Update(core.Bar{
			Market: "KRW-BTC", Time: t0.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		sig = engine.Evaluate(sn)
	}

	// prevShort 82.5 <= prevLong 87.5, currShort 100 > currLong 93.75, close 120 > trend 93.75
	if sig.Direction != core.DirectionBuy {
		t.Errorf("expected Buy, got %s (%s)", sig.Direction, sig.Reason)
	}
	if sig.Strength != 1.0 {
		t.Errorf("single enabled strategy agreeing should give strength 1, got %f", sig.Strength)
	}
}
