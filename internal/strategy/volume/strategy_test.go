package volume

import (
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type buyer struct{}

func (buyer) Name() string                            { return "buyer" }
func (buyer) Description() string                     { return "always buys" }
func (buyer) Kind() strategy.Kind                     { return strategy.KindDirectional }
func (buyer) RequiredData() strategy.DataRequirements { return strategy.DataRequirements{} }
func (buyer) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	return strategy.Vote{Direction: core.DirectionBuy, Scale: 1}
}

type holder struct{ buyer }

func (holder) Name() string { return "holder" }
func (holder) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	return strategy.Hold("")
}

func snap(ratio float64, defined bool) indicator.Snapshot {
	values := map[string]float64{}
	if defined {
		values[indicator.KeyVolumeRatio] = ratio
	}
	return indicator.NewSnapshot("KRW-BTC", t0, 100, 1, values, nil)
}

func TestVolume_IsModifier(t *testing.T) {
	var s strategy.Strategy = New(20, 2, 1.25, 0.8)
	if s.Kind() != strategy.KindModifier {
		t.Error("volume should be a modifier")
	}
}

func TestVolume_Scales(t *testing.T) {
	s := New(20, 2, 1.25, 0.8)

	if v := s.Evaluate(snap(1, true), snap(2.5, true)); v.Scale != 1.25 {
		t.Errorf("surge should amplify, got %f", v.Scale)
	}
	if v := s.Evaluate(snap(1, true), snap(1.2, true)); v.Scale != 0.8 {
		t.Errorf("no surge should dampen, got %f", v.Scale)
	}
}

func TestVolume_InFusion(t *testing.T) {
	vol := New(20, 2, 1.25, 0.8)
	strategies := []strategy.Strategy{buyer{}, holder{}, vol}

	sig := strategy.Fuse(snap(1, true), snap(3, true), strategies)
	if sig.Direction != core.DirectionBuy || sig.Strength != 0.625 {
		t.Errorf("expected BUY 0.625, got %s %f", sig.Direction, sig.Strength)
	}

	sig = strategy.Fuse(snap(1, true), snap(1, true), strategies)
	if sig.Strength != 0.4 {
		t.Errorf("expected dampened 0.4, got %f", sig.Strength)
	}

	// undefined ratio leaves strength unscaled
	sig = strategy.Fuse(snap(0, false), snap(0, false), strategies)
	if sig.Strength != 0.5 {
		t.Errorf("expected unscaled 0.5, got %f", sig.Strength)
	}
}
