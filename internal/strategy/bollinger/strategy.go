package bollinger

import (
	"fmt"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

// Bollinger votes when price pierces a band and starts reverting
type Bollinger struct {
	period int
	stdDev float64
}

// New creates a new Bollinger band strategy
func New(period int, stdDev float64) *Bollinger {
	return &Bollinger{period: period, stdDev: stdDev}
}

func (b *Bollinger) Name() string {
	return "bollinger"
}

func (b *Bollinger) Description() string {
	return fmt.Sprintf("Bollinger(%d, %.1f) reversion", b.period, b.stdDev)
}

func (b *Bollinger) Kind() strategy.Kind {
	return strategy.KindDirectional
}

func (b *Bollinger) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Indicators: []string{indicator.KeyBBUpper, indicator.KeyBBLower},
	}
}

func (b *Bollinger) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	prevLower, _ := prev.Get(indicator.KeyBBLower)
	prevUpper, _ := prev.Get(indicator.KeyBBUpper)
	currLower, _ := curr.Get(indicator.KeyBBLower)
	currUpper, _ := curr.Get(indicator.KeyBBUpper)

	if prev.Close <= prevLower && curr.Close > currLower && curr.Close > prev.Close {
		return strategy.Vote{
			Direction: core.DirectionBuy,
			Scale:     1.0,
			Reason:    fmt.Sprintf("rebound from lower band %.2f", currLower),
		}
	}

	if prev.Close >= prevUpper && curr.Close < currUpper && curr.Close < prev.Close {
		return strategy.Vote{
			Direction: core.DirectionSell,
			Scale:     1.0,
			Reason:    fmt.Sprintf("rejection from upper band %.2f", currUpper),
		}
	}

	return strategy.Hold("inside bands")
}
