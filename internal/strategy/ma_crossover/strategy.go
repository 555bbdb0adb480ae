package ma_crossover

import (
	"fmt"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

// MACrossover implements a moving average crossover strategy with a trend
// filter
type MACrossover struct {
	maType      string
	shortPeriod int
	longPeriod  int
	trendPeriod int
}

// New creates a new MA Crossover strategy
func New(maType string, shortPeriod, longPeriod, trendPeriod int) *MACrossover {
	return &MACrossover{
		maType:      maType,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		trendPeriod: trendPeriod,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("%s crossover (%d/%d, trend %d)", m.maType, m.shortPeriod, m.longPeriod, m.trendPeriod)
}

func (m *MACrossover) Kind() strategy.Kind {
	return strategy.KindDirectional
}

func (m *MACrossover) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Indicators: []string{indicator.KeyMAShort, indicator.KeyMALong, indicator.KeyMATrend},
	}
}

func (m *MACrossover) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	prevShort, _ := prev.Get(indicator.KeyMAShort)
	prevLong, _ := prev.Get(indicator.KeyMALong)
	currShort, _ := curr.Get(indicator.KeyMAShort)
	currLong, _ := curr.Get(indicator.KeyMALong)
	trend, _ := curr.Get(indicator.KeyMATrend)

	// Golden Cross confirmed by uptrend
	if prevShort <= prevLong && currShort > currLong && curr.Close > trend {
		return strategy.Vote{
			Direction: core.DirectionBuy,
			Scale:     1.0,
			Reason:    fmt.Sprintf("golden cross: MA%d (%.2f) above MA%d (%.2f), close above MA%d", m.shortPeriod, currShort, m.longPeriod, currLong, m.trendPeriod),
		}
	}

	// Death Cross confirmed by downtrend
	if prevShort >= prevLong && currShort < currLong && curr.Close < trend {
		return strategy.Vote{
			Direction: core.DirectionSell,
			Scale:     1.0,
			Reason:    fmt.Sprintf("death cross: MA%d (%.2f) below MA%d (%.2f), close below MA%d", m.shortPeriod, currShort, m.longPeriod, currLong, m.trendPeriod),
		}
	}

	return strategy.Hold("no confirmed cross")
}
