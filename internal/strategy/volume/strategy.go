package volume

import (
	"fmt"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

// Volume scales signal strength by relative volume. It never sets a
// direction on its own.
type Volume struct {
	period  int
	surge   float64
	amplify float64
	dampen  float64
}

// New creates a new volume modifier
func New(period int, surge, amplify, dampen float64) *Volume {
	return &Volume{period: period, surge: surge, amplify: amplify, dampen: dampen}
}

func (v *Volume) Name() string {
	return "volume"
}

func (v *Volume) Description() string {
	return fmt.Sprintf("volume surge x%.1f over %d bars", v.surge, v.period)
}

func (v *Volume) Kind() strategy.Kind {
	return strategy.KindModifier
}

func (v *Volume) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{Indicators: []string{indicator.KeyVolumeRatio}}
}

func (v *Volume) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	ratio, _ := curr.Get(indicator.KeyVolumeRatio)
	if ratio >= v.surge {
		return strategy.Vote{
			Direction: core.DirectionHold,
			Scale:     v.amplify,
			Reason:    fmt.Sprintf("volume surge %.2fx", ratio),
		}
	}
	return strategy.Vote{
		Direction: core.DirectionHold,
		Scale:     v.dampen,
		Reason:    fmt.Sprintf("weak volume %.2fx", ratio),
	}
}
