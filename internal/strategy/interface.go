package strategy

import (
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
)

// Kind tells the engine how to count a strategy's vote
type Kind int

const (
	// KindDirectional strategies vote BUY, SELL or HOLD and count in the tally.
	KindDirectional Kind = iota
	// KindModifier strategies never set direction; they only scale strength.
	KindModifier
)

// DataRequirements specifies what a strategy reads from a snapshot
type DataRequirements struct {
	// Indicators must be defined on both the current and previous snapshot,
	// otherwise the strategy is not consulted.
	Indicators []string
}

// Vote is one strategy's opinion on one bar
type Vote struct {
	Direction core.Direction
	// Scale is the strength multiplier of a modifier vote.
	Scale  float64
	Reason string
}

// Hold returns a neutral vote
func Hold(reason string) Vote {
	return Vote{Direction: core.DirectionHold, Scale: 1.0, Reason: reason}
}

// Strategy defines the interface for signal strategies
type Strategy interface {
	Name() string
	Description() string
	Kind() Kind
	RequiredData() DataRequirements
	Evaluate(prev, curr indicator.Snapshot) Vote
}
