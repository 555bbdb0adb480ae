package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"go.uber.org/zap"
)

// Engine fuses the votes of registered strategies into one signal per bar.
// Registered strategies are the enabled ones. The engine keeps the previous
// snapshot of each market so crossovers can be detected.
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	prev       map[string]indicator.Snapshot
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		prev:       make(map[string]indicator.Snapshot),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// GetAll returns all registered strategies sorted by name
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Evaluate produces the signal for snap and remembers snap as the market's
// previous snapshot. The first snapshot of a market always yields HOLD.
func (e *Engine) Evaluate(snap indicator.Snapshot) core.Signal {
	strategies := e.GetAll()

	e.mu.Lock()
	prev := e.prev[snap.Market]
	e.prev[snap.Market] = snap
	e.mu.Unlock()

	sig := Fuse(prev, snap, strategies)
	if sig.IsActionable() {
		e.logger.Debug("signal",
			zap.String("market", sig.Market),
			zap.String("direction", string(sig.Direction)),
			zap.Float64("strength", sig.Strength),
			zap.Strings("contributing", sig.Contributing),
		)
	}
	return sig
}

// Reset forgets the previous snapshot of market
func (e *Engine) Reset(market string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.prev, market)
}

// Fuse combines strategy votes for curr given the previous snapshot.
// Directional votes are tallied with equal weight; the non-HOLD direction
// with more votes wins and ties resolve to HOLD. Strength is the share of
// directional strategies that agree, scaled by every modifier and capped
// at 1.
func Fuse(prev, curr indicator.Snapshot, strategies []Strategy) core.Signal {
	sig := core.Signal{
		Market:    curr.Market,
		Time:      curr.Time,
		Direction: core.DirectionHold,
		Price:     curr.Close,
	}

	if prev.IsZero() {
		sig.Reason = "no previous snapshot"
		return sig
	}

	type cast struct {
		name string
		vote Vote
	}
	var buys, sells, modifiers []cast
	directional := 0

	for _, s := range strategies {
		ready := inputsDefined(s.RequiredData(), prev, curr)

		if s.Kind() == KindModifier {
			if ready {
				modifiers = append(modifiers, cast{s.Name(), s.Evaluate(prev, curr)})
			}
			continue
		}

		directional++
		if !ready {
			continue
		}
		v := s.Evaluate(prev, curr)
		switch v.Direction {
		case core.DirectionBuy:
			buys = append(buys, cast{s.Name(), v})
		case core.DirectionSell:
			sells = append(sells, cast{s.Name(), v})
		}
	}

	var winners []cast
	switch {
	case len(buys) > len(sells):
		sig.Direction = core.DirectionBuy
		winners = buys
	case len(sells) > len(buys):
		sig.Direction = core.DirectionSell
		winners = sells
	default:
		if len(buys) > 0 {
			sig.Reason = fmt.Sprintf("tie: %d buy vs %d sell", len(buys), len(sells))
		}
		return sig
	}

	strength := float64(len(winners)) / float64(directional)
	reasons := make([]string, 0, len(winners)+len(modifiers))
	for _, w := range winners {
		sig.Contributing = append(sig.Contributing, w.name)
		reasons = append(reasons, w.vote.Reason)
	}
	for _, m := range modifiers {
		if m.vote.Scale <= 0 {
			continue
		}
		strength *= m.vote.Scale
		if m.vote.Scale != 1.0 {
			sig.Contributing = append(sig.Contributing, m.name)
			reasons = append(reasons, m.vote.Reason)
		}
	}

	sort.Strings(sig.Contributing)
	sig.Strength = math.Min(strength, 1.0)
	sig.Reason = strings.Join(reasons, "; ")
	return sig
}

func inputsDefined(req DataRequirements, prev, curr indicator.Snapshot) bool {
	for _, name := range req.Indicators {
		if _, ok := curr.Get(name); !ok {
			return false
		}
		if _, ok := prev.Get(name); !ok {
			return false
		}
	}
	return true
}
