package rsi

import (
	"fmt"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/strategy"
)

// RSI votes on threshold crosses and, optionally, on price/RSI divergence
type RSI struct {
	period        int
	oversold      float64
	overbought    float64
	useDivergence bool
}

// New creates a new RSI strategy
func New(period int, oversold, overbought float64, useDivergence bool) *RSI {
	return &RSI{
		period:        period,
		oversold:      oversold,
		overbought:    overbought,
		useDivergence: useDivergence,
	}
}

func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Description() string {
	return fmt.Sprintf("RSI(%d) %.0f/%.0f", r.period, r.oversold, r.overbought)
}

func (r *RSI) Kind() strategy.Kind {
	return strategy.KindDirectional
}

func (r *RSI) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{Indicators: []string{indicator.KeyRSI}}
}

func (r *RSI) Evaluate(prev, curr indicator.Snapshot) strategy.Vote {
	prevRSI, _ := prev.Get(indicator.KeyRSI)
	currRSI, _ := curr.Get(indicator.KeyRSI)

	var buy, sell string
	switch {
	case prevRSI < r.oversold && currRSI >= r.oversold:
		buy = fmt.Sprintf("RSI %.1f crossed above %.0f", currRSI, r.oversold)
	case r.useDivergence && curr.Flag(indicator.FlagBullishDivergence):
		buy = fmt.Sprintf("bullish RSI divergence (RSI %.1f)", currRSI)
	}
	switch {
	case prevRSI > r.overbought && currRSI <= r.overbought:
		sell = fmt.Sprintf("RSI %.1f crossed below %.0f", currRSI, r.overbought)
	case r.useDivergence && curr.Flag(indicator.FlagBearishDivergence):
		sell = fmt.Sprintf("bearish RSI divergence (RSI %.1f)", currRSI)
	}

	switch {
	case buy != "" && sell != "":
		return strategy.Hold("conflicting RSI conditions")
	case buy != "":
		return strategy.Vote{Direction: core.DirectionBuy, Scale: 1.0, Reason: buy}
	case sell != "":
		return strategy.Vote{Direction: core.DirectionSell, Scale: 1.0, Reason: sell}
	}
	return strategy.Hold(fmt.Sprintf("RSI %.1f", currRSI))
}
