package trader

import (
	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/indicator"
	"github.com/newthinker/upbot/internal/risk"
	"github.com/newthinker/upbot/internal/strategy"
	"github.com/newthinker/upbot/internal/strategy/bollinger"
	"github.com/newthinker/upbot/internal/strategy/ma_crossover"
	"github.com/newthinker/upbot/internal/strategy/rsi"
	"github.com/newthinker/upbot/internal/strategy/volume"
	"go.uber.org/zap"
)

// Indicators returns the indicator configuration the enabled strategies
// need. Indicators of disabled strategies are not computed.
func Indicators(cfg config.StrategyConfig) indicator.Config {
	return indicator.Config{
		MA: indicator.MAConfig{
			Enabled: cfg.MACrossover.Enabled,
			Type:    cfg.MACrossover.Type,
			Short:   cfg.MACrossover.ShortPeriod,
			Long:    cfg.MACrossover.LongPeriod,
			Trend:   cfg.MACrossover.TrendPeriod,
		},
		RSI: indicator.RSIConfig{
			Enabled:          cfg.RSI.Enabled,
			Period:           cfg.RSI.Period,
			Divergence:       cfg.RSI.UseDivergence,
			DivergenceWindow: cfg.RSI.DivergenceWindow,
		},
		Bollinger: indicator.BollingerConfig{
			Enabled: cfg.Bollinger.Enabled,
			Period:  cfg.Bollinger.Period,
			StdDev:  cfg.Bollinger.StdDev,
		},
		Volume: indicator.VolumeConfig{
			Enabled: cfg.Volume.Enabled,
			Period:  cfg.Volume.Period,
		},
	}
}

// Strategies builds the enabled strategies.
func Strategies(cfg config.StrategyConfig) []strategy.Strategy {
	var out []strategy.Strategy
	if c := cfg.MACrossover; c.Enabled {
		out = append(out, ma_crossover.New(c.Type, c.ShortPeriod, c.LongPeriod, c.TrendPeriod))
	}
	if c := cfg.RSI; c.Enabled {
		out = append(out, rsi.New(c.Period, c.Oversold, c.Overbought, c.UseDivergence))
	}
	if c := cfg.Bollinger; c.Enabled {
		out = append(out, bollinger.New(c.Period, c.StdDev))
	}
	if c := cfg.Volume; c.Enabled {
		out = append(out, volume.New(c.Period, c.SurgeThreshold, c.Amplify, c.Dampen))
	}
	return out
}

// NewEngine returns a signal engine with the enabled strategies registered.
func NewEngine(cfg config.StrategyConfig, logger *zap.Logger) *strategy.Engine {
	engine := strategy.NewEngine(logger)
	for _, s := range Strategies(cfg) {
		engine.Register(s)
	}
	return engine
}

// RiskConfig combines trading and risk settings. The fee rate differs
// between backtests and the exchange, so the caller supplies it.
func RiskConfig(cfg *config.Config, feeRate float64) risk.Config {
	return risk.Config{
		StopLoss:          cfg.Risk.StopLoss,
		TakeProfit:        cfg.Risk.TakeProfit,
		TrailingStop:      cfg.Risk.TrailingStop,
		UseTrailingStop:   cfg.Risk.UseTrailingStop,
		MaxInvestRatio:    cfg.Trading.MaxInvestRatio,
		TradeAmount:       cfg.Trading.TradeAmount,
		MinOrderAmount:    cfg.Trading.MinOrderAmount,
		MinSignalStrength: cfg.Trading.MinSignalStrength,
		FeeRate:           feeRate,
	}
}

// TrailingPct is the distance the ledger keeps trailing stops at, zero
// when trailing stops are off.
func TrailingPct(cfg config.RiskConfig) float64 {
	if !cfg.UseTrailingStop {
		return 0
	}
	return cfg.TrailingStop
}
