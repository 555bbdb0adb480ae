// Package backtest replays recorded bars through the same indicator,
// signal, risk and ledger path used in live trading.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/execution"
	"github.com/newthinker/upbot/internal/ids"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/newthinker/upbot/internal/marketdata"
	"github.com/newthinker/upbot/internal/risk"
	"github.com/newthinker/upbot/internal/trader"
	"go.uber.org/zap"
)

// DefaultSeed seeds order and fill ids when no seed is configured.
const DefaultSeed = 1

// Runner runs backtests. Runs with the same bars, config and seed produce
// identical trade logs, ids included.
type Runner struct {
	seed   int64
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSeed sets the id seed.
func WithSeed(seed int64) Option {
	return func(r *Runner) { r.seed = seed }
}

// WithLogger sets the runner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{seed: DefaultSeed, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes bars of every market in (timestamp, market) order with
// independent indicator state per market and one shared ledger. Orders
// fill at the bar close with the backtest fee and no slippage. Gaps are
// reported as warnings; malformed data aborts the run. Positions still
// open at the end are valued at their last close.
func (r *Runner) Run(ctx context.Context, bars []core.Bar, cfg *config.Config) (*Report, error) {
	start, end, err := cfg.Backtest.Range()
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	bars = marketdata.Between(bars, start, end)
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars between %s and %s", cfg.Backtest.StartDate, cfg.Backtest.EndDate))
	}
	marketdata.Sort(bars)

	fee := cfg.Backtest.Fee
	l := ledger.New(cfg.Backtest.InitialBalance,
		ledger.WithTrailingStop(trader.TrailingPct(cfg.Risk)),
		ledger.WithLogger(r.logger),
	)
	mgr := risk.NewManager(trader.RiskConfig(cfg, fee), l,
		risk.WithIDs(ids.NewULIDSource(r.seed)),
		risk.WithLogger(r.logger),
	)
	tr := trader.New(trader.Components{
		Indicators: trader.Indicators(cfg.Strategy),
		Engine:     trader.NewEngine(cfg.Strategy, r.logger),
		Risk:       mgr,
		Ledger:     l,
		Adapter:    execution.NewSimulated(fee, ids.NewULIDSource(r.seed+1)),
		Logger:     r.logger,
	})

	report := &Report{
		Markets:       markets(bars),
		Start:         bars[0].Time,
		End:           bars[len(bars)-1].Time,
		Bars:          len(bars),
		InitialEquity: cfg.Backtest.InitialBalance,
	}
	for _, g := range marketdata.FindGaps(bars, cfg.Trading.IntervalDuration()) {
		r.logger.Warn("data gap", zap.String("market", g.Market), zap.Int("missing", g.Missing),
			zap.Time("after", g.After), zap.Time("before", g.Before))
		report.Warnings = append(report.Warnings, g.Err().Error())
	}

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, err := tr.OnBar(ctx, bar); err != nil {
			return nil, fmt.Errorf("bar %s@%s: %w", bar.Market, bar.Time.Format(time.RFC3339), err)
		}
		if i == len(bars)-1 || !bars[i+1].Time.Equal(bar.Time) {
			report.Equity = append(report.Equity, EquityPoint{Time: bar.Time, Equity: l.Account().Equity})
		}
	}

	acct := l.Account()
	report.FinalEquity = acct.Equity
	report.RealizedPnL = acct.RealizedPnL
	report.Trades = l.Trades()
	report.OpenPositions = l.Positions()
	report.Stats = CalculateStats(report.Trades, report.Equity, report.InitialEquity, cfg.Trading.IntervalDuration())

	r.logger.Info("backtest complete",
		zap.Int("bars", report.Bars),
		zap.Int("trades", report.Stats.TotalTrades),
		zap.Float64("final_equity", report.FinalEquity),
		zap.Float64("total_return_pct", report.Stats.TotalReturn),
	)
	return report, nil
}

func markets(bars []core.Bar) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range bars {
		if !seen[b.Market] {
			seen[b.Market] = true
			out = append(out, b.Market)
		}
	}
	sort.Strings(out)
	return out
}
