// Package bot runs the live trading loop: on every interval it pulls the
// newly closed bar of each market and trades it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newthinker/upbot/internal/alert"
	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/execution"
	"github.com/newthinker/upbot/internal/ids"
	"github.com/newthinker/upbot/internal/journal"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/newthinker/upbot/internal/marketdata"
	"github.com/newthinker/upbot/internal/metrics"
	"github.com/newthinker/upbot/internal/notifier"
	"github.com/newthinker/upbot/internal/risk"
	"github.com/newthinker/upbot/internal/router"
	"github.com/newthinker/upbot/internal/storage/archive"
	"github.com/newthinker/upbot/internal/storage/signal"
	"github.com/newthinker/upbot/internal/trader"
	"go.uber.org/zap"
)

const (
	// tickLookback is how many recent bars a tick requests once warm
	tickLookback = 5
	// settleDelay gives the exchange time to publish a just-closed candle
	settleDelay = 3 * time.Second
)

// Deps are the collaborators the bot cannot build from configuration.
// Journal, Archiver, Router, Metrics and Signals are optional.
type Deps struct {
	Feed    marketdata.Feed
	Adapter execution.Adapter
	// InitialCash seeds the ledger when the journal holds no state.
	InitialCash float64
	FeeRate     float64
	// IDs generates order identifiers; defaults to random UUIDs.
	IDs      ids.Source
	Journal  journal.Journal
	Archiver *archive.Archiver
	Router   *router.Router
	Metrics  *metrics.Registry
	// Signals keeps recent BUY and SELL signals for the status API.
	Signals signal.Store
	Mode    string
	Logger  *zap.Logger
}

type marketState struct {
	last core.Bar
	warm bool
}

// Bot is the live trading orchestrator.
type Bot struct {
	cfg      *config.Config
	deps     Deps
	logger   *zap.Logger
	trader   *trader.Trader
	ledger   *ledger.Ledger
	interval time.Duration
	now      func() time.Time

	// each market's state is touched only by that market's goroutine
	markets map[string]*marketState

	alerts     *alert.Evaluator
	tickErrors atomic.Int64

	// journalMu orders snapshot-and-write pairs across markets
	journalMu sync.Mutex

	tickMu      sync.Mutex
	lastSummary time.Time
	peakEquity  float64

	mu       sync.RWMutex
	running  bool
	lastTick time.Time
	cancel   context.CancelFunc
}

// New builds the bot and restores the ledger from the journal.
func New(ctx context.Context, cfg *config.Config, d Deps) (*Bot, error) {
	if d.Feed == nil || d.Adapter == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("bot needs a feed and an execution adapter"))
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.IDs == nil {
		d.IDs = ids.UUIDSource{}
	}
	if d.Mode == "" {
		d.Mode = "live"
	}

	l, err := restoreLedger(ctx, cfg, d, logger)
	if err != nil {
		return nil, err
	}

	mgr := risk.NewManager(trader.RiskConfig(cfg, d.FeeRate), l,
		risk.WithIDs(d.IDs),
		risk.WithLogger(logger),
	)
	tr := trader.New(trader.Components{
		Indicators: trader.Indicators(cfg.Strategy),
		Engine:     trader.NewEngine(cfg.Strategy, logger),
		Risk:       mgr,
		Ledger:     l,
		Adapter:    d.Adapter,
		Logger:     logger,
	})

	var alerts *alert.Evaluator
	if cfg.Alerts.Enabled && len(cfg.Alerts.Rules) > 0 {
		alerts, err = alert.NewEvaluator(cfg.Alerts.Rules, cfg.Alerts.Cooldown)
		if err != nil {
			return nil, err
		}
	}

	markets := make(map[string]*marketState, len(cfg.Trading.Markets))
	for _, m := range cfg.Trading.Markets {
		markets[m] = &marketState{}
	}

	return &Bot{
		cfg:      cfg,
		deps:     d,
		logger:   logger,
		trader:   tr,
		ledger:   l,
		interval: cfg.Trading.IntervalDuration(),
		now:      time.Now,
		markets:  markets,
		alerts:   alerts,
	}, nil
}

// restoreLedger prefers the journal snapshot and falls back to replaying
// the journal's trade log. Trades the snapshot does not know are applied
// on top of it.
func restoreLedger(ctx context.Context, cfg *config.Config, d Deps, logger *zap.Logger) (*ledger.Ledger, error) {
	opts := []ledger.Option{
		ledger.WithTrailingStop(trader.TrailingPct(cfg.Risk)),
		ledger.WithLogger(logger),
	}
	if d.Journal == nil {
		return ledger.New(d.InitialCash, opts...), nil
	}

	st, ok, err := d.Journal.LatestState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading journal state: %w", err)
	}
	trades, err := d.Journal.Trades(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading journal trades: %w", err)
	}

	if ok {
		l := ledger.New(st.InitialCash, opts...)
		if err := l.Restore(st); err != nil {
			return nil, fmt.Errorf("restoring ledger: %w", err)
		}
		known := make(map[string]bool, len(st.Trades))
		for _, t := range st.Trades {
			known[t.ID] = true
		}
		missing := 0
		for _, t := range trades {
			if known[t.ID] {
				continue
			}
			if _, err := l.ApplyFill(t.Fill()); err != nil {
				return nil, fmt.Errorf("applying journal trade %s: %w", t.ID, err)
			}
			missing++
		}
		if missing > 0 {
			logger.Warn("ledger snapshot behind trade log", zap.Int("applied", missing))
		}
		logger.Info("ledger restored from journal",
			zap.Int("trades", len(st.Trades)+missing),
			zap.Int("open_positions", len(l.Positions())),
			zap.Float64("cash", l.Account().Cash),
		)
		return l, nil
	}

	if len(trades) == 0 {
		return ledger.New(d.InitialCash, opts...), nil
	}
	l, err := ledger.Replay(d.InitialCash, trades, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("ledger replayed from trade log", zap.Int("trades", len(trades)))
	return l, nil
}

// Ledger returns the bot's ledger.
func (b *Bot) Ledger() *ledger.Ledger {
	return b.ledger
}

// Run ticks until ctx is cancelled or Stop is called. The first tick runs
// immediately and only warms up indicators; later ticks trade. A tick in
// progress when the bot stops runs to completion.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.running = true
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		cancel()
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	b.logger.Info("upbot starting",
		zap.String("mode", b.deps.Mode),
		zap.Strings("markets", b.cfg.Trading.Markets),
		zap.Duration("interval", b.interval),
	)
	b.notify(notifier.StartupEvent(b.deps.Mode, b.cfg.Trading.Markets, b.ledger.Account(), b.now()))

	b.Tick(context.WithoutCancel(ctx))

	timer := time.NewTimer(b.untilNextTick())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("upbot shutting down")
			b.notify(notifier.ShutdownEvent(b.ledger.Account(), b.now()))
			return nil
		case <-timer.C:
			// ticks finish even if a stop arrives mid-way
			b.Tick(context.WithoutCancel(ctx))
			timer.Reset(b.untilNextTick())
		}
	}
}

// Stop ends Run after the current tick.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
}

// untilNextTick aligns ticks to bar boundaries.
func (b *Bot) untilNextTick() time.Duration {
	now := b.now()
	next := now.Truncate(b.interval).Add(b.interval + settleDelay)
	return next.Sub(now)
}

// Tick processes every market concurrently and waits for all of them. A
// failing market is logged and notified without affecting the others.
func (b *Bot) Tick(ctx context.Context) {
	b.tickMu.Lock()
	defer b.tickMu.Unlock()

	start := time.Now()
	b.tickErrors.Store(0)

	var wg sync.WaitGroup
	for market, st := range b.markets {
		wg.Add(1)
		go func(market string, st *marketState) {
			defer wg.Done()
			if err := b.processMarket(ctx, market, st); err != nil {
				b.marketFailed(market, err)
			}
		}(market, st)
	}
	wg.Wait()

	b.mu.Lock()
	b.lastTick = b.now()
	b.mu.Unlock()
	b.afterTick(ctx)

	if b.deps.Metrics != nil {
		b.deps.Metrics.RecordTick(time.Since(start).Seconds())
	}
}

func (b *Bot) processMarket(ctx context.Context, market string, st *marketState) error {
	count := tickLookback
	if !st.warm {
		count = b.cfg.Trading.WarmupBars + 1
	}

	bars, err := b.deps.Feed.Bars(ctx, market, count)
	if err != nil {
		return fmt.Errorf("fetching bars: %w", err)
	}

	var fresh []core.Bar
	for _, bar := range bars {
		if st.last.Time.IsZero() || bar.Time.After(st.last.Time) {
			fresh = append(fresh, bar)
		}
	}
	if len(fresh) == 0 {
		b.logger.Debug("no new closed bar", zap.String("market", market))
		return nil
	}

	b.reportGaps(market, st, fresh)

	// warm-up and catch-up bars only feed indicators
	replay := fresh[:len(fresh)-1]
	if !st.warm {
		replay = fresh
	}
	for _, bar := range replay {
		if _, _, err := b.trader.Observe(bar); err != nil {
			if !errors.Is(err, core.ErrMalformedData) {
				return fmt.Errorf("observing %s: %w", bar.Time.Format(time.RFC3339), err)
			}
			b.logger.Warn("skipping malformed bar", zap.String("market", market), zap.Error(err))
			st.last = bar
			continue
		}
		// missed closes still ratchet the trailing stop
		if st.warm {
			b.ledger.Mark(bar.Market, bar.Close, bar.Time)
		}
		st.last = bar
	}
	if !st.warm {
		st.warm = true
		b.logger.Info("market warmed up", zap.String("market", market), zap.Int("bars", len(replay)))
		return nil
	}

	bar := fresh[len(fresh)-1]
	out, err := b.trader.OnBar(ctx, bar)
	st.last = bar
	b.recordOutcome(ctx, out, err)
	return err
}

func (b *Bot) reportGaps(market string, st *marketState, fresh []core.Bar) {
	series := fresh
	if !st.last.Time.IsZero() {
		series = append([]core.Bar{st.last}, fresh...)
	}
	for _, g := range marketdata.FindGaps(series, b.interval) {
		b.logger.Warn("data gap",
			zap.String("market", market),
			zap.Int("missing", g.Missing),
			zap.Time("after", g.After),
			zap.Time("before", g.Before),
		)
		b.notify(notifier.ErrorEvent(market, g.Err(), b.now()))
	}
}

func (b *Bot) recordOutcome(ctx context.Context, out trader.Outcome, err error) {
	m := b.deps.Metrics
	market := out.Bar.Market

	if m != nil && out.Snapshot.Market != "" {
		m.RecordBar(market, string(out.Signal.Direction))
	}
	if b.deps.Signals != nil && out.Signal.IsActionable() {
		if serr := b.deps.Signals.Save(ctx, out.Signal); serr != nil {
			b.logger.Warn("saving signal failed", zap.String("market", market), zap.Error(serr))
		}
	}

	if out.Order != nil && err != nil {
		status := "failed"
		if errors.Is(err, core.ErrOrderRejected) {
			status = "rejected"
			b.notify(notifier.RejectedEvent(*out.Order, err))
		}
		if m != nil {
			m.RecordOrder(market, string(out.Order.Side), status)
		}
		return
	}

	if out.Record == nil {
		return
	}
	rec := *out.Record

	if b.deps.Journal != nil {
		if jerr := b.journalFill(ctx, rec); jerr != nil {
			b.logger.Error("journal write failed", zap.String("trade", rec.ID), zap.Error(jerr))
			b.notify(notifier.ErrorEvent(market, fmt.Errorf("journal write failed: %w", jerr), b.now()))
		}
	}
	if m != nil {
		m.RecordOrder(market, string(rec.Side), "filled")
		if rec.Side == core.SideSell {
			m.RecordExit(market, string(rec.Reason))
		}
	}
	b.notify(notifier.FillEvent(rec))
}

func (b *Bot) journalFill(ctx context.Context, rec core.TradeRecord) error {
	b.journalMu.Lock()
	defer b.journalMu.Unlock()
	return b.deps.Journal.RecordFill(ctx, rec, b.ledger.Snapshot())
}

func (b *Bot) marketFailed(market string, err error) {
	b.logger.Error("market processing failed", zap.String("market", market), zap.Error(err))
	b.tickErrors.Add(1)
	if b.deps.Metrics != nil {
		b.deps.Metrics.RecordMarketError(market, errorCode(err))
	}
	var ce *core.Error
	// rejections were already notified with their order
	if errors.As(err, &ce) && ce.Code == core.ErrOrderRejected.Code {
		return
	}
	b.notify(notifier.ErrorEvent(market, err, b.now()))
}

func errorCode(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrExchangeTimeout.Code
	}
	return "UNKNOWN"
}

// afterTick publishes account state and the periodic summary.
func (b *Bot) afterTick(ctx context.Context) {
	acct := b.ledger.Account()
	now := b.now()

	if m := b.deps.Metrics; m != nil {
		m.SetAccount(acct.Cash, acct.Equity, acct.RealizedPnL, acct.OpenPositions)
		if b.deps.Router != nil {
			s := b.deps.Router.Stats()
			m.SetNotifications(s.Delivered, s.Filtered, s.Dropped, s.Failed)
		}
	}

	if b.deps.Journal != nil {
		err := b.deps.Journal.RecordEquity(ctx, journal.EquitySnapshot{
			Time:          now,
			Cash:          acct.Cash,
			Equity:        acct.Equity,
			RealizedPnL:   acct.RealizedPnL,
			OpenPositions: acct.OpenPositions,
		})
		if err != nil {
			b.logger.Warn("recording equity failed", zap.Error(err))
		}
	}

	if acct.Equity > b.peakEquity {
		b.peakEquity = acct.Equity
	}
	b.checkAlerts(acct, now)

	every := b.cfg.Router.PortfolioInterval
	if every <= 0 || now.Sub(b.lastSummary) < every {
		return
	}
	b.lastSummary = now
	b.notify(notifier.PortfolioEvent(acct, b.ledger.Positions(), now))

	if b.deps.Archiver != nil {
		if _, err := b.deps.Archiver.SaveLedger(ctx, b.ledger.Snapshot()); err != nil {
			b.logger.Warn("archiving ledger failed", zap.Error(err))
		}
	}
}

// accountMetrics are the values alert rules can refer to.
func (b *Bot) accountMetrics(acct ledger.Account) map[string]float64 {
	m := map[string]float64{
		"cash":           acct.Cash,
		"equity":         acct.Equity,
		"reserved":       acct.Reserved,
		"realized_pnl":   acct.RealizedPnL,
		"open_positions": float64(acct.OpenPositions),
		"market_errors":  float64(b.tickErrors.Load()),
		"drawdown_pct":   0,
	}
	if initial := b.ledger.InitialCash(); initial > 0 {
		m["return_pct"] = (acct.Equity/initial - 1) * 100
	}
	if b.peakEquity > 0 {
		m["drawdown_pct"] = (b.peakEquity - acct.Equity) / b.peakEquity * 100
	}
	if acct.Equity > 0 {
		m["exposure_pct"] = (acct.Equity - acct.Cash) / acct.Equity * 100
	}
	return m
}

func (b *Bot) checkAlerts(acct ledger.Account, now time.Time) {
	if b.alerts == nil {
		return
	}
	for _, f := range b.alerts.Evaluate(b.accountMetrics(acct)) {
		b.logger.Warn("alert fired",
			zap.String("rule", f.Rule.Name),
			zap.String("severity", f.Rule.Severity),
			zap.Float64("value", f.Value),
		)
		b.notify(notifier.AlertEvent(f.Rule.Name, f.Rule.Severity, f.Message, f.Value, now))
	}
}

func (b *Bot) notify(e notifier.Event) {
	if b.deps.Router != nil {
		b.deps.Router.Route(e)
	}
}

// Status is a point-in-time view of the bot.
type Status struct {
	Running   bool               `json:"running"`
	Mode      string             `json:"mode"`
	Markets   []string           `json:"markets"`
	LastTick  time.Time          `json:"last_tick"`
	Account   ledger.Account     `json:"account"`
	Positions []ledger.Position  `json:"positions"`
	Router    *router.Stats      `json:"router,omitempty"`
	Trades    int                `json:"trades"`
	Prices    map[string]float64 `json:"prices,omitempty"`
}

// Status returns the bot's current state.
func (b *Bot) Status() Status {
	b.mu.RLock()
	running, lastTick := b.running, b.lastTick
	b.mu.RUnlock()

	positions := b.ledger.Positions()
	prices := make(map[string]float64, len(positions))
	for _, p := range positions {
		prices[p.Market] = p.LastPrice
	}

	st := Status{
		Running:   running,
		Mode:      b.deps.Mode,
		Markets:   b.cfg.Trading.Markets,
		LastTick:  lastTick,
		Account:   b.ledger.Account(),
		Positions: positions,
		Trades:    len(b.ledger.Trades()),
		Prices:    prices,
	}
	if b.deps.Router != nil {
		s := b.deps.Router.Stats()
		st.Router = &s
	}
	return st
}
