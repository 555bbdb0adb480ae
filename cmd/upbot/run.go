package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/upbot/internal/bot"
	"github.com/newthinker/upbot/internal/execution"
	"github.com/newthinker/upbot/internal/exchange/upbit"
	"github.com/newthinker/upbot/internal/ids"
	"github.com/newthinker/upbot/internal/journal"
	"github.com/newthinker/upbot/internal/marketdata"
	"github.com/newthinker/upbot/internal/metrics"
	"github.com/newthinker/upbot/internal/router"
	signalstore "github.com/newthinker/upbot/internal/storage/signal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// recentSignals bounds the signals kept for the status API.
const recentSignals = 500

var runPaper bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading bot",
	Long: `Run the live trading loop. With --paper (or trading.paper) orders are
filled locally at the bar close instead of being sent to the exchange.`,
	RunE: runBot,
}

func init() {
	runCmd.Flags().BoolVar(&runPaper, "paper", false, "simulate fills instead of trading")
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if runPaper {
		cfg.Trading.Paper = true
	}
	if err := cfg.ValidateLive(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg, log)

	var (
		adapter execution.Adapter
		cash    float64
		mode    string
	)
	if cfg.Trading.Paper {
		mode = "paper"
		adapter = execution.NewSimulated(cfg.Exchange.Fee, ids.NewRandomULIDSource())
		cash = cfg.Backtest.InitialBalance
	} else {
		mode = "live"
		adapter = execution.NewExchange(upbit.NewVenue(client), cfg.Exchange.Timeout,
			execution.WithExchangeLogger(log))
		cash, err = client.Available(ctx, "KRW")
		if err != nil {
			return fmt.Errorf("reading KRW balance: %w", err)
		}
	}

	var jrnl journal.Journal
	sqlite, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if sqlite != nil {
		defer sqlite.Close()
		jrnl = sqlite
	}

	archiver, err := openArchiver(cfg, log)
	if err != nil {
		return err
	}

	notifiers, err := buildNotifiers(cfg.Notifiers, log)
	if err != nil {
		return err
	}
	rt := router.New(router.FromConfig(cfg.Router), notifiers, log)
	rt.Start()
	rt.StartCleanupRoutine(ctx, time.Hour)

	reg := metrics.NewRegistry()
	feed := marketdata.NewClosedFeed(client, cfg.Trading.IntervalDuration(),
		marketdata.WithFetchTimeout(cfg.Exchange.Timeout),
		marketdata.WithFeedLogger(log))

	b, err := bot.New(ctx, cfg, bot.Deps{
		Feed:        feed,
		Adapter:     adapter,
		InitialCash: cash,
		FeeRate:     cfg.Exchange.Fee,
		IDs:         ids.UUIDSource{},
		Journal:     jrnl,
		Archiver:    archiver,
		Router:      rt,
		Metrics:     reg,
		Signals:     signalstore.NewMemoryStore(recentSignals),
		Mode:        mode,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	var server *bot.Server
	if cfg.Metrics.Enabled {
		server = bot.NewServer(cfg.Metrics, reg, b, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("server error", zap.Error(err))
			}
		}()
	}

	runErr := b.Run(ctx)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown", zap.Error(err))
		}
	}
	if err := rt.Stop(shutdownCtx); err != nil {
		log.Warn("notifications not drained", zap.Error(err))
	}
	if archiver != nil {
		if _, err := archiver.SaveLedger(shutdownCtx, b.Ledger().Snapshot()); err != nil {
			log.Warn("archiving ledger failed", zap.Error(err))
		}
	}

	log.Info("upbot stopped")
	return runErr
}
