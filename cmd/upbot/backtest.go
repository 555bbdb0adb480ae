package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/newthinker/upbot/internal/backtest"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/marketdata"
	"github.com/newthinker/upbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestMarkets     []string
	backtestFrom        string
	backtestTo          string
	backtestDataDir     string
	backtestSeed        int64
	backtestJSON        bool
	backtestArchive     bool
	backtestMetricsFile string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the strategy over historical bars",
	Long: `Replay <data_dir>/<market>.csv through the same indicator, signal, risk
and ledger pipeline the bot uses and print performance statistics.`,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestMarkets, "markets", nil, "markets to test (default: trading.markets)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD (default: backtest.start_date)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD (default: backtest.end_date)")
	backtestCmd.Flags().StringVar(&backtestDataDir, "data", "", "directory of <market>.csv files (default: backtest.data_dir)")
	backtestCmd.Flags().Int64Var(&backtestSeed, "seed", 1, "seed for simulated order and fill ids")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the full report as JSON")
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "save the report to the configured archive")
	backtestCmd.Flags().StringVar(&backtestMetricsFile, "metrics-file", "", "write run metrics in Prometheus text format")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if len(backtestMarkets) > 0 {
		cfg.Trading.Markets = backtestMarkets
	}
	if backtestFrom != "" {
		cfg.Backtest.StartDate = backtestFrom
	}
	if backtestTo != "" {
		cfg.Backtest.EndDate = backtestTo
	}
	if backtestDataDir != "" {
		cfg.Backtest.DataDir = backtestDataDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	bars, err := marketdata.LoadDir(cfg.Backtest.DataDir, cfg.Trading.Markets)
	if err != nil {
		return fmt.Errorf("loading bars: %w", err)
	}

	ctx := context.Background()
	reg := metrics.NewRegistry()
	start := time.Now()

	report, err := backtest.New(backtest.WithSeed(backtestSeed), backtest.WithLogger(log)).Run(ctx, bars, cfg)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	reg.RecordBacktest(status, time.Since(start).Seconds())
	if backtestMetricsFile != "" {
		if werr := prometheus.WriteToTextfile(backtestMetricsFile, reg); werr != nil {
			log.Warn("writing metrics file failed", zap.Error(werr))
		}
	}
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestArchive {
		archiver, err := openArchiver(cfg, log)
		if err != nil {
			return err
		}
		if archiver == nil {
			return fmt.Errorf("--archive needs storage.archive configured")
		}
		key, err := archiver.SaveReport(ctx, report)
		if err != nil {
			return fmt.Errorf("archiving report: %w", err)
		}
		log.Info("report archived", zap.String("key", key))
	}

	if backtestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(os.Stdout, report)
	return nil
}

func printReport(out io.Writer, r *backtest.Report) {
	const stamp = "2006-01-02 15:04"

	fmt.Fprintln(out, "=== upbot Backtest ===")
	fmt.Fprintf(out, "Markets:  %s\n", strings.Join(r.Markets, ", "))
	fmt.Fprintf(out, "Period:   %s to %s (%d bars)\n", r.Start.Format(stamp), r.End.Format(stamp), r.Bars)
	fmt.Fprintln(out)

	s := r.Stats
	fmt.Fprintln(out, "Performance")
	fmt.Fprintln(out, "-----------")
	fmt.Fprintf(out, "Initial Equity:  %.0f\n", r.InitialEquity)
	fmt.Fprintf(out, "Final Equity:    %.0f\n", r.FinalEquity)
	fmt.Fprintf(out, "Realized P&L:    %+.0f\n", r.RealizedPnL)
	fmt.Fprintf(out, "Total Return:    %+.2f%%\n", s.TotalReturn)
	fmt.Fprintf(out, "Max Drawdown:    %.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(out, "Sharpe Ratio:    %.2f\n", s.SharpeRatio)
	fmt.Fprintf(out, "Trades:          %d (%d closed, %d won, %d lost)\n",
		s.TotalTrades, s.ClosedTrades, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(out, "Win Rate:        %.1f%%\n", s.WinRate)
	fmt.Fprintf(out, "Fees:            %.0f\n", s.TotalFees)

	if len(r.Trades) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tMARKET\tSIDE\tPRICE\tSIZE\tFEE\tP&L\tREASON\t")
		fmt.Fprintln(w, "----\t------\t----\t-----\t----\t---\t---\t------\t")
		for _, t := range r.Trades {
			pnl := ""
			if t.Side == core.SideSell {
				pnl = fmt.Sprintf("%+.0f", t.RealizedPnL)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.8f\t%.2f\t%s\t%s\t\n",
				t.Time.Format(stamp), t.Market, t.Side, t.Price, t.Size, t.Fee, pnl, t.Reason)
		}
		w.Flush()
	}

	if len(r.OpenPositions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Open at end (marked to last close):")
		for _, p := range r.OpenPositions {
			fmt.Fprintf(out, "  %s entry %.2f last %.2f (%+.2f%%)\n", p.Market, p.EntryPrice, p.LastPrice, p.ReturnPct()*100)
		}
	}

	for _, warn := range r.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warn)
	}
}
