package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/journal"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/newthinker/upbot/internal/trader"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the trade journal",
	Long:  `Commands for reading the bot's journal (positions, trade history, equity) and checking it.`,
}

var ledgerPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions and the account",
	RunE:  runLedgerPositions,
}

var ledgerHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show trade history",
	RunE:  runLedgerHistory,
}

var ledgerEquityCmd = &cobra.Command{
	Use:   "equity",
	Short: "Show recorded equity snapshots",
	RunE:  runLedgerEquity,
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that replaying the trade log reproduces the saved ledger",
	RunE:  runLedgerVerify,
}

var (
	historyFrom string
	historyTo   string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerPositionsCmd)
	ledgerCmd.AddCommand(ledgerHistoryCmd)
	ledgerCmd.AddCommand(ledgerEquityCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)

	for _, c := range []*cobra.Command{ledgerHistoryCmd, ledgerEquityCmd} {
		c.Flags().StringVar(&historyFrom, "from", "", "Start date (YYYY-MM-DD)")
		c.Flags().StringVar(&historyTo, "to", "", "End date (YYYY-MM-DD)")
	}
}

// withJournal handles common journal setup and teardown.
func withJournal(fn func(cfg *config.Config, j *journal.SQLite, log *zap.Logger) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if j == nil {
		return fmt.Errorf("storage.journal_path is not configured")
	}
	defer j.Close()

	return fn(cfg, j, log)
}

// loadLedger rebuilds the ledger from the newest journal snapshot.
func loadLedger(ctx context.Context, cfg *config.Config, j *journal.SQLite) (*ledger.Ledger, bool, error) {
	st, ok, err := j.LatestState(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	l := ledger.New(st.InitialCash, ledger.WithTrailingStop(trader.TrailingPct(cfg.Risk)))
	if err := l.Restore(st); err != nil {
		return nil, false, fmt.Errorf("restoring ledger: %w", err)
	}
	return l, true, nil
}

func runLedgerPositions(cmd *cobra.Command, args []string) error {
	return withJournal(func(cfg *config.Config, j *journal.SQLite, log *zap.Logger) error {
		l, ok, err := loadLedger(context.Background(), cfg, j)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Journal is empty.")
			return nil
		}

		acct := l.Account()
		fmt.Println("Account Summary")
		fmt.Println("---------------")
		fmt.Printf("Cash:            %.0f\n", acct.Cash)
		fmt.Printf("Equity:          %.0f\n", acct.Equity)
		fmt.Printf("Realized P&L:    %+.0f\n", acct.RealizedPnL)
		fmt.Printf("Open Positions:  %d\n", acct.OpenPositions)

		positions := l.Positions()
		if len(positions) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MARKET\tSIZE\tENTRY\tLAST\tSTOP\tRETURN\tOPENED\t")
		fmt.Fprintln(w, "------\t----\t-----\t----\t----\t------\t------\t")
		for _, p := range positions {
			stop := "-"
			if p.TrailingStopPrice > 0 {
				stop = fmt.Sprintf("%.2f", p.TrailingStopPrice)
			}
			fmt.Fprintf(w, "%s\t%.8f\t%.2f\t%.2f\t%s\t%+.2f%%\t%s\t\n",
				p.Market, p.Size, p.EntryPrice, p.LastPrice, stop, p.ReturnPct()*100,
				p.OpenedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()

		log.Info("positions listed", zap.Int("count", len(positions)))
		return nil
	})
}

// dateRange parses --from/--to. The end date is inclusive.
func dateRange() (start, end time.Time, err error) {
	return config.BacktestConfig{StartDate: historyFrom, EndDate: historyTo}.Range()
}

func runLedgerHistory(cmd *cobra.Command, args []string) error {
	return withJournal(func(cfg *config.Config, j *journal.SQLite, log *zap.Logger) error {
		start, end, err := dateRange()
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}

		trades, err := j.Trades(context.Background())
		if err != nil {
			return fmt.Errorf("getting trade history: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TRADE ID\tMARKET\tSIDE\tSIZE\tPRICE\tFEE\tP&L\tREASON\tTIME\t")
		fmt.Fprintln(w, "--------\t------\t----\t----\t-----\t---\t---\t------\t----\t")

		shown := 0
		for _, t := range trades {
			if (!start.IsZero() && t.Time.Before(start)) || (!end.IsZero() && t.Time.After(end)) {
				continue
			}
			shown++
			fmt.Fprintf(w, "%s\t%s\t%s\t%.8f\t%.2f\t%.2f\t%+.0f\t%s\t%s\t\n",
				t.ID, t.Market, t.Side, t.Size, t.Price, t.Fee, t.RealizedPnL, t.Reason,
				t.Time.Format("2006-01-02 15:04"))
		}
		if shown == 0 {
			fmt.Println("No trades found.")
			return nil
		}
		w.Flush()

		log.Info("trade history listed", zap.Int("count", shown))
		return nil
	})
}

func runLedgerEquity(cmd *cobra.Command, args []string) error {
	return withJournal(func(cfg *config.Config, j *journal.SQLite, log *zap.Logger) error {
		start, end, err := dateRange()
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
		if end.IsZero() {
			end = time.Now()
		}

		points, err := j.Equity(context.Background(), start, end)
		if err != nil {
			return fmt.Errorf("getting equity: %w", err)
		}
		if len(points) == 0 {
			fmt.Println("No equity snapshots found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCASH\tEQUITY\tREALIZED\tOPEN\t")
		fmt.Fprintln(w, "----\t----\t------\t--------\t----\t")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%+.0f\t%d\t\n",
				p.Time.Format("2006-01-02 15:04"), p.Cash, p.Equity, p.RealizedPnL, p.OpenPositions)
		}
		w.Flush()
		return nil
	})
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	return withJournal(func(cfg *config.Config, j *journal.SQLite, log *zap.Logger) error {
		ctx := context.Background()

		saved, ok, err := loadLedger(ctx, cfg, j)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Journal is empty.")
			return nil
		}
		trades, err := j.Trades(ctx)
		if err != nil {
			return fmt.Errorf("getting trade history: %w", err)
		}

		replayed, err := ledger.Replay(saved.InitialCash(), trades,
			ledger.WithTrailingStop(trader.TrailingPct(cfg.Risk)))
		if err != nil {
			return fmt.Errorf("replaying %d trades: %w", len(trades), err)
		}

		want, got := saved.Account(), replayed.Account()
		const eps = 1e-6
		mismatch := math.Abs(want.Cash-got.Cash) > eps ||
			math.Abs(want.RealizedPnL-got.RealizedPnL) > eps ||
			want.OpenPositions != got.OpenPositions

		fmt.Printf("Trades replayed: %d\n", len(trades))
		fmt.Printf("Cash:            saved %.4f replayed %.4f\n", want.Cash, got.Cash)
		fmt.Printf("Realized P&L:    saved %.4f replayed %.4f\n", want.RealizedPnL, got.RealizedPnL)
		fmt.Printf("Open positions:  saved %d replayed %d\n", want.OpenPositions, got.OpenPositions)

		if mismatch {
			log.Error("journal replay mismatch")
			return fmt.Errorf("replayed ledger differs from the saved snapshot")
		}
		fmt.Println("OK")
		return nil
	})
}
