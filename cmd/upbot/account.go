package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show exchange balances",
	RunE:  runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func runAccount(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg.Trading.Paper = false
	if err := cfg.ValidateLive(); err != nil {
		return err
	}

	balances, err := newClient(cfg, log).Accounts(context.Background())
	if err != nil {
		return fmt.Errorf("getting account info: %w", err)
	}
	if len(balances) == 0 {
		fmt.Println("No balances found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CURRENCY\tBALANCE\tLOCKED\tAVG BUY PRICE\t")
	fmt.Fprintln(w, "--------\t-------\t------\t-------------\t")
	for _, b := range balances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t\n",
			b.Currency, b.Balance.String(), b.Locked.String(), b.AvgBuyPrice.String(), b.UnitCurrency)
	}
	w.Flush()

	log.Info("account info displayed", zap.Int("currencies", len(balances)))
	return nil
}
