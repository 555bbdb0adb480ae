package upbit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Balance is the holding of one currency.
type Balance struct {
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Locked       decimal.Decimal `json:"locked"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	UnitCurrency string          `json:"unit_currency"`
}

// Accounts returns every non-empty balance of the account.
func (c *Client) Accounts(ctx context.Context) ([]Balance, error) {
	var out []Balance
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", nil, true, &out); err != nil {
		return nil, fmt.Errorf("fetching accounts: %w", err)
	}
	return out, nil
}

// Available returns the free balance of currency, zero when not held.
func (c *Client) Available(ctx context.Context, currency string) (float64, error) {
	balances, err := c.Accounts(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Currency == currency {
			return b.Balance.InexactFloat64(), nil
		}
	}
	return 0, nil
}
