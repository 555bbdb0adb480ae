// Package journal persists the trade log and ledger snapshots so a
// restarted bot resumes where it stopped.
package journal

import (
	"context"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

// EquitySnapshot is one point of the live equity history.
type EquitySnapshot struct {
	Time          time.Time
	Cash          float64
	Equity        float64
	RealizedPnL   float64
	OpenPositions int
}

// Journal stores trade records and the latest ledger state.
type Journal interface {
	// RecordFill appends rec and replaces the stored ledger state in one
	// transaction. Recording a trade id twice keeps the first record, and a
	// state holding fewer trades than the stored one is not written.
	RecordFill(ctx context.Context, rec core.TradeRecord, state ledger.State) error
	RecordEquity(ctx context.Context, e EquitySnapshot) error
	// Trades returns the trade log in the order it was recorded.
	Trades(ctx context.Context) ([]core.TradeRecord, error)
	// LatestState returns the last stored ledger state, if any.
	LatestState(ctx context.Context) (ledger.State, bool, error)
	Close() error
}
