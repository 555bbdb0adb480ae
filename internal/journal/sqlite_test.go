package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func fill(id string, side core.Side, price, qty float64, at time.Time) core.Fill {
	return core.Fill{
		ID:       id,
		OrderID:  "o-" + id,
		Market:   "KRW-BTC",
		Side:     side,
		Price:    price,
		Quantity: qty,
		Fee:      price * qty * 0.0005,
		Reason:   core.ReasonSignal,
		Time:     at,
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["ledger_state"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordFillRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	l := ledger.New(1_000_000)

	rec, err := l.ApplyFill(fill("f1", core.SideBuy, 50_000, 2, t0))
	require.NoError(t, err)
	require.NoError(t, j.RecordFill(ctx, rec, l.Snapshot()))

	sell := fill("f2", core.SideSell, 51_000, 2, t0.Add(time.Hour))
	sell.Reason = core.ReasonTakeProfit
	rec2, err := l.ApplyFill(sell)
	require.NoError(t, err)
	require.NoError(t, j.RecordFill(ctx, rec2, l.Snapshot()))

	trades, err := j.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "f1", trades[0].ID)
	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.True(t, t0.Equal(trades[0].Time), "sub-second precision survives")
	assert.Equal(t, core.ReasonTakeProfit, trades[1].Reason)
	assert.InDelta(t, rec2.RealizedPnL, trades[1].RealizedPnL, 1e-9)

	st, ok, err := j.LatestState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, l.Account().Cash, st.Cash, 1e-9)
	assert.Empty(t, st.Positions)
	assert.Len(t, st.Trades, 2)
}

func TestSQLiteDuplicateTradeIgnored(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	l := ledger.New(1_000_000)

	rec, err := l.ApplyFill(fill("f1", core.SideBuy, 50_000, 1, t0))
	require.NoError(t, err)
	require.NoError(t, j.RecordFill(ctx, rec, l.Snapshot()))
	require.NoError(t, j.RecordFill(ctx, rec, l.Snapshot()))

	trades, err := j.Trades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSQLiteLatestStateEmpty(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, ok, err := j.LatestState(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteRestoreAndReplayAgree(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	l := ledger.New(1_000_000)

	for _, f := range []core.Fill{
		fill("f1", core.SideBuy, 50_000, 2, t0),
		fill("f2", core.SideSell, 52_000, 1, t0.Add(time.Hour)),
	} {
		rec, err := l.ApplyFill(f)
		require.NoError(t, err)
		require.NoError(t, j.RecordFill(ctx, rec, l.Snapshot()))
	}

	st, ok, err := j.LatestState(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	restored := ledger.New(0)
	require.NoError(t, restored.Restore(st))

	trades, err := j.Trades(ctx)
	require.NoError(t, err)
	replayed, err := ledger.Replay(st.InitialCash, trades)
	require.NoError(t, err)

	assert.InDelta(t, restored.Account().Cash, replayed.Account().Cash, 1e-6)
	pr, ok := restored.Position("KRW-BTC")
	require.True(t, ok)
	pp, ok := replayed.Position("KRW-BTC")
	require.True(t, ok)
	assert.InDelta(t, pr.Size, pp.Size, 1e-12)
	assert.InDelta(t, pr.EntryPrice, pp.EntryPrice, 1e-9)
}

func TestSQLiteEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordEquity(ctx, EquitySnapshot{
			Time:          t0.Add(time.Duration(i) * time.Hour),
			Cash:          1000,
			Equity:        1000 + float64(i),
			OpenPositions: i,
		}))
	}

	got, err := j.Equity(ctx, t0.Add(30*time.Minute), t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1001.0, got[0].Equity)
	assert.Equal(t, 2, got[1].OpenPositions)
}

func TestSQLiteStaleStateNotWritten(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	l := ledger.New(1_000_000)

	eth := fill("f1", core.SideBuy, 100, 1, t0)
	eth.Market = "KRW-ETH"
	recA, err := l.ApplyFill(eth)
	require.NoError(t, err)
	older := l.Snapshot()

	recB, err := l.ApplyFill(fill("f2", core.SideBuy, 200, 1, t0.Add(time.Minute)))
	require.NoError(t, err)
	newer := l.Snapshot()

	// two markets finishing out of order
	require.NoError(t, j.RecordFill(ctx, recB, newer))
	require.NoError(t, j.RecordFill(ctx, recA, older))

	trades, err := j.Trades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	st, ok, err := j.LatestState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, st.Trades, 2)
	assert.Len(t, st.Positions, 2)
	assert.InDelta(t, l.Account().Cash, st.Cash, 1e-9)
}
