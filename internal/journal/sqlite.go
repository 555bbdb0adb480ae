package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

// timeLayout keeps sub-second precision and sorts lexically
const timeLayout = time.RFC3339Nano

// SQLite is a Journal backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordFill(ctx context.Context, rec core.TradeRecord, state ledger.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding ledger state: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		(trade_id, order_id, market, side, price, size, fee, time, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrderID, rec.Market, string(rec.Side), rec.Price, rec.Size,
		rec.Fee, rec.Time.UTC().Format(timeLayout), rec.RealizedPnL, string(rec.Reason),
	); err != nil {
		return fmt.Errorf("recording trade %s: %w", rec.ID, err)
	}

	// a snapshot that knows fewer trades than the stored one is stale
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_state (id, taken_at, trade_count, state) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			taken_at = excluded.taken_at,
			trade_count = excluded.trade_count,
			state = excluded.state
		WHERE excluded.trade_count >= ledger_state.trade_count`,
		state.TakenAt.UTC().Format(timeLayout), len(state.Trades), string(data),
	); err != nil {
		return fmt.Errorf("recording ledger state: %w", err)
	}

	return tx.Commit()
}

func (j *SQLite) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO equity
		(time, cash, equity, realized_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(timeLayout), e.Cash, e.Equity, e.RealizedPnL, e.OpenPositions,
	)
	return err
}

func (j *SQLite) Trades(ctx context.Context) ([]core.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, order_id, market, side, price, size, fee, time, realized_pnl, reason
		FROM trades ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.TradeRecord
	for rows.Next() {
		var (
			rec          core.TradeRecord
			side, reason string
			ts           string
		)
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.Market, &side, &rec.Price, &rec.Size,
			&rec.Fee, &ts, &rec.RealizedPnL, &reason); err != nil {
			return nil, err
		}
		rec.Side = core.Side(side)
		rec.Reason = core.ExitReason(reason)
		if rec.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("trade %s time: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Equity returns the equity history between from and to, oldest first.
func (j *SQLite) Equity(ctx context.Context, from, to time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, cash, equity, realized_pnl, open_positions
		FROM equity WHERE time >= ? AND time <= ? ORDER BY time`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			e  EquitySnapshot
			ts string
		)
		if err := rows.Scan(&ts, &e.Cash, &e.Equity, &e.RealizedPnL, &e.OpenPositions); err != nil {
			return nil, err
		}
		if e.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) LatestState(ctx context.Context) (ledger.State, bool, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT state FROM ledger_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, false, nil
	}
	if err != nil {
		return ledger.State{}, false, err
	}

	var st ledger.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return ledger.State{}, false, fmt.Errorf("decoding ledger state: %w", err)
	}
	return st, true, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
