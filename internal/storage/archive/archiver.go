package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/backtest"
	"github.com/newthinker/upbot/internal/ledger"
	"go.uber.org/zap"
)

const (
	backtestPrefix = "backtests/"
	ledgerPrefix   = "ledger/"
	// keyLayout sorts lexically in time order
	keyLayout = "20060102T150405Z"
)

// Archiver files backtest reports and ledger snapshots under stable keys.
type Archiver struct {
	store  Storage
	logger *zap.Logger
	now    func() time.Time
}

func NewArchiver(store Storage, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger, now: time.Now}
}

// SaveReport writes r as JSON and returns its key.
func (a *Archiver) SaveReport(ctx context.Context, r *backtest.Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	markets := strings.Join(r.Markets, "_")
	if markets == "" {
		markets = "none"
	}
	key := path.Join(backtestPrefix, a.now().UTC().Format(keyLayout)+"-"+markets+".json")

	if err := a.store.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("archiving report: %w", err)
	}
	a.logger.Info("backtest report archived", zap.String("key", key))
	return key, nil
}

// LoadReport reads a report written by SaveReport.
func (a *Archiver) LoadReport(ctx context.Context, key string) (*backtest.Report, error) {
	data, err := a.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	var r backtest.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", key, err)
	}
	return &r, nil
}

// Reports lists archived report keys, oldest first.
func (a *Archiver) Reports(ctx context.Context) ([]string, error) {
	return a.store.List(ctx, backtestPrefix)
}

// SaveLedger exports st keyed by its snapshot time.
func (a *Archiver) SaveLedger(ctx context.Context, st ledger.State) (string, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding ledger state: %w", err)
	}

	at := st.TakenAt
	if at.IsZero() {
		at = a.now()
	}
	at = at.UTC()
	key := path.Join(ledgerPrefix, at.Format("2006/01/02"), at.Format(keyLayout)+".json")

	if err := a.store.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("archiving ledger: %w", err)
	}
	a.logger.Debug("ledger snapshot archived", zap.String("key", key))
	return key, nil
}

// LatestLedger returns the most recent exported ledger state.
func (a *Archiver) LatestLedger(ctx context.Context) (ledger.State, bool, error) {
	keys, err := a.store.List(ctx, ledgerPrefix)
	if err != nil {
		return ledger.State{}, false, err
	}
	if len(keys) == 0 {
		return ledger.State{}, false, nil
	}

	data, err := a.store.Read(ctx, keys[len(keys)-1])
	if err != nil {
		return ledger.State{}, false, err
	}
	var st ledger.State
	if err := json.Unmarshal(data, &st); err != nil {
		return ledger.State{}, false, fmt.Errorf("decoding ledger state: %w", err)
	}
	return st, true, nil
}
