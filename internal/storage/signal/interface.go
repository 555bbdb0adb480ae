// Package signal keeps the most recent actionable signals for inspection.
package signal

import (
	"context"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// Record is a stored signal with its arrival sequence number.
type Record struct {
	Seq int64 `json:"seq"`
	core.Signal
}

// Store defines the interface for signal persistence.
type Store interface {
	// Save appends a signal and assigns its sequence number.
	Save(ctx context.Context, sig core.Signal) error

	// List returns signals matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Count returns the number of signals matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter defines criteria for listing signals.
type ListFilter struct {
	Market    string
	Direction core.Direction
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
