package signal

import (
	"context"
	"sync"

	"github.com/newthinker/upbot/internal/core"
)

// MemoryStore is a bounded in-memory store. Once full, the oldest signal
// is dropped for each new one.
type MemoryStore struct {
	records []Record
	maxSize int
	mu      sync.RWMutex
	seq     int64
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryStore{
		records: make([]Record, 0, maxSize),
		maxSize: maxSize,
	}
}

// Save adds a signal to the store.
func (m *MemoryStore) Save(ctx context.Context, sig core.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.records = append(m.records, Record{Seq: m.seq, Signal: sig})

	if len(m.records) > m.maxSize {
		m.records = append(m.records[:0], m.records[len(m.records)-m.maxSize:]...)
	}
	return nil
}

// List returns signals matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if matches(m.records[i], filter) {
			result = append(result, m.records[i])
		}
	}

	if filter.Offset >= len(result) {
		return []Record{}, nil
	}
	if filter.Offset > 0 {
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Count returns the count of matching signals.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.records {
		if matches(r, filter) {
			count++
		}
	}
	return count, nil
}

func matches(r Record, filter ListFilter) bool {
	if filter.Market != "" && r.Market != filter.Market {
		return false
	}
	if filter.Direction != "" && r.Direction != filter.Direction {
		return false
	}
	if !filter.From.IsZero() && r.Time.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && r.Time.After(filter.To) {
		return false
	}
	return true
}
