package signal

import (
	"context"
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_SaveAndList(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	sig := core.Signal{
		Market:       "KRW-BTC",
		Time:         t0,
		Direction:    core.DirectionBuy,
		Strength:     0.85,
		Contributing: []string{"ma_crossover"},
		Price:        50_000_000,
	}

	if err := store.Save(ctx, sig); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	records, err := store.List(ctx, ListFilter{Market: "KRW-BTC"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(records))
	}
	if records[0].Seq != 1 || records[0].Strength != 0.85 {
		t.Errorf("unexpected record %+v", records[0])
	}
}

func TestMemoryStore_ListByDirection(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	store.Save(ctx, core.Signal{Market: "KRW-BTC", Direction: core.DirectionBuy, Time: t0})
	store.Save(ctx, core.Signal{Market: "KRW-ETH", Direction: core.DirectionSell, Time: t0})

	records, _ := store.List(ctx, ListFilter{Direction: core.DirectionSell})
	if len(records) != 1 || records[0].Market != "KRW-ETH" {
		t.Errorf("expected the KRW-ETH sell, got %+v", records)
	}
}

func TestMemoryStore_ListByTimeRange(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	store.Save(ctx, core.Signal{Market: "KRW-BTC", Time: t0.Add(-2 * time.Hour)})
	store.Save(ctx, core.Signal{Market: "KRW-ETH", Time: t0})

	records, _ := store.List(ctx, ListFilter{From: t0.Add(-1 * time.Hour)})
	if len(records) != 1 {
		t.Errorf("expected 1, got %d", len(records))
	}

	n, _ := store.Count(ctx, ListFilter{To: t0.Add(-1 * time.Hour)})
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

func TestMemoryStore_NewestFirstWithPaging(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Save(ctx, core.Signal{Market: "KRW-BTC", Time: t0.Add(time.Duration(i) * time.Minute)})
	}

	records, _ := store.List(ctx, ListFilter{Offset: 1, Limit: 2})
	if len(records) != 2 {
		t.Fatalf("expected 2, got %d", len(records))
	}
	if records[0].Seq != 4 || records[1].Seq != 3 {
		t.Errorf("expected seq 4 then 3, got %d then %d", records[0].Seq, records[1].Seq)
	}

	records, _ = store.List(ctx, ListFilter{Offset: 5})
	if len(records) != 0 {
		t.Errorf("offset past the end should be empty, got %d", len(records))
	}
}

func TestMemoryStore_MaxSize(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	store.Save(ctx, core.Signal{Market: "A", Time: t0})
	store.Save(ctx, core.Signal{Market: "B", Time: t0})
	store.Save(ctx, core.Signal{Market: "C", Time: t0})

	records, _ := store.List(ctx, ListFilter{})
	if len(records) != 2 {
		t.Fatalf("expected 2 (max size), got %d", len(records))
	}
	if records[0].Market != "C" || records[1].Market != "B" {
		t.Errorf("oldest signal should be dropped, got %s, %s", records[0].Market, records[1].Market)
	}
}
