// Package marketdata supplies OHLCV bars from the exchange or from files
// and flags gaps in them.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// Feed returns the most recent closed bars of a market, oldest first.
type Feed interface {
	Bars(ctx context.Context, market string, count int) ([]core.Bar, error)
}

// Gap is a run of missing bars between two consecutive bars of a market.
type Gap struct {
	Market  string
	After   time.Time
	Before  time.Time
	Missing int
}

// Err returns the gap as a DATA_GAP error.
func (g Gap) Err() error {
	return core.WrapError(core.ErrDataGap, fmt.Errorf("%s: %d bar(s) missing between %s and %s",
		g.Market, g.Missing, g.After.Format(time.RFC3339), g.Before.Format(time.RFC3339)))
}

// FindGaps reports every place where consecutive bars of the same market
// are more than one interval apart. Bars need not be sorted. Gaps are
// never filled.
func FindGaps(bars []core.Bar, interval time.Duration) []Gap {
	if interval <= 0 || len(bars) < 2 {
		return nil
	}

	byMarket := make(map[string][]time.Time)
	for _, b := range bars {
		byMarket[b.Market] = append(byMarket[b.Market], b.Time)
	}
	markets := make([]string, 0, len(byMarket))
	for m := range byMarket {
		markets = append(markets, m)
	}
	sort.Strings(markets)

	var gaps []Gap
	for _, m := range markets {
		times := byMarket[m]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			d := times[i].Sub(times[i-1])
			if d > interval {
				gaps = append(gaps, Gap{
					Market:  m,
					After:   times[i-1],
					Before:  times[i],
					Missing: int(d/interval) - 1 + boolInt(d%interval != 0),
				})
			}
		}
	}
	return gaps
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Sort orders bars by timestamp, then market.
func Sort(bars []core.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Time.Equal(bars[j].Time) {
			return bars[i].Time.Before(bars[j].Time)
		}
		return bars[i].Market < bars[j].Market
	})
}

// Between returns the bars with start <= time <= end. A zero bound is open.
func Between(bars []core.Bar, start, end time.Time) []core.Bar {
	out := make([]core.Bar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
