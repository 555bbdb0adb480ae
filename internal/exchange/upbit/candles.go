package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// candleLayout is the format of candle_date_time_utc
const candleLayout = "2006-01-02T15:04:05"

// Candle is one minute candle as returned by Upbit.
type Candle struct {
	Market    string  `json:"market"`
	StartUTC  string  `json:"candle_date_time_utc"`
	Open      float64 `json:"opening_price"`
	High      float64 `json:"high_price"`
	Low       float64 `json:"low_price"`
	Close     float64 `json:"trade_price"`
	Timestamp int64   `json:"timestamp"`
	Volume    float64 `json:"candle_acc_trade_volume"`
	Unit      int     `json:"unit"`
}

// Bar converts the candle. The bar time is the candle start.
func (c Candle) Bar() (core.Bar, error) {
	t, err := time.Parse(candleLayout, c.StartUTC)
	if err != nil {
		return core.Bar{}, core.WrapError(core.ErrMalformedData, fmt.Errorf("%s candle time %q: %w", c.Market, c.StartUTC, err))
	}
	return core.Bar{
		Market: c.Market,
		Time:   t.UTC(),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}, nil
}

// MinuteCandles returns up to count candles of unit minutes ending before
// to (zero means now), newest first as Upbit sends them.
func (c *Client) MinuteCandles(ctx context.Context, market string, unit, count int, to time.Time) ([]Candle, error) {
	if count <= 0 || count > maxCandles {
		count = maxCandles
	}
	params := url.Values{}
	params.Set("market", market)
	params.Set("count", strconv.Itoa(count))
	if !to.IsZero() {
		params.Set("to", to.UTC().Format(candleLayout)+"Z")
	}

	var candles []Candle
	path := fmt.Sprintf("/v1/candles/minutes/%d", unit)
	if err := c.do(ctx, http.MethodGet, path, params, false, &candles); err != nil {
		return nil, fmt.Errorf("fetching %s candles: %w", market, err)
	}
	return candles, nil
}

// History returns the most recent count bars of unit minutes, oldest first,
// paging backwards when count exceeds one page.
func (c *Client) History(ctx context.Context, market string, unit, count int) ([]core.Bar, error) {
	var (
		bars []core.Bar
		to   time.Time
	)
	for len(bars) < count {
		page := min(count-len(bars), maxCandles)
		candles, err := c.MinuteCandles(ctx, market, unit, page, to)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			break
		}
		for _, cd := range candles {
			b, err := cd.Bar()
			if err != nil {
				return nil, err
			}
			bars = append(bars, b)
			if to.IsZero() || b.Time.Before(to) {
				to = b.Time
			}
		}
		if len(candles) < page {
			break
		}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return dedupe(bars), nil
}

func dedupe(bars []core.Bar) []core.Bar {
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, b)
	}
	return out
}
