package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"go.uber.org/zap"
)

// CandleSource returns recent minute candles of a market, oldest first.
// The exchange client implements it.
type CandleSource interface {
	History(ctx context.Context, market string, unit, count int) ([]core.Bar, error)
}

// ClosedFeed serves only bars whose interval has ended, so the candle
// still forming on the exchange never reaches the indicators. Each fetch
// runs under a timeout and is retried once.
type ClosedFeed struct {
	src      CandleSource
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// FeedOption configures a ClosedFeed.
type FeedOption func(*ClosedFeed)

// WithFetchTimeout bounds each candle request.
func WithFetchTimeout(d time.Duration) FeedOption {
	return func(f *ClosedFeed) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFeedLogger sets the feed logger.
func WithFeedLogger(logger *zap.Logger) FeedOption {
	return func(f *ClosedFeed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewClosedFeed wraps src for bars of the given interval.
func NewClosedFeed(src CandleSource, interval time.Duration, opts ...FeedOption) *ClosedFeed {
	f := &ClosedFeed{
		src:      src,
		interval: interval,
		timeout:  10 * time.Second,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *ClosedFeed) Bars(ctx context.Context, market string, count int) ([]core.Bar, error) {
	unit := int(f.interval / time.Minute)
	if unit <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("interval %s is below one minute", f.interval))
	}

	// one extra candle covers the one that is still open
	bars, err := f.fetch(ctx, market, unit, count+1)
	if err != nil && retryableFetch(err) && ctx.Err() == nil {
		f.logger.Warn("candle fetch failed, retrying", zap.String("market", market), zap.Error(err))
		bars, err = f.fetch(ctx, market, unit, count+1)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrExchangeTimeout) {
			err = core.WrapError(core.ErrExchangeTimeout, err)
		}
		return nil, err
	}

	cutoff := f.now()
	for len(bars) > 0 && bars[len(bars)-1].Time.Add(f.interval).After(cutoff) {
		bars = bars[:len(bars)-1]
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no closed bars for %s", market))
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	return bars, nil
}

func (f *ClosedFeed) fetch(ctx context.Context, market string, unit, count int) ([]core.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.src.History(ctx, market, unit, count)
}

// retryableFetch reports whether a second request could succeed. Bad data
// and bad requests fail the same way twice.
func retryableFetch(err error) bool {
	return !errors.Is(err, core.ErrMalformedData) && !errors.Is(err, core.ErrConfigInvalid)
}
