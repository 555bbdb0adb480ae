package indicator

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// Snapshot keys
const (
	KeyMAShort     = "ma_short"
	KeyMALong      = "ma_long"
	KeyMATrend     = "ma_trend"
	KeyRSI         = "rsi"
	KeyBBUpper     = "bb_upper"
	KeyBBMiddle    = "bb_middle"
	KeyBBLower     = "bb_lower"
	KeyBBBandwidth = "bb_bandwidth"
	KeyVolumeMA    = "volume_ma"
	KeyVolumeRatio = "volume_ratio"

	FlagBullishDivergence = "rsi_bullish_divergence"
	FlagBearishDivergence = "rsi_bearish_divergence"
)

// Moving average types
const (
	MATypeSMA = "sma"
	MATypeEMA = "ema"
)

// MAConfig configures the short/long/trend moving averages.
type MAConfig struct {
	Enabled bool
	Type    string
	Short   int
	Long    int
	Trend   int
}

// RSIConfig configures RSI and optional divergence detection.
type RSIConfig struct {
	Enabled          bool
	Period           int
	Divergence       bool
	DivergenceWindow int
}

// BollingerConfig configures Bollinger bands.
type BollingerConfig struct {
	Enabled bool
	Period  int
	StdDev  float64
}

// VolumeConfig configures the volume ratio.
type VolumeConfig struct {
	Enabled bool
	Period  int
}

// Config selects which indicators a Set computes.
type Config struct {
	MA        MAConfig
	RSI       RSIConfig
	Bollinger BollingerConfig
	Volume    VolumeConfig
}

// Warmup returns the number of bars after which every enabled indicator
// (and divergence flag) is defined.
func (c Config) Warmup() int {
	n := 1
	if c.MA.Enabled {
		n = maxInt(n, c.MA.Short, c.MA.Long, c.MA.Trend)
	}
	if c.RSI.Enabled {
		w := c.RSI.Period + 1
		if c.RSI.Divergence {
			w += c.RSI.DivergenceWindow
		}
		n = maxInt(n, w)
	}
	if c.Bollinger.Enabled {
		n = maxInt(n, c.Bollinger.Period)
	}
	if c.Volume.Enabled {
		n = maxInt(n, c.Volume.Period)
	}
	return n
}

func maxInt(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v > m {
			m = v
		}
	}
	return m
}

// Snapshot is the indicator state after one bar. Indicators that are
// disabled or whose window is not yet full are absent.
type Snapshot struct {
	Market string
	Time   time.Time
	Close  float64
	Volume float64

	values map[string]float64
	flags  map[string]bool
}

// NewSnapshot builds a snapshot from explicit values. Keys missing from
// values are undefined.
func NewSnapshot(market string, t time.Time, price, volume float64, values map[string]float64, flags map[string]bool) Snapshot {
	snap := Snapshot{
		Market: market,
		Time:   t,
		Close:  price,
		Volume: volume,
		values: make(map[string]float64, len(values)),
		flags:  make(map[string]bool, len(flags)),
	}
	for k, v := range values {
		snap.values[k] = v
	}
	for k, v := range flags {
		snap.flags[k] = v
	}
	return snap
}

// Get returns the named indicator value and whether it is defined.
func (s Snapshot) Get(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Flag returns a boolean indicator such as a divergence flag.
func (s Snapshot) Flag(name string) bool {
	return s.flags[name]
}

// Defined returns the sorted names of all defined indicators.
func (s Snapshot) Defined() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsZero reports whether the snapshot was never populated.
func (s Snapshot) IsZero() bool {
	return s.Time.IsZero()
}

// Set holds the streaming indicator state for a single market.
type Set struct {
	market   string
	cfg      Config
	lastTime time.Time

	maShort Average
	maLong  Average
	maTrend Average
	rsi     *StreamingRSI
	bb      *StreamingBollinger
	volume  *VolumeRatio

	// closes and rsiValues hold divergence_window+1 entries so the oldest
	// element is the value divergence_window bars ago.
	closes    *window
	rsiValues *window
}

// NewSet creates indicator state for market. Disabled strategies get no
// indicator state.
func NewSet(market string, cfg Config) *Set {
	s := &Set{market: market, cfg: cfg}
	if cfg.MA.Enabled {
		s.maShort = NewAverage(cfg.MA.Type, cfg.MA.Short)
		s.maLong = NewAverage(cfg.MA.Type, cfg.MA.Long)
		s.maTrend = NewAverage(cfg.MA.Type, cfg.MA.Trend)
	}
	if cfg.RSI.Enabled {
		s.rsi = NewStreamingRSI(cfg.RSI.Period)
		if cfg.RSI.Divergence && cfg.RSI.DivergenceWindow > 0 {
			s.closes = newWindow(cfg.RSI.DivergenceWindow + 1)
			s.rsiValues = newWindow(cfg.RSI.DivergenceWindow + 1)
		}
	}
	if cfg.Bollinger.Enabled {
		s.bb = NewStreamingBollinger(cfg.Bollinger.Period, cfg.Bollinger.StdDev)
	}
	if cfg.Volume.Enabled {
		s.volume = NewVolumeRatio(cfg.Volume.Period)
	}
	return s
}

// Market returns the market this set tracks.
func (s *Set) Market() string { return s.market }

// Update feeds one bar and returns the resulting snapshot. Bars for another
// market, or with a timestamp not after the previous bar, are rejected
// without touching state.
func (s *Set) Update(bar core.Bar) (Snapshot, error) {
	if bar.Market != s.market {
		return Snapshot{}, core.WrapError(core.ErrMalformedData,
			fmt.Errorf("bar for %s fed to %s indicators", bar.Market, s.market))
	}
	if !s.lastTime.IsZero() && !bar.Time.After(s.lastTime) {
		return Snapshot{}, core.WrapError(core.ErrMalformedData,
			fmt.Errorf("%s: bar at %s is not after %s", s.market,
				bar.Time.Format(time.RFC3339), s.lastTime.Format(time.RFC3339)))
	}
	s.lastTime = bar.Time

	snap := Snapshot{
		Market: bar.Market,
		Time:   bar.Time,
		Close:  bar.Close,
		Volume: bar.Volume,
		values: make(map[string]float64, 10),
		flags:  make(map[string]bool, 2),
	}

	if s.maShort != nil {
		s.updateAverage(&snap, s.maShort, KeyMAShort, bar.Close)
		s.updateAverage(&snap, s.maLong, KeyMALong, bar.Close)
		s.updateAverage(&snap, s.maTrend, KeyMATrend, bar.Close)
	}

	if s.rsi != nil {
		s.rsi.Update(bar.Close)
		rsi, ok := s.rsi.Value()
		if ok {
			snap.values[KeyRSI] = rsi
		}
		if s.closes != nil {
			s.updateDivergence(&snap, bar.Close, rsi, ok)
		}
	}

	if s.bb != nil {
		s.bb.Update(bar.Close)
		if bands, ok := s.bb.Value(); ok {
			snap.values[KeyBBUpper] = bands.Upper
			snap.values[KeyBBMiddle] = bands.Middle
			snap.values[KeyBBLower] = bands.Lower
			snap.values[KeyBBBandwidth] = bands.Bandwidth
		}
	}

	if s.volume != nil {
		s.volume.Update(bar.Volume)
		if ratio, avg, ok := s.volume.Value(); ok {
			snap.values[KeyVolumeRatio] = ratio
			snap.values[KeyVolumeMA] = avg
		}
	}

	return snap, nil
}

func (s *Set) updateAverage(snap *Snapshot, avg Average, key string, v float64) {
	avg.Update(v)
	if val, ok := avg.Value(); ok {
		snap.values[key] = val
	}
}

// updateDivergence compares price and RSI against their values
// divergence_window bars ago. Only bars with a defined RSI enter the window.
func (s *Set) updateDivergence(snap *Snapshot, price, rsi float64, rsiDefined bool) {
	if !rsiDefined {
		return
	}
	s.closes.push(price)
	s.rsiValues.push(rsi)
	if !s.closes.full() {
		return
	}
	pastClose := s.closes.oldest()
	pastRSI := s.rsiValues.oldest()

	snap.flags[FlagBullishDivergence] = price < pastClose && rsi > pastRSI
	snap.flags[FlagBearishDivergence] = price > pastClose && rsi < pastRSI
}
