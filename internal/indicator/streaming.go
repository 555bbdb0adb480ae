package indicator

// window is a fixed-size circular buffer of the most recent values.
type window struct {
	buf   []float64
	idx   int
	count int
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{buf: make([]float64, size)}
}

func (w *window) push(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	w.count++
}

func (w *window) full() bool { return w.count >= len(w.buf) }

// oldest returns the earliest value still held by the window.
func (w *window) oldest() float64 {
	if w.count < len(w.buf) {
		return w.buf[0]
	}
	return w.buf[w.idx]
}

// Average is a streaming moving average.
type Average interface {
	Update(v float64)
	Value() (float64, bool)
}

// StreamingSMA is a simple moving average over a rolling window.
// The mean is recomputed from the window on each update so that identical
// windows always produce identical values.
type StreamingSMA struct {
	win     *window
	current float64
}

// NewStreamingSMA creates a streaming SMA with the given period.
func NewStreamingSMA(period int) *StreamingSMA {
	return &StreamingSMA{win: newWindow(period)}
}

func (s *StreamingSMA) Update(v float64) {
	s.win.push(v)
	if s.win.full() {
		s.current = mean(s.win.buf)
	}
}

func (s *StreamingSMA) Value() (float64, bool) {
	return s.current, s.win.full()
}

// StreamingEMA is an exponential moving average seeded with the SMA of the
// first period values.
type StreamingEMA struct {
	period     int
	multiplier float64
	count      int
	sum        float64
	current    float64
}

// NewStreamingEMA creates a streaming EMA with the given period.
func NewStreamingEMA(period int) *StreamingEMA {
	if period < 1 {
		period = 1
	}
	return &StreamingEMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *StreamingEMA) Update(v float64) {
	e.count++
	if e.count <= e.period {
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = (v-e.current)*e.multiplier + e.current
}

func (e *StreamingEMA) Value() (float64, bool) {
	return e.current, e.count >= e.period
}

// NewAverage returns an EMA when kind is "ema" and an SMA otherwise.
func NewAverage(kind string, period int) Average {
	if kind == MATypeEMA {
		return NewStreamingEMA(period)
	}
	return NewStreamingSMA(period)
}

// StreamingRSI calculates the Relative Strength Index using Wilder's
// smoothing. It needs period price changes, so the first value appears on
// bar period+1.
type StreamingRSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewStreamingRSI creates a streaming RSI with the given period.
func NewStreamingRSI(period int) *StreamingRSI {
	if period < 1 {
		period = 1
	}
	return &StreamingRSI{period: period}
}

func (r *StreamingRSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	p := float64(r.period)
	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= p
			r.avgLoss /= p
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *StreamingRSI) Value() (float64, bool) {
	return r.current, r.count > r.period
}

// rsiFrom maps average gain/loss to RSI. A flat market reads as neutral 50.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// Bands holds one Bollinger band reading.
type Bands struct {
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64
}

// StreamingBollinger computes MA(period) ± k × stddev(period).
type StreamingBollinger struct {
	win     *window
	k       float64
	current Bands
}

// NewStreamingBollinger creates Bollinger bands with the given period and multiplier.
func NewStreamingBollinger(period int, k float64) *StreamingBollinger {
	return &StreamingBollinger{win: newWindow(period), k: k}
}

func (b *StreamingBollinger) Update(price float64) {
	b.win.push(price)
	if !b.win.full() {
		return
	}
	m := mean(b.win.buf)
	sd := stddev(b.win.buf)
	b.current = Bands{
		Upper:  m + b.k*sd,
		Middle: m,
		Lower:  m - b.k*sd,
	}
	if m != 0 {
		b.current.Bandwidth = (b.current.Upper - b.current.Lower) / m
	}
}

func (b *StreamingBollinger) Value() (Bands, bool) {
	return b.current, b.win.full()
}

// VolumeRatio is current volume divided by its moving average.
type VolumeRatio struct {
	ma      *StreamingSMA
	ratio   float64
	average float64
	defined bool
}

// NewVolumeRatio creates a volume ratio over the given period.
func NewVolumeRatio(period int) *VolumeRatio {
	return &VolumeRatio{ma: NewStreamingSMA(period)}
}

func (v *VolumeRatio) Update(volume float64) {
	v.ma.Update(volume)
	avg, ok := v.ma.Value()
	v.average = avg
	v.defined = ok && avg > 0
	if v.defined {
		v.ratio = volume / avg
	}
}

// Value returns the ratio and the moving average of volume.
func (v *VolumeRatio) Value() (ratio, average float64, ok bool) {
	return v.ratio, v.average, v.defined
}
