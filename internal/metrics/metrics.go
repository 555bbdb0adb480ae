package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Trading metrics
	barsProcessed    *prometheus.CounterVec
	signals          *prometheus.CounterVec
	orders           *prometheus.CounterVec
	exits            *prometheus.CounterVec
	marketErrors     *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	account          *prometheus.GaugeVec
	notifications    *prometheus.GaugeVec
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.barsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_bars_processed_total",
			Help: "Total number of closed bars evaluated",
		},
		[]string{"market"},
	)
	r.signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_signals_total",
			Help: "Total number of fused signals by direction",
		},
		[]string{"market", "direction"},
	)
	r.orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_orders_total",
			Help: "Total number of orders by outcome",
		},
		[]string{"market", "side", "status"},
	)
	r.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_exits_total",
			Help: "Total number of position exits by reason",
		},
		[]string{"market", "reason"},
	)
	r.marketErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_market_errors_total",
			Help: "Total number of per-market processing errors",
		},
		[]string{"market", "code"},
	)
	r.tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upbot_tick_duration_seconds",
			Help:    "Duration of one trading tick across all markets",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	r.account = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upbot_account",
			Help: "Account figures in quote currency, or a count for open_positions",
		},
		[]string{"field"},
	)
	r.notifications = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upbot_notifications",
			Help: "Notification router counters by result",
		},
		[]string{"result"},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upbot_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upbot_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.signals)
	reg.MustRegister(r.orders)
	reg.MustRegister(r.exits)
	reg.MustRegister(r.marketErrors)
	reg.MustRegister(r.tickDuration)
	reg.MustRegister(r.account)
	reg.MustRegister(r.notifications)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBar records an evaluated bar and the direction of its signal.
func (r *Registry) RecordBar(market, direction string) {
	r.barsProcessed.WithLabelValues(market).Inc()
	r.signals.WithLabelValues(market, direction).Inc()
}

// RecordOrder records an order outcome: filled, rejected or failed.
func (r *Registry) RecordOrder(market, side, status string) {
	r.orders.WithLabelValues(market, side, status).Inc()
}

// RecordExit records a closing fill.
func (r *Registry) RecordExit(market, reason string) {
	r.exits.WithLabelValues(market, reason).Inc()
}

// RecordMarketError records a failure isolated to one market.
func (r *Registry) RecordMarketError(market, code string) {
	r.marketErrors.WithLabelValues(market, code).Inc()
}

// RecordTick records the duration of a trading tick.
func (r *Registry) RecordTick(duration float64) {
	r.tickDuration.Observe(duration)
}

// SetAccount publishes the current account figures.
func (r *Registry) SetAccount(cash, equity, realized float64, openPositions int) {
	r.account.WithLabelValues("cash").Set(cash)
	r.account.WithLabelValues("equity").Set(equity)
	r.account.WithLabelValues("realized_pnl").Set(realized)
	r.account.WithLabelValues("open_positions").Set(float64(openPositions))
}

// SetNotifications publishes the router counters.
func (r *Registry) SetNotifications(delivered, filtered, dropped, failed uint64) {
	r.notifications.WithLabelValues("delivered").Set(float64(delivered))
	r.notifications.WithLabelValues("filtered").Set(float64(filtered))
	r.notifications.WithLabelValues("dropped").Set(float64(dropped))
	r.notifications.WithLabelValues("failed").Set(float64(failed))
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
