package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegistry_HTTPMetrics(t *testing.T) {
	reg := NewRegistry()

	// Verify HTTP metrics are registered
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func TestRegistry_RecordRequest(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRequest("GET", "/metrics", 200, 0.05)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected http_requests_total metric")
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/test", tt.status, 0.01)

			mfs, err := reg.Gather()
			if err != nil {
				t.Fatalf("gather failed: %v", err)
			}

			found := false
			for _, mf := range mfs {
				if mf.GetName() == "http_requests_total" {
					for _, m := range mf.GetMetric() {
						for _, label := range m.GetLabel() {
							if label.GetName() == "status" && label.GetValue() == tt.expected {
								found = true
							}
						}
					}
				}
			}
			if !found {
				t.Errorf("expected status label %s for status code %d", tt.expected, tt.status)
			}
		})
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_requests_in_flight" {
			found = true
			for _, m := range mf.GetMetric() {
				if m.GetGauge().GetValue() != 1 {
					t.Errorf("expected in-flight gauge to be 1, got %v", m.GetGauge().GetValue())
				}
			}
		}
	}
	if !found {
		t.Error("expected http_requests_in_flight metric")
	}
}

func TestRegistry_DurationHistogram(t *testing.T) {
	reg := NewRegistry()

	reg.RecordRequest("POST", "/status", 200, 0.123)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "http_request_duration_seconds" {
			found = true
			for _, m := range mf.GetMetric() {
				hist := m.GetHistogram()
				if hist.GetSampleCount() != 1 {
					t.Errorf("expected sample count 1, got %d", hist.GetSampleCount())
				}
				if hist.GetSampleSum() < 0.12 || hist.GetSampleSum() > 0.13 {
					t.Errorf("expected sample sum ~0.123, got %v", hist.GetSampleSum())
				}
			}
		}
	}
	if !found {
		t.Error("expected http_request_duration_seconds metric")
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}

func gauge(t *testing.T, reg *Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					if g := m.GetGauge(); g != nil {
						return g.GetValue()
					}
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestRegistry_TradingCounters(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBar("KRW-BTC", "BUY")
	reg.RecordBar("KRW-BTC", "HOLD")
	reg.RecordOrder("KRW-BTC", "BUY", "filled")
	reg.RecordOrder("KRW-ETH", "BUY", "rejected")
	reg.RecordExit("KRW-BTC", "STOP_LOSS")
	reg.RecordMarketError("KRW-ETH", "EXCHANGE_TIMEOUT")

	if got := gauge(t, reg, "upbot_bars_processed_total", "market", "KRW-BTC"); got != 2 {
		t.Errorf("expected 2 bars, got %v", got)
	}
	if got := gauge(t, reg, "upbot_orders_total", "status", "rejected"); got != 1 {
		t.Errorf("expected 1 rejected order, got %v", got)
	}
	if got := gauge(t, reg, "upbot_exits_total", "reason", "STOP_LOSS"); got != 1 {
		t.Errorf("expected 1 stop loss, got %v", got)
	}
	if got := gauge(t, reg, "upbot_market_errors_total", "code", "EXCHANGE_TIMEOUT"); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}
}

func TestRegistry_AccountGauges(t *testing.T) {
	reg := NewRegistry()

	reg.SetAccount(500_000, 1_020_000, 20_000, 2)
	reg.SetNotifications(10, 3, 1, 0)

	if got := gauge(t, reg, "upbot_account", "field", "equity"); got != 1_020_000 {
		t.Errorf("expected equity 1020000, got %v", got)
	}
	if got := gauge(t, reg, "upbot_account", "field", "open_positions"); got != 2 {
		t.Errorf("expected 2 open positions, got %v", got)
	}
	if got := gauge(t, reg, "upbot_notifications", "result", "dropped"); got != 1 {
		t.Errorf("expected 1 dropped, got %v", got)
	}
}

func TestRegistry_RecordBacktest(t *testing.T) {
	reg := NewRegistry()
	reg.RecordBacktest("success", 1.5)

	if got := gauge(t, reg, "upbot_backtests_total", "status", "success"); got != 1 {
		t.Errorf("expected 1 backtest, got %v", got)
	}
}
