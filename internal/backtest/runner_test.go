package backtest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// vShape falls, recovers and falls again. With SMA 2/4 and trend 5 it
// crosses up at 93 and the position reaches take-profit at 99.
var vShape = []float64{
	100, 99, 98, 97, 96, 95, 94, 93, 92, 91,
	91, 93, 95, 97, 99, 101, 103, 105, 107, 109,
	109, 106, 103, 100, 97, 94, 91, 88,
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Trading.Interval = 5
	cfg.Strategy.MACrossover = config.MACrossoverConfig{Enabled: true, Type: "sma", ShortPeriod: 2, LongPeriod: 4, TrendPeriod: 5}
	cfg.Strategy.RSI.Enabled = false
	cfg.Strategy.Bollinger.Enabled = false
	cfg.Strategy.Volume.Enabled = false
	cfg.Backtest.InitialBalance = 1_000_000
	cfg.Backtest.Fee = 0.0005
	return cfg
}

func series(market string, closes []float64) []core.Bar {
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{
			Market: market,
			Time:   t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1,
		}
	}
	return bars
}

func TestRunner_ConstantPrice(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	cfg := config.Defaults()
	cfg.Strategy.MACrossover.TrendPeriod = 30

	report, err := New().Run(context.Background(), series("KRW-BTC", closes), cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(report.Trades))
	}
	if report.FinalEquity != report.InitialEquity {
		t.Errorf("equity changed: %f -> %f", report.InitialEquity, report.FinalEquity)
	}
	if report.Stats.MaxDrawdown != 0 {
		t.Errorf("expected no drawdown, got %f", report.Stats.MaxDrawdown)
	}
}

func TestRunner_EntryAndTakeProfit(t *testing.T) {
	report, err := New().Run(context.Background(), series("KRW-BTC", vShape), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d: %+v", len(report.Trades), report.Trades)
	}

	buy, sell := report.Trades[0], report.Trades[1]
	if buy.Side != core.SideBuy || buy.Price != 93 {
		t.Errorf("unexpected entry %+v", buy)
	}
	if sell.Side != core.SideSell || sell.Price != 99 || sell.Reason != core.ReasonTakeProfit {
		t.Errorf("unexpected exit %+v", sell)
	}

	qty := 100_000.0 / 93
	want := (99-93)*qty - 100_000*0.0005 - 99*qty*0.0005
	if diff := sell.RealizedPnL - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("realized = %f, want %f", sell.RealizedPnL, want)
	}
	if diff := report.FinalEquity - (report.InitialEquity + want); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("final equity = %f, want %f", report.FinalEquity, report.InitialEquity+want)
	}
	if report.Stats.WinRate != 100 || report.Stats.ClosedTrades != 1 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	if len(report.Equity) != len(vShape) {
		t.Errorf("expected one equity point per bar, got %d", len(report.Equity))
	}
}

func TestRunner_Deterministic(t *testing.T) {
	bars := append(series("KRW-BTC", vShape), series("KRW-ETH", vShape)...)

	a, err := New().Run(context.Background(), bars, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New().Run(context.Background(), bars, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Error("trade logs differ between identical runs")
	}
	if len(a.Trades) == 0 || a.Trades[0].ID == "" {
		t.Error("expected trades with ids")
	}

	c, _ := New(WithSeed(99)).Run(context.Background(), bars, testConfig())
	if c.Trades[0].ID == a.Trades[0].ID {
		t.Error("a different seed should change ids")
	}
}

func TestRunner_SharedAccount(t *testing.T) {
	bars := append(series("KRW-BTC", vShape), series("KRW-ETH", vShape)...)

	report, err := New().Run(context.Background(), bars, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Markets, []string{"KRW-BTC", "KRW-ETH"}) {
		t.Errorf("markets = %v", report.Markets)
	}
	// one equity point per timestamp, not per bar
	if len(report.Equity) != len(vShape) {
		t.Errorf("expected %d equity points, got %d", len(vShape), len(report.Equity))
	}
	if len(report.Trades) != 4 {
		t.Fatalf("expected both markets to trade, got %d trades", len(report.Trades))
	}
	// same timestamp, market order
	if report.Trades[0].Market != "KRW-BTC" || report.Trades[1].Market != "KRW-ETH" {
		t.Errorf("trades not in (time, market) order: %s, %s", report.Trades[0].Market, report.Trades[1].Market)
	}
}

func TestRunner_OpenPositionMarkedAtEnd(t *testing.T) {
	// stop before take-profit is reached
	report, err := New().Run(context.Background(), series("KRW-BTC", vShape[:14]), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.OpenPositions) != 1 {
		t.Fatalf("expected an open position, got %d", len(report.OpenPositions))
	}
	pos := report.OpenPositions[0]
	if pos.LastPrice != 97 {
		t.Errorf("open position should be marked at the last close, got %f", pos.LastPrice)
	}
	cash := report.InitialEquity - 100_000*1.0005
	if diff := report.FinalEquity - (cash + pos.Size*97); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("final equity %f does not mark the open position", report.FinalEquity)
	}
}

func TestRunner_GapWarnings(t *testing.T) {
	bars := series("KRW-BTC", vShape)
	bars = append(bars[:5], bars[7:]...)

	report, err := New().Run(context.Background(), bars, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "DATA_GAP") {
		t.Errorf("expected one gap warning, got %v", report.Warnings)
	}
}

func TestRunner_MalformedDataIsFatal(t *testing.T) {
	tests := []struct {
		name string
		mod  func([]core.Bar) []core.Bar
	}{
		{"negative close", func(b []core.Bar) []core.Bar { b[3].Close = -1; return b }},
		{"duplicate timestamp", func(b []core.Bar) []core.Bar { return append(b, b[3]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Run(context.Background(), tt.mod(series("KRW-BTC", vShape)), testConfig())
			if !errors.Is(err, core.ErrMalformedData) {
				t.Errorf("expected MALFORMED_DATA, got %v", err)
			}
		})
	}
}

func TestRunner_DateRange(t *testing.T) {
	cfg := testConfig()
	cfg.Backtest.StartDate = "2024-02-01"

	_, err := New().Run(context.Background(), series("KRW-BTC", vShape), cfg)
	if !errors.Is(err, core.ErrNoData) {
		t.Errorf("expected NO_DATA outside the range, got %v", err)
	}

	cfg.Backtest.StartDate = "2024-01-01"
	cfg.Backtest.EndDate = "2024-01-01"
	report, err := New().Run(context.Background(), series("KRW-BTC", vShape), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if report.Bars != len(vShape) {
		t.Errorf("end date should be inclusive, got %d bars", report.Bars)
	}
}

func TestRunner_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Run(ctx, series("KRW-BTC", vShape), testConfig()); err == nil {
		t.Error("expected context cancellation error")
	}
}
