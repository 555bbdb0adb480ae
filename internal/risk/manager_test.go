package risk_test

import (
	"testing"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ids"
	"github.com/newthinker/upbot/internal/ledger"
	"github.com/newthinker/upbot/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() risk.Config {
	return risk.Config{
		StopLoss:          0.03,
		TakeProfit:        0.05,
		TrailingStop:      0.02,
		UseTrailingStop:   true,
		MaxInvestRatio:    0.5,
		TradeAmount:       100_000,
		MinOrderAmount:    5000,
		MinSignalStrength: 0.6,
		FeeRate:           0.0005,
	}
}

func signal(dir core.Direction, strength, price float64) core.Signal {
	return core.Signal{Market: "KRW-BTC", Time: t0, Direction: dir, Strength: strength, Price: price}
}

func position(entry, high float64) *ledger.Position {
	return &ledger.Position{Market: "KRW-BTC", EntryPrice: entry, Size: 2, HighWater: high, Status: ledger.StatusOpen}
}

func newManager(t *testing.T, cash float64, cfg risk.Config) (*risk.Manager, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(cash)
	return risk.NewManager(cfg, l, risk.WithIDs(ids.NewULIDSource(1))), l
}

func TestManager_ExitPriority(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())

	tests := []struct {
		name   string
		pos    *ledger.Position
		sig    core.Signal
		reason core.ExitReason
	}{
		{"stop loss", position(100, 100), signal(core.DirectionBuy, 1, 96.9), core.ReasonStopLoss},
		{"take profit", position(100, 105.5), signal(core.DirectionHold, 0, 105.5), core.ReasonTakeProfit},
		{"trailing stop", position(100, 104), signal(core.DirectionHold, 0, 101.9), core.ReasonTrailingStop},
		{"signal sell", position(100, 101), signal(core.DirectionSell, 0.7, 100.5), core.ReasonSignal},
		// stop-loss and a strong sell signal both match; stop-loss wins
		{"stop loss before signal", position(100, 100), signal(core.DirectionSell, 1, 96), core.ReasonStopLoss},
		// take-profit and trailing both match; take-profit wins
		{"take profit before trailing", position(100, 120), signal(core.DirectionHold, 0, 106), core.ReasonTakeProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, d := m.Decide(tt.sig, tt.pos, l.Account())
			require.NotNil(t, order)
			assert.Equal(t, risk.ActionExit, d.Action)
			assert.Equal(t, tt.reason, order.Reason)
			assert.Equal(t, core.SideSell, order.Side)
			assert.Equal(t, tt.pos.Size, order.Quantity)
			assert.Equal(t, tt.sig.Price, order.Price)
		})
	}
}

func TestManager_ExitIgnoresSignalWhenForced(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())

	// a strong BUY does not prevent a stop-loss
	order, d := m.Decide(signal(core.DirectionBuy, 1, 90), position(100, 100), l.Account())
	require.NotNil(t, order)
	assert.Equal(t, core.ReasonStopLoss, d.Reason)
}

func TestManager_HoldWhileInPosition(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())

	tests := []struct {
		name string
		sig  core.Signal
	}{
		{"weak sell", signal(core.DirectionSell, 0.5, 100.5)},
		{"buy while entered", signal(core.DirectionBuy, 1, 100.5)},
		{"hold", signal(core.DirectionHold, 0, 100.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, d := m.Decide(tt.sig, position(100, 101), l.Account())
			assert.Nil(t, order)
			assert.Equal(t, risk.ActionNone, d.Action)
		})
	}
}

func TestManager_TrailingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.UseTrailingStop = false
	m, l := newManager(t, 1_000_000, cfg)

	order, _ := m.Decide(signal(core.DirectionHold, 0, 101.9), position(100, 104), l.Account())
	assert.Nil(t, order)
}

func TestManager_EntrySizing(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())

	order, d := m.Decide(signal(core.DirectionBuy, 0.8, 50_000), nil, l.Account())
	require.NotNil(t, order)
	assert.Equal(t, risk.ActionEnter, d.Action)
	assert.Equal(t, core.SideBuy, order.Side)
	assert.Equal(t, 100_000.0, order.Notional)
	assert.NotEmpty(t, order.ID)

	// capital is claimed, positions untouched
	assert.InDelta(t, 100_000*1.0005, l.Account().Reserved, 1e-6)
	assert.InDelta(t, 100_000, l.Exposure("KRW-BTC"), 1e-6)
	_, open := l.Position("KRW-BTC")
	assert.False(t, open)
}

func TestManager_EntryCappedByRatio(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInvestRatio = 0.05
	m, l := newManager(t, 1_000_000, cfg)

	order, _ := m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	require.NotNil(t, order)
	assert.InDelta(t, 50_000, order.Notional, 1e-6)

	// the same market cannot claim more once the cap is used
	order, d := m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	assert.Nil(t, order)
	assert.Equal(t, risk.ActionVeto, d.Action)
	assert.ErrorIs(t, d.Err, core.ErrSizingVeto)
}

func TestManager_EntryCappedByCash(t *testing.T) {
	m, l := newManager(t, 60_000, testConfig())

	order, _ := m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	require.NotNil(t, order)
	// ratio cap 30,000 binds before cash
	assert.InDelta(t, 30_000, order.Notional, 1e-6)

	cfg := testConfig()
	cfg.MaxInvestRatio = 1
	m, l = newManager(t, 60_000, cfg)
	order, _ = m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	require.NotNil(t, order)
	assert.InDelta(t, 60_000/1.0005, order.Notional, 1e-6)
}

func TestManager_EntryVetoBelowMinimum(t *testing.T) {
	m, l := newManager(t, 8000, testConfig())

	// ratio cap 4000 < min order 5000
	order, d := m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	assert.Nil(t, order)
	assert.Equal(t, risk.ActionVeto, d.Action)
	assert.ErrorIs(t, d.Err, core.ErrSizingVeto)
	assert.Zero(t, l.Account().Reserved)
}

func TestManager_EntryNeedsStrength(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())

	order, d := m.Decide(signal(core.DirectionBuy, 0.5, 50_000), nil, l.Account())
	assert.Nil(t, order)
	assert.Equal(t, risk.ActionNone, d.Action)

	order, _ = m.Decide(signal(core.DirectionSell, 1, 50_000), nil, l.Account())
	assert.Nil(t, order, "sell while flat is ignored")
}

func TestManager_OrderIDsDeterministic(t *testing.T) {
	a, la := newManager(t, 1_000_000, testConfig())
	b, lb := newManager(t, 1_000_000, testConfig())

	oa, _ := a.Decide(signal(core.DirectionBuy, 1, 50_000), nil, la.Account())
	ob, _ := b.Decide(signal(core.DirectionBuy, 1, 50_000), nil, lb.Account())
	require.NotNil(t, oa)
	require.NotNil(t, ob)
	assert.Equal(t, oa.ID, ob.ID)
}

func TestDefaultRules_Order(t *testing.T) {
	rules := risk.DefaultRules(testConfig())
	want := []core.ExitReason{core.ReasonStopLoss, core.ReasonTakeProfit, core.ReasonTrailingStop, core.ReasonSignal}
	require.Len(t, rules, len(want))
	for i, r := range rules {
		assert.Equal(t, want[i], r.Reason())
	}
}

func TestManager_EntryCappedAtInvestRatio(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInvestRatio = 0.2
	cfg.TradeAmount = 300_000
	m, l := newManager(t, 1_000_000, cfg)

	order, _ := m.Decide(signal(core.DirectionBuy, 1, 50_000), nil, l.Account())
	require.NotNil(t, order)
	assert.InDelta(t, 200_000, order.Notional, 1e-6)
}

func TestManager_TakeProfitOnRisingCloses(t *testing.T) {
	m, l := newManager(t, 1_000_000, testConfig())
	_, err := l.ApplyFill(core.Fill{ID: "f1", OrderID: "o1", Market: "KRW-BTC", Side: core.SideBuy,
		Price: 100, Quantity: 2, Time: t0})
	require.NoError(t, err)

	closes := []float64{101, 103, 105, 110.25}
	exitAt := -1
	for i, c := range closes {
		pos, open := l.Mark("KRW-BTC", c, t0.Add(time.Duration(i+1)*time.Minute))
		require.True(t, open)
		order, d := m.Decide(signal(core.DirectionHold, 0, c), &pos, l.Account())
		if order != nil {
			assert.Equal(t, core.ReasonTakeProfit, d.Reason)
			exitAt = i
			break
		}
	}
	assert.Equal(t, 2, exitAt, "take-profit fires on the first close at or above 105")
}
