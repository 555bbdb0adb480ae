// Package risk turns signals into sized orders and forces exits.
package risk

import (
	"fmt"
	"math"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ids"
	"github.com/newthinker/upbot/internal/ledger"
	"go.uber.org/zap"
)

// Config defines risk management parameters.
type Config struct {
	// StopLoss is the fractional loss from entry that forces an exit.
	StopLoss float64
	// TakeProfit is the fractional gain from entry that forces an exit.
	TakeProfit float64
	// TrailingStop is the fractional drop from the high-water mark that
	// forces an exit when UseTrailingStop is set.
	TrailingStop    float64
	UseTrailingStop bool
	// MaxInvestRatio caps a market's exposure as a fraction of equity.
	MaxInvestRatio float64
	// TradeAmount is the quote amount spent per entry.
	TradeAmount float64
	// MinOrderAmount is the smallest order the exchange accepts.
	MinOrderAmount float64
	// MinSignalStrength is the strength a BUY or SELL signal needs to act.
	MinSignalStrength float64
	// FeeRate is charged on order notional.
	FeeRate float64
}

// Action is the outcome of a decision.
type Action string

const (
	ActionNone  Action = "none"
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
	ActionVeto  Action = "veto"
)

// Decision explains what the manager did with a signal.
type Decision struct {
	Action Action
	// Reason is set for entries and exits.
	Reason  core.ExitReason
	Message string
	// Err carries the sizing veto; vetoes are not failures.
	Err error
}

// Capital is the part of the ledger the manager needs. Reserve must check
// and claim atomically.
type Capital interface {
	Exposure(market string) float64
	Reserve(market, orderID string, notional, fee, maxRatio float64) error
}

// Manager decides order action and size. It never mutates positions; it
// only claims capital for entries.
type Manager struct {
	cfg     Config
	rules   []ExitRule
	capital Capital
	ids     ids.Source
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRules replaces the exit chain.
func WithRules(rules ...ExitRule) Option {
	return func(m *Manager) { m.rules = rules }
}

// WithIDs sets the order id source.
func WithIDs(src ids.Source) Option {
	return func(m *Manager) { m.ids = src }
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager with the default exit chain and UUID order ids.
func NewManager(cfg Config, capital Capital, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		rules:   DefaultRules(cfg),
		capital: capital,
		ids:     ids.UUIDSource{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Decide returns an order for sig, or nil. pos is the open position of the
// signal's market, nil when flat. While a position is open the exit chain
// runs regardless of the signal; when flat only a strong enough BUY enters.
func (m *Manager) Decide(sig core.Signal, pos *ledger.Position, acct ledger.Account) (*core.Order, Decision) {
	if pos != nil {
		return m.decideExit(sig, *pos)
	}
	return m.decideEntry(sig, acct)
}

func (m *Manager) decideExit(sig core.Signal, pos ledger.Position) (*core.Order, Decision) {
	for _, rule := range m.rules {
		hit, msg := rule.Check(pos, sig.Price, sig)
		if !hit {
			continue
		}
		order := &core.Order{
			ID:        m.ids.New(sig.Time),
			Market:    sig.Market,
			Side:      core.SideSell,
			Quantity:  pos.Size,
			Price:     sig.Price,
			Reason:    rule.Reason(),
			Strength:  sig.Strength,
			CreatedAt: sig.Time,
		}
		m.logger.Info("exit decided",
			zap.String("market", sig.Market),
			zap.String("reason", string(rule.Reason())),
			zap.String("detail", msg),
		)
		return order, Decision{Action: ActionExit, Reason: rule.Reason(), Message: msg}
	}
	return nil, Decision{Action: ActionNone, Message: "holding position"}
}

func (m *Manager) decideEntry(sig core.Signal, acct ledger.Account) (*core.Order, Decision) {
	if sig.Direction != core.DirectionBuy {
		return nil, Decision{Action: ActionNone, Message: "flat"}
	}
	if sig.Strength < m.cfg.MinSignalStrength {
		return nil, Decision{Action: ActionNone,
			Message: fmt.Sprintf("buy strength %.2f below %.2f", sig.Strength, m.cfg.MinSignalStrength)}
	}

	size, err := m.size(sig.Market, acct)
	if err != nil {
		return nil, m.veto(sig, err)
	}

	orderID := m.ids.New(sig.Time)
	fee := size * m.cfg.FeeRate
	if err := m.capital.Reserve(sig.Market, orderID, size, fee, m.cfg.MaxInvestRatio); err != nil {
		return nil, m.veto(sig, err)
	}

	order := &core.Order{
		ID:        orderID,
		Market:    sig.Market,
		Side:      core.SideBuy,
		Notional:  size,
		Price:     sig.Price,
		Reason:    core.ReasonSignal,
		Strength:  sig.Strength,
		CreatedAt: sig.Time,
	}
	return order, Decision{Action: ActionEnter, Reason: core.ReasonSignal,
		Message: fmt.Sprintf("buy %.0f at strength %.2f", size, sig.Strength)}
}

// size is min(trade_amount, max_invest_ratio × equity − exposure), capped
// by free cash net of fees.
func (m *Manager) size(market string, acct ledger.Account) (float64, error) {
	headroom := m.cfg.MaxInvestRatio*acct.Equity - m.capital.Exposure(market)
	size := math.Min(m.cfg.TradeAmount, headroom)
	size = math.Min(size, acct.Free()/(1+m.cfg.FeeRate))

	if size <= 0 {
		return 0, core.WrapError(core.ErrSizingVeto, fmt.Errorf("%s: no capacity (headroom %.2f, free %.2f)", market, headroom, acct.Free()))
	}
	if size < m.cfg.MinOrderAmount {
		return 0, core.WrapError(core.ErrSizingVeto, fmt.Errorf("%s: size %.2f below minimum order %.2f", market, size, m.cfg.MinOrderAmount))
	}
	return size, nil
}

func (m *Manager) veto(sig core.Signal, err error) Decision {
	m.logger.Debug("entry vetoed", zap.String("market", sig.Market), zap.Error(err))
	return Decision{Action: ActionVeto, Message: err.Error(), Err: err}
}
