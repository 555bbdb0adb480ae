// Package notifier defines bot events and the channels that deliver them.
package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/ledger"
)

// Kind classifies an event.
type Kind string

const (
	KindStartup      Kind = "startup"
	KindShutdown     Kind = "shutdown"
	KindFilled       Kind = "order_filled"
	KindStopLoss     Kind = "stop_loss"
	KindTakeProfit   Kind = "take_profit"
	KindTrailingStop Kind = "trailing_stop"
	KindRejected     Kind = "order_rejected"
	KindError        Kind = "error"
	KindPortfolio    Kind = "portfolio"
	KindAlert        Kind = "alert"
)

// Urgent reports whether the kind bypasses router cooldowns.
func (k Kind) Urgent() bool {
	switch k {
	case KindFilled, KindStopLoss, KindTakeProfit, KindTrailingStop:
		return true
	}
	return false
}

// Field is one labelled value in an event body.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a notification raised by the bot.
type Event struct {
	Kind    Kind      `json:"kind"`
	Market  string    `json:"market,omitempty"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Fields  []Field   `json:"fields,omitempty"`
	// Source names the rule that raised an alert.
	Source string `json:"source,omitempty"`
}

// Key groups events for cooldown purposes.
func (e Event) Key() string {
	key := string(e.Kind)
	if e.Market != "" {
		key += ":" + e.Market
	}
	if e.Source != "" {
		key += ":" + e.Source
	}
	return key
}

// Title is a one-line heading for the event.
func (e Event) Title() string {
	title := strings.ReplaceAll(string(e.Kind), "_", " ")
	title = strings.ToUpper(title[:1]) + title[1:]
	if e.Market != "" {
		title += " " + e.Market
	}
	return title
}

func f(key, format string, args ...any) Field {
	return Field{Key: key, Value: fmt.Sprintf(format, args...)}
}

// StartupEvent announces the bot starting.
func StartupEvent(mode string, markets []string, acct ledger.Account, at time.Time) Event {
	return Event{
		Kind:    KindStartup,
		Time:    at,
		Message: fmt.Sprintf("upbot started in %s mode", mode),
		Fields: []Field{
			f("Markets", "%s", strings.Join(markets, ", ")),
			f("Cash", "%.0f", acct.Cash),
			f("Open positions", "%d", acct.OpenPositions),
		},
	}
}

// ShutdownEvent announces a graceful stop.
func ShutdownEvent(acct ledger.Account, at time.Time) Event {
	return Event{
		Kind:    KindShutdown,
		Time:    at,
		Message: "upbot stopped",
		Fields: []Field{
			f("Equity", "%.0f", acct.Equity),
			f("Realized P&L", "%.0f", acct.RealizedPnL),
		},
	}
}

// FillEvent reports a filled order. Forced exits get their own kind.
func FillEvent(rec core.TradeRecord) Event {
	kind := KindFilled
	if rec.Side == core.SideSell {
		switch rec.Reason {
		case core.ReasonStopLoss:
			kind = KindStopLoss
		case core.ReasonTakeProfit:
			kind = KindTakeProfit
		case core.ReasonTrailingStop:
			kind = KindTrailingStop
		}
	}

	e := Event{
		Kind:    kind,
		Market:  rec.Market,
		Time:    rec.Time,
		Message: fmt.Sprintf("%s %.8g %s @ %.8g", rec.Side, rec.Size, rec.Market, rec.Price),
		Fields: []Field{
			f("Side", "%s", rec.Side),
			f("Price", "%.8g", rec.Price),
			f("Size", "%.8g", rec.Size),
			f("Fee", "%.2f", rec.Fee),
		},
	}
	if rec.Side == core.SideSell {
		e.Fields = append(e.Fields, f("Realized P&L", "%.2f", rec.RealizedPnL))
	}
	if rec.Reason != "" {
		e.Fields = append(e.Fields, f("Reason", "%s", rec.Reason))
	}
	return e
}

// RejectedEvent reports an order the exchange or simulator refused.
func RejectedEvent(order core.Order, err error) Event {
	return Event{
		Kind:    KindRejected,
		Market:  order.Market,
		Time:    order.CreatedAt,
		Message: fmt.Sprintf("%s order rejected: %v", order.Side, err),
		Fields: []Field{
			f("Order", "%s", order.ID),
			f("Reason", "%s", order.Reason),
		},
	}
}

// ErrorEvent reports a failure while processing a market.
func ErrorEvent(market string, err error, at time.Time) Event {
	return Event{
		Kind:    KindError,
		Market:  market,
		Time:    at,
		Message: err.Error(),
	}
}

// PortfolioEvent summarizes the account and open positions.
func PortfolioEvent(acct ledger.Account, positions []ledger.Position, at time.Time) Event {
	e := Event{
		Kind:    KindPortfolio,
		Time:    at,
		Message: fmt.Sprintf("equity %.0f, %d open positions", acct.Equity, acct.OpenPositions),
		Fields: []Field{
			f("Cash", "%.0f", acct.Cash),
			f("Equity", "%.0f", acct.Equity),
			f("Realized P&L", "%.0f", acct.RealizedPnL),
		},
	}
	for _, p := range positions {
		e.Fields = append(e.Fields, f(p.Market, "%.8g @ %.8g (%+.2f%%)", p.Size, p.EntryPrice, p.ReturnPct()*100))
	}
	return e
}

// AlertEvent reports a fired alert rule.
func AlertEvent(rule, severity, message string, value float64, at time.Time) Event {
	if severity == "" {
		severity = "warning"
	}
	return Event{
		Kind:    KindAlert,
		Time:    at,
		Message: message,
		Source:  rule,
		Fields: []Field{
			f("Rule", "%s", rule),
			f("Severity", "%s", severity),
			f("Value", "%.4g", value),
		},
	}
}
