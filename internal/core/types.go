package core

import (
	"fmt"
	"time"
)

// Bar represents one OHLCV candle for a market over one interval
type Bar struct {
	Market string    `json:"market"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks that the bar is usable by the engine
func (b Bar) Validate() error {
	if b.Market == "" {
		return WrapError(ErrMalformedData, fmt.Errorf("bar at %s has no market", b.Time.Format(time.RFC3339)))
	}
	if b.Time.IsZero() {
		return WrapError(ErrMalformedData, fmt.Errorf("%s: bar has no timestamp", b.Market))
	}
	if b.Close <= 0 || b.Open <= 0 || b.High <= 0 || b.Low <= 0 {
		return WrapError(ErrMalformedData, fmt.Errorf("%s@%s: non-positive price", b.Market, b.Time.Format(time.RFC3339)))
	}
	if b.High < b.Low {
		return WrapError(ErrMalformedData, fmt.Errorf("%s@%s: high %.8f below low %.8f", b.Market, b.Time.Format(time.RFC3339), b.High, b.Low))
	}
	if b.Volume < 0 {
		return WrapError(ErrMalformedData, fmt.Errorf("%s@%s: negative volume", b.Market, b.Time.Format(time.RFC3339)))
	}
	return nil
}

// Direction is the discrete output of the signal engine
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Signal is a directional recommendation derived from indicators.
// It is not yet risk-adjusted and is never mutated after creation.
type Signal struct {
	Market       string    `json:"market"`
	Time         time.Time `json:"time"`
	Direction    Direction `json:"direction"`
	Strength     float64   `json:"strength"`
	Contributing []string  `json:"contributing,omitempty"`
	Price        float64   `json:"price"`
	Reason       string    `json:"reason,omitempty"`
}

// IsActionable reports whether the signal asks for a trade
func (s Signal) IsActionable() bool {
	return s.Direction == DirectionBuy || s.Direction == DirectionSell
}

// Side is the side of an order or fill
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ExitReason explains why an order was created
type ExitReason string

const (
	ReasonSignal       ExitReason = "signal"
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTakeProfit   ExitReason = "take_profit"
	ReasonTrailingStop ExitReason = "trailing_stop"
)

// IsForced reports whether the reason is a risk-triggered exit
func (r ExitReason) IsForced() bool {
	return r == ReasonStopLoss || r == ReasonTakeProfit || r == ReasonTrailingStop
}

// Order is a risk-adjusted, sized instruction pending execution.
// BUY orders are sized by Notional (quote currency), SELL orders by Quantity.
type Order struct {
	ID        string     `json:"id"`
	Market    string     `json:"market"`
	Side      Side       `json:"side"`
	Notional  float64    `json:"notional,omitempty"`
	Quantity  float64    `json:"quantity,omitempty"`
	Price     float64    `json:"price"`
	Reason    ExitReason `json:"reason"`
	Strength  float64    `json:"strength,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Fill confirms that an order executed
type Fill struct {
	ID       string     `json:"id"`
	OrderID  string     `json:"order_id"`
	Market   string     `json:"market"`
	Side     Side       `json:"side"`
	Price    float64    `json:"price"`
	Quantity float64    `json:"quantity"`
	Fee      float64    `json:"fee"`
	Reason   ExitReason `json:"reason"`
	Time     time.Time  `json:"time"`
}

// Notional returns price times quantity
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// TradeRecord is an immutable append-only log entry
type TradeRecord struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Market      string     `json:"market"`
	Side        Side       `json:"side"`
	Price       float64    `json:"price"`
	Size        float64    `json:"size"`
	Fee         float64    `json:"fee"`
	Time        time.Time  `json:"time"`
	RealizedPnL float64    `json:"realized_pnl"`
	Reason      ExitReason `json:"reason"`
}

// Fill reconstructs the fill that produced this record
func (r TradeRecord) Fill() Fill {
	return Fill{
		ID:       r.ID,
		OrderID:  r.OrderID,
		Market:   r.Market,
		Side:     r.Side,
		Price:    r.Price,
		Quantity: r.Size,
		Fee:      r.Fee,
		Reason:   r.Reason,
		Time:     r.Time,
	}
}

// IsWin returns true for a closing trade with positive realized P&L
func (r TradeRecord) IsWin() bool {
	return r.Side == SideSell && r.RealizedPnL > 0
}
