package model

import (
	"time"

	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Order is the gateway's latest view of an order. The gateway owns the status.
type Order struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	OrderID     string

	Type      enum.OrderType
	Direction enum.Direction
	Offset    enum.Offset
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Traded    decimal.Decimal
	Status    enum.Status
	Datetime  time.Time
	Reference string
}

func (o Order) ABSymbol() string  { return ABSymbol(o.Symbol, o.Exchange) }
func (o Order) ABOrderID() string { return JoinID(o.GatewayName, o.OrderID) }
func (o Order) IsActive() bool    { return o.Status.IsActive() }

// CancelRequest builds the request that cancels this order.
func (o Order) CancelRequest() CancelRequest {
	return CancelRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Exchange: o.Exchange,
	}
}

// Trade is an immutable fill belonging to an order.
type Trade struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	OrderID     string
	TradeID     string

	Direction  enum.Direction
	Offset     enum.Offset
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Commission decimal.Decimal
	Datetime   time.Time
}

func (t Trade) ABSymbol() string  { return ABSymbol(t.Symbol, t.Exchange) }
func (t Trade) ABOrderID() string { return JoinID(t.GatewayName, t.OrderID) }
func (t Trade) ABTradeID() string { return JoinID(t.GatewayName, t.TradeID) }

// Position is a venue-reported holding; each update replaces the previous one.
type Position struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Direction   enum.Direction

	Volume   decimal.Decimal
	Frozen   decimal.Decimal
	Price    decimal.Decimal
	PnL      decimal.Decimal
	YdVolume decimal.Decimal
}

func (p Position) ABSymbol() string { return ABSymbol(p.Symbol, p.Exchange) }

// ABPositionID is "{gateway}.{symbol}.{exchange}.{direction}".
func (p Position) ABPositionID() string {
	return JoinID(p.GatewayName, p.ABSymbol(), p.Direction.String())
}

// Account is a venue-reported balance; each update replaces the previous one.
type Account struct {
	GatewayName string
	AccountID   string

	Balance decimal.Decimal
	Frozen  decimal.Decimal
}

func (a Account) ABAccountID() string { return JoinID(a.GatewayName, a.AccountID) }

// Available is balance minus frozen.
func (a Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.Frozen)
}

// Contract describes a tradable instrument.
type Contract struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Name        string
	Product     enum.Product

	Size        decimal.Decimal
	PriceTick   decimal.Decimal
	MinVolume   decimal.Decimal
	MinNotional decimal.Decimal
	HistoryData bool
}

func (c Contract) ABSymbol() string { return ABSymbol(c.Symbol, c.Exchange) }

// Log is a log line surfaced as an event so strategies and notifiers can observe it.
type Log struct {
	Level       enum.LogLevel
	Msg         string
	GatewayName string
	Time        time.Time
}

// GatewayStatus reports a gateway connectivity change.
type GatewayStatus struct {
	GatewayName string
	Connected   bool
	Reason      string
	Time        time.Time
}
