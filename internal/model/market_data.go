package model

import (
	"time"

	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
)

// DepthLevels is the number of book levels carried on ticks and depth snapshots.
const DepthLevels = 5

// DepthLevel is one price level of an order book side.
type DepthLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Tick is the latest top-of-book and statistics snapshot of a symbol.
type Tick struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Datetime    time.Time
	LocalTime   time.Time

	Name         string
	Volume       decimal.Decimal
	Turnover     decimal.Decimal
	OpenInterest decimal.Decimal
	LastPrice    decimal.Decimal
	LastVolume   decimal.Decimal
	LimitUp      decimal.Decimal
	LimitDown    decimal.Decimal

	OpenPrice decimal.Decimal
	HighPrice decimal.Decimal
	LowPrice  decimal.Decimal
	PreClose  decimal.Decimal

	Bids [DepthLevels]DepthLevel
	Asks [DepthLevels]DepthLevel
}

func (t Tick) ABSymbol() string { return ABSymbol(t.Symbol, t.Exchange) }

// Depth is an order book snapshot.
type Depth struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Datetime    time.Time

	Bids [DepthLevels]DepthLevel
	Asks [DepthLevels]DepthLevel
}

func (d Depth) ABSymbol() string { return ABSymbol(d.Symbol, d.Exchange) }

// Transaction is one public trade print.
type Transaction struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Datetime    time.Time

	TradeID   string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Direction enum.Direction
}

func (t Transaction) ABSymbol() string { return ABSymbol(t.Symbol, t.Exchange) }

// Entrust is one order-by-order book update.
type Entrust struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Datetime    time.Time

	OrderID   string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Direction enum.Direction
	Type      enum.OrderType
}

func (e Entrust) ABSymbol() string { return ABSymbol(e.Symbol, e.Exchange) }

// Bar is an OHLCV candle keyed by its bucket start time.
type Bar struct {
	GatewayName string
	Symbol      string
	Exchange    enum.Exchange
	Datetime    time.Time
	Interval    enum.Interval

	Volume       decimal.Decimal
	Turnover     decimal.Decimal
	OpenInterest decimal.Decimal
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
}

func (b Bar) ABSymbol() string { return ABSymbol(b.Symbol, b.Exchange) }

// FlatBar builds a zero-volume bar at t whose prices all equal the close of prev.
func FlatBar(prev Bar, t time.Time) Bar {
	return Bar{
		GatewayName:  prev.GatewayName,
		Symbol:       prev.Symbol,
		Exchange:     prev.Exchange,
		Datetime:     t,
		Interval:     prev.Interval,
		OpenInterest: prev.OpenInterest,
		Open:         prev.Close,
		High:         prev.Close,
		Low:          prev.Close,
		Close:        prev.Close,
	}
}
