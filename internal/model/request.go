package model

import (
	"time"

	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
)

// SubscribeRequest asks a gateway for market data of one symbol.
type SubscribeRequest struct {
	Symbol   string
	Exchange enum.Exchange
}

func (r SubscribeRequest) ABSymbol() string { return ABSymbol(r.Symbol, r.Exchange) }

// OrderRequest is sent to a gateway to place a new order.
type OrderRequest struct {
	Symbol    string
	Exchange  enum.Exchange
	Direction enum.Direction
	Type      enum.OrderType
	Offset    enum.Offset
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Reference string
}

func (r OrderRequest) ABSymbol() string { return ABSymbol(r.Symbol, r.Exchange) }

// CreateOrder builds the initial Submitting order for the request.
func (r OrderRequest) CreateOrder(orderID, gatewayName string) Order {
	return Order{
		GatewayName: gatewayName,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		OrderID:     orderID,
		Type:        r.Type,
		Direction:   r.Direction,
		Offset:      r.Offset,
		Price:       r.Price,
		Volume:      r.Volume,
		Traded:      decimal.Zero,
		Status:      enum.StatusSubmitting,
		Datetime:    time.Now(),
		Reference:   r.Reference,
	}
}

// CancelRequest asks a gateway to cancel an order.
type CancelRequest struct {
	OrderID  string
	Symbol   string
	Exchange enum.Exchange
}

func (r CancelRequest) ABSymbol() string { return ABSymbol(r.Symbol, r.Exchange) }

// HistoryRequest queries bars in [Start, End].
type HistoryRequest struct {
	Symbol   string
	Exchange enum.Exchange
	Interval enum.Interval
	Start    time.Time
	End      time.Time
}

func (r HistoryRequest) ABSymbol() string { return ABSymbol(r.Symbol, r.Exchange) }
