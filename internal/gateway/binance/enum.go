package binance

import (
	"abquant/internal/model/enum"
)

func binanceSide(direction enum.Direction) string {
	switch direction {
	case enum.DirectionShort:
		return "SELL"
	default:
		return "BUY"
	}
}

func directionFromSide(side string) enum.Direction {
	if side == "SELL" {
		return enum.DirectionShort
	}
	return enum.DirectionLong
}

// binanceOrderType returns the order type and time in force of a request.
func binanceOrderType(t enum.OrderType) (string, string, bool) {
	switch t {
	case enum.OrderTypeLimit:
		return "LIMIT", "GTC", true
	case enum.OrderTypeMarket:
		return "MARKET", "", true
	case enum.OrderTypeFAK:
		return "LIMIT", "IOC", true
	case enum.OrderTypeFOK:
		return "LIMIT", "FOK", true
	default:
		return "", "", false
	}
}

func orderTypeFromBinance(typ, tif string) enum.OrderType {
	switch {
	case typ == "MARKET":
		return enum.OrderTypeMarket
	case tif == "IOC":
		return enum.OrderTypeFAK
	case tif == "FOK":
		return enum.OrderTypeFOK
	case typ == "LIMIT" || typ == "LIMIT_MAKER":
		return enum.OrderTypeLimit
	default:
		return enum.OrderTypeStop
	}
}

var statusFromBinance = map[string]enum.Status{
	"NEW":              enum.StatusNotTraded,
	"PENDING_NEW":      enum.StatusSubmitting,
	"PARTIALLY_FILLED": enum.StatusPartTraded,
	"FILLED":           enum.StatusAllTraded,
	"CANCELED":         enum.StatusCancelled,
	"PENDING_CANCEL":   enum.StatusNotTraded,
	"EXPIRED":          enum.StatusCancelled,
	"EXPIRED_IN_MATCH": enum.StatusCancelled,
	"REJECTED":         enum.StatusRejected,
}

func binanceInterval(i enum.Interval) (string, bool) {
	switch i {
	case enum.IntervalMinute:
		return "1m", true
	case enum.IntervalHour:
		return "1h", true
	case enum.IntervalDaily:
		return "1d", true
	default:
		return "", false
	}
}
