package model

import (
	"strings"

	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
)

// ABSymbol formats the normalized symbol key "{symbol}.{exchange}".
func ABSymbol(symbol string, exchange enum.Exchange) string {
	return symbol + "." + string(exchange)
}

// SplitABSymbol splits "{symbol}.{exchange}" at the last dot.
func SplitABSymbol(abSymbol string) (string, enum.Exchange, error) {
	idx := strings.LastIndexByte(abSymbol, '.')
	if idx <= 0 || idx == len(abSymbol)-1 {
		return "", "", exception.ErrInvalidSymbol
	}
	exchange, ok := enum.ParseExchange(abSymbol[idx+1:])
	if !ok {
		return "", "", exception.ErrInvalidSymbol
	}
	return abSymbol[:idx], exchange, nil
}

// JoinID joins key parts with dots, e.g. ab_orderid "{gateway}.{orderid}".
func JoinID(parts ...string) string {
	return strings.Join(parts, ".")
}

// RoundTo rounds value to the nearest multiple of target. A non-positive target returns value unchanged.
func RoundTo(value, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return value
	}
	return value.Div(target).Round(0).Mul(target)
}

// FloorTo rounds value down to a multiple of target.
func FloorTo(value, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return value
	}
	return value.Div(target).Floor().Mul(target)
}
