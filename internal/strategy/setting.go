package strategy

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Setting values come from config files, so numbers may arrive as any
// numeric type or as strings.

func SettingInt(setting map[string]any, key string, def int) int {
	switch v := setting[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func SettingFloat(setting map[string]any, key string, def float64) float64 {
	switch v := setting[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func SettingDecimal(setting map[string]any, key string, def decimal.Decimal) decimal.Decimal {
	switch v := setting[key].(type) {
	case decimal.Decimal:
		return v
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	case nil:
	default:
		if d, err := decimal.NewFromString(fmt.Sprint(v)); err == nil {
			return d
		}
	}
	return def
}

func SettingString(setting map[string]any, key string, def string) string {
	if v, ok := setting[key].(string); ok {
		return v
	}
	return def
}

func SettingBool(setting map[string]any, key string, def bool) bool {
	switch v := setting[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
