package enum

import (
	"strings"
	"time"
)

// Exchange is the venue code used in ab symbols ("BTCUSDT.BINANCE").
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE"
	ExchangePaper   Exchange = "PAPER"
	ExchangeLocal   Exchange = "LOCAL"
)

func (e Exchange) IsAvailable() bool {
	switch e {
	case ExchangeBinance, ExchangePaper, ExchangeLocal:
		return true
	default:
		return false
	}
}

// ParseExchange maps a case-insensitive exchange code.
func ParseExchange(s string) (Exchange, bool) {
	e := Exchange(strings.ToUpper(strings.TrimSpace(s)))
	return e, e.IsAvailable()
}

// Product spot, futures, swap
type Product uint8

const (
	_product_beg Product = iota
	ProductSpot
	ProductFutures
	ProductSwap
	_product_end
)

func (p Product) IsAvailable() bool {
	return p > _product_beg && p < _product_end
}

func (p Product) String() string {
	switch p {
	case ProductSpot:
		return "SPOT"
	case ProductFutures:
		return "FUTURES"
	case ProductSwap:
		return "SWAP"
	default:
		return "UNKNOWN"
	}
}

// Interval is the bar width.
type Interval uint8

const (
	_interval_beg Interval = iota
	IntervalMinute
	IntervalHour
	IntervalDaily
	_interval_end
)

func (i Interval) IsAvailable() bool {
	return i > _interval_beg && i < _interval_end
}

// Duration returns the wall-clock width of one bar.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalMinute:
		return time.Minute
	case IntervalHour:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (i Interval) String() string {
	switch i {
	case IntervalMinute:
		return "1m"
	case IntervalHour:
		return "1h"
	case IntervalDaily:
		return "d"
	default:
		return "unknown"
	}
}

// ParseInterval maps "1m", "1h" and "d".
func ParseInterval(s string) (Interval, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m", "m", "minute":
		return IntervalMinute, true
	case "1h", "h", "hour":
		return IntervalHour, true
	case "d", "1d", "daily":
		return IntervalDaily, true
	default:
		return _interval_beg, false
	}
}

// LogLevel mirrors the logging severities carried by log events.
type LogLevel uint8

const (
	_log_level_beg LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarning
	LogLevelError
	_log_level_end
)

func (l LogLevel) IsAvailable() bool {
	return l > _log_level_beg && l < _log_level_end
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps "debug", "info", "warning" (or "warn") and "error".
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, true
	case "info", "":
		return LogLevelInfo, true
	case "warning", "warn":
		return LogLevelWarning, true
	case "error":
		return LogLevelError, true
	default:
		return _log_level_beg, false
	}
}
