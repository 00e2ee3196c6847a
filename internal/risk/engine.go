package risk

import (
	"sync"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Reason explains why an order request was denied.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxVolume
	ReasonMaxNotional
	ReasonPriceBand
	ReasonMaxPosition
	ReasonMaxActiveOrders
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill switch"
	case ReasonRateLimit:
		return "order rate limit"
	case ReasonMaxVolume:
		return "max order volume"
	case ReasonMaxNotional:
		return "max order notional"
	case ReasonPriceBand:
		return "price deviation"
	case ReasonMaxPosition:
		return "max position"
	case ReasonMaxActiveOrders:
		return "max active orders"
	default:
		return "unknown"
	}
}

// Config defines simple pre-trade limits. Zero disables a limit.
type Config struct {
	KillSwitch           bool          `mapstructure:"kill_switch"`
	MaxOrderVolume       float64       `mapstructure:"max_order_volume"`
	MaxOrderNotional     float64       `mapstructure:"max_order_notional"`
	MaxPosition          float64       `mapstructure:"max_position"`
	OrderRateLimit       int           `mapstructure:"order_rate_limit"`
	OrderRateWindow      time.Duration `mapstructure:"order_rate_window"`
	MaxPriceDeviationBps int64         `mapstructure:"max_price_deviation_bps"`
	MaxActiveOrders      int           `mapstructure:"max_active_orders"`
}

// StateView is what the caller knows about the strategy and market when sending.
type StateView struct {
	Position       decimal.Decimal
	ReferencePrice decimal.Decimal
	ActiveOrders   int
	Now            time.Time
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns nil for an allowed decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errors.Wrap(exception.ErrRiskRejected, d.Reason.String())
}

var bps = decimal.NewFromInt(10000)

// Engine evaluates risk decisions.
type Engine struct {
	mu              sync.Mutex
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// SetKillSwitch toggles the kill switch at runtime.
func (e *Engine) SetKillSwitch(on bool) {
	e.mu.Lock()
	e.cfg.KillSwitch = on
	e.mu.Unlock()
}

// SetConfig replaces the limits. The rate window keeps counting.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// Evaluate applies the configured checks to an order request.
func (e *Engine) Evaluate(req model.OrderRequest, state StateView) Decision {
	if e == nil {
		return Decision{Allowed: true}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}

	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(ReasonRateLimit)
		}
	}

	if e.cfg.MaxActiveOrders > 0 && state.ActiveOrders >= e.cfg.MaxActiveOrders {
		return deny(ReasonMaxActiveOrders)
	}

	if e.cfg.MaxOrderVolume > 0 && req.Volume.GreaterThan(decimal.NewFromFloat(e.cfg.MaxOrderVolume)) {
		return deny(ReasonMaxVolume)
	}

	if e.cfg.MaxPriceDeviationBps > 0 && req.Type == enum.OrderTypeLimit && req.Price.IsPositive() && state.ReferencePrice.IsPositive() {
		diff := req.Price.Sub(state.ReferencePrice).Abs()
		if diff.Mul(bps).GreaterThan(state.ReferencePrice.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps))) {
			return deny(ReasonPriceBand)
		}
	}

	price := req.Price
	if !price.IsPositive() {
		price = state.ReferencePrice
	}
	if e.cfg.MaxOrderNotional > 0 && price.Mul(req.Volume).GreaterThan(decimal.NewFromFloat(e.cfg.MaxOrderNotional)) {
		return deny(ReasonMaxNotional)
	}

	next := applyDirection(state.Position, req.Direction, req.Volume)
	if e.cfg.MaxPosition > 0 && next.Abs().GreaterThan(decimal.NewFromFloat(e.cfg.MaxPosition)) {
		return deny(ReasonMaxPosition)
	}

	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func applyDirection(pos decimal.Decimal, direction enum.Direction, volume decimal.Decimal) decimal.Decimal {
	switch direction {
	case enum.DirectionLong:
		return pos.Add(volume)
	case enum.DirectionShort:
		return pos.Sub(volume)
	default:
		return pos
	}
}
