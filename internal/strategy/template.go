package strategy

import (
	"fmt"
	"sync/atomic"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/state"

	"github.com/shopspring/decimal"
)

// Strategy is a user trading strategy. Implementations embed *Template, which
// supplies no-op callbacks and the order helpers.
type Strategy interface {
	OnInit() error
	OnStart() error
	OnStop() error
	OnTick(tick model.Tick) error
	OnDepth(depth model.Depth) error
	OnTransaction(tx model.Transaction) error
	OnEntrust(entrust model.Entrust) error
	OnBars(bars map[string]model.Bar) error
	OnOrder(order model.Order) error
	OnTrade(trade model.Trade) error

	base() *Template
}

// Factory builds a strategy around its template.
type Factory func(t *Template, setting map[string]any) (Strategy, error)

// Runner is the engine side of a strategy: live trading or backtest.
type Runner interface {
	SendOrder(t *Template, req model.OrderRequest) ([]string, error)
	CancelOrder(t *Template, abOrderID string) error
	CancelAll(t *Template) error
	LoadBars(t *Template, days int, interval enum.Interval) error
	GetContract(abSymbol string) (model.Contract, bool)
	GetTick(abSymbol string) (model.Tick, bool)
	WriteLog(t *Template, msg string)
}

// Template holds the engine-managed state of one strategy instance.
type Template struct {
	name      string
	className string
	symbols   []string
	setting   map[string]any
	runner    Runner

	inited  atomic.Bool
	trading atomic.Bool
	inInit  atomic.Bool
	initing atomic.Bool

	pos *state.PositionReducer
}

// NewTemplate creates a template bound to a runner.
func NewTemplate(runner Runner, className, name string, symbols []string, setting map[string]any) *Template {
	return &Template{
		name:      name,
		className: className,
		symbols:   append([]string(nil), symbols...),
		setting:   setting,
		runner:    runner,
		pos:       state.NewPositionReducer(),
	}
}

func (t *Template) base() *Template { return t }

func (t *Template) Name() string                      { return t.name }
func (t *Template) ClassName() string                 { return t.className }
func (t *Template) Symbols() []string                 { return append([]string(nil), t.symbols...) }
func (t *Template) Setting() map[string]any           { return t.setting }
func (t *Template) Inited() bool                      { return t.inited.Load() }
func (t *Template) Trading() bool                     { return t.trading.Load() }
func (t *Template) Positions() *state.PositionReducer { return t.pos }

// GetPos returns the trade-derived net position of an ab symbol.
func (t *Template) GetPos(abSymbol string) decimal.Decimal {
	return t.pos.Position(abSymbol)
}

func (t *Template) OnInit() error                         { return nil }
func (t *Template) OnStart() error                        { return nil }
func (t *Template) OnStop() error                         { return nil }
func (t *Template) OnTick(model.Tick) error               { return nil }
func (t *Template) OnDepth(model.Depth) error             { return nil }
func (t *Template) OnTransaction(model.Transaction) error { return nil }
func (t *Template) OnEntrust(model.Entrust) error         { return nil }
func (t *Template) OnBars(map[string]model.Bar) error     { return nil }
func (t *Template) OnOrder(model.Order) error             { return nil }
func (t *Template) OnTrade(model.Trade) error             { return nil }

// Buy opens a long position with a limit order.
func (t *Template) Buy(abSymbol string, price, volume decimal.Decimal) ([]string, error) {
	return t.SendOrder(abSymbol, enum.DirectionLong, enum.OffsetOpen, enum.OrderTypeLimit, price, volume)
}

// Sell closes a long position with a limit order.
func (t *Template) Sell(abSymbol string, price, volume decimal.Decimal) ([]string, error) {
	return t.SendOrder(abSymbol, enum.DirectionShort, enum.OffsetClose, enum.OrderTypeLimit, price, volume)
}

// Short opens a short position with a limit order.
func (t *Template) Short(abSymbol string, price, volume decimal.Decimal) ([]string, error) {
	return t.SendOrder(abSymbol, enum.DirectionShort, enum.OffsetOpen, enum.OrderTypeLimit, price, volume)
}

// Cover closes a short position with a limit order.
func (t *Template) Cover(abSymbol string, price, volume decimal.Decimal) ([]string, error) {
	return t.SendOrder(abSymbol, enum.DirectionLong, enum.OffsetClose, enum.OrderTypeLimit, price, volume)
}

// SendOrder sends an order through the runner. It is a no-op returning no
// ids while the strategy is not trading.
func (t *Template) SendOrder(abSymbol string, direction enum.Direction, offset enum.Offset, orderType enum.OrderType, price, volume decimal.Decimal) ([]string, error) {
	symbol, exchange, err := model.SplitABSymbol(abSymbol)
	if err != nil {
		return nil, err
	}
	return t.runner.SendOrder(t, model.OrderRequest{
		Symbol:    symbol,
		Exchange:  exchange,
		Direction: direction,
		Type:      orderType,
		Offset:    offset,
		Price:     price,
		Volume:    volume,
		Reference: t.name,
	})
}

func (t *Template) CancelOrder(abOrderID string) error {
	return t.runner.CancelOrder(t, abOrderID)
}

// CancelAll cancels every active order placed by this strategy.
func (t *Template) CancelAll() error {
	return t.runner.CancelAll(t)
}

// LoadBars replays history into OnBars. Only valid inside OnInit.
func (t *Template) LoadBars(days int, interval enum.Interval) error {
	return t.runner.LoadBars(t, days, interval)
}

func (t *Template) GetContract(abSymbol string) (model.Contract, bool) {
	return t.runner.GetContract(abSymbol)
}

func (t *Template) GetTick(abSymbol string) (model.Tick, bool) {
	return t.runner.GetTick(abSymbol)
}

// WriteLog publishes a strategy log line.
func (t *Template) WriteLog(format string, args ...any) {
	t.runner.WriteLog(t, fmt.Sprintf(format, args...))
}

// Lifecycle exposes the engine-managed flags of a strategy to runners
// outside this package, such as the backtester.
type Lifecycle struct {
	t *Template
}

func LifecycleOf(s Strategy) Lifecycle { return Lifecycle{t: s.base()} }

func (l Lifecycle) Template() *Template { return l.t }
func (l Lifecycle) InInit() bool        { return l.t.inInit.Load() }
func (l Lifecycle) SetInInit(v bool)    { l.t.inInit.Store(v) }
func (l Lifecycle) SetInited(v bool)    { l.t.inited.Store(v) }
func (l Lifecycle) SetTrading(v bool)   { l.t.trading.Store(v) }
