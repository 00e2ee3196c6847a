package backtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/strategy"
	"abquant/pkg/exception"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// GatewayName tags orders and trades produced by the backtester.
const GatewayName = "BACKTEST"

// Parameters describe one backtest run.
type Parameters struct {
	ABSymbol   string
	Interval   enum.Interval
	Start      time.Time
	End        time.Time
	Rate       float64 // commission per turnover
	Slippage   float64 // price units per fill
	Size       float64
	PriceTick  float64
	Capital    float64
	AnnualDays int
	RiskFree   float64
}

func (p Parameters) withDefaults() Parameters {
	if !p.Interval.IsAvailable() {
		p.Interval = enum.IntervalMinute
	}
	if p.Size <= 0 {
		p.Size = 1
	}
	if p.Capital <= 0 {
		p.Capital = 1_000_000
	}
	if p.AnnualDays <= 0 {
		p.AnnualDays = 365
	}
	return p
}

// Validate checks that the run can be set up.
func (p Parameters) Validate() error {
	if _, _, err := model.SplitABSymbol(p.ABSymbol); err != nil {
		return errors.Wrapf(exception.ErrBacktestInvalidParameter, "symbol %q, err: %+v", p.ABSymbol, err)
	}
	if !p.End.IsZero() && p.End.Before(p.Start) {
		return errors.Wrapf(exception.ErrBacktestInvalidParameter, "end %s before start %s", p.End, p.Start)
	}
	if p.Rate < 0 || p.Slippage < 0 || p.PriceTick < 0 {
		return errors.Wrap(exception.ErrBacktestInvalidParameter, "rate, slippage and price tick must be >= 0")
	}
	return nil
}

// Engine replays the bars of one symbol through one strategy and matches
// its limit orders against each new bar. It implements strategy.Runner.
type Engine struct {
	params   Parameters
	contract model.Contract
	store    history.Store
	runID    string

	strategy strategy.Strategy
	bars     []model.Bar
	initEnd  int

	bar      model.Bar
	hasBar   bool
	orderSeq int
	tradeSeq int
	orders   map[string]model.Order // ab order id
	active   []string               // ab order ids in placement order
	trades   []model.Trade
	logs     []string
	daily    []*DailyResult
}

var _ strategy.Runner = (*Engine)(nil)

// NewEngine creates a backtester. store may be nil when bars are supplied
// with SetData.
func NewEngine(store history.Store) *Engine {
	return &Engine{
		store:  store,
		runID:  uuid.NewString(),
		orders: make(map[string]model.Order),
	}
}

func (e *Engine) RunID() string { return e.runID }

// SetParameters validates and applies p.
func (e *Engine) SetParameters(p Parameters) error {
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	symbol, exchange, _ := model.SplitABSymbol(p.ABSymbol)
	e.params = p
	e.contract = model.Contract{
		GatewayName: GatewayName,
		Symbol:      symbol,
		Exchange:    exchange,
		Name:        symbol,
		Product:     enum.ProductSpot,
		Size:        decimal.NewFromFloat(p.Size),
		PriceTick:   decimal.NewFromFloat(p.PriceTick),
	}
	return nil
}

// AddStrategy builds the strategy with this engine as its runner.
func (e *Engine) AddStrategy(className string, factory strategy.Factory, setting map[string]any) error {
	if factory == nil {
		return exception.ErrNilInstance
	}
	if e.params.ABSymbol == "" {
		return errors.Wrap(exception.ErrBacktestInvalidParameter, "parameters not set")
	}
	t := strategy.NewTemplate(e, className, className, []string{e.params.ABSymbol}, setting)
	s, err := factory(t, setting)
	if err != nil {
		return errors.Wrapf(err, "build strategy %s", className)
	}
	if s == nil || strategy.LifecycleOf(s).Template() != t {
		return errors.Wrapf(exception.ErrInvalidArgument, "strategy %s does not embed its template", className)
	}
	e.strategy = s
	return nil
}

// LoadData reads the configured range from the history store.
func (e *Engine) LoadData(ctx context.Context) error {
	if e.store == nil {
		return errors.Wrap(exception.ErrNilInstance, "history store")
	}
	symbol, exchange, _ := model.SplitABSymbol(e.params.ABSymbol)
	end := e.params.End
	if end.IsZero() {
		end = time.Now()
	}
	bars, err := e.store.LoadBars(ctx, model.HistoryRequest{
		Symbol:   symbol,
		Exchange: exchange,
		Interval: e.params.Interval,
		Start:    e.params.Start,
		End:      end,
	})
	if err != nil {
		return errors.Wrap(err, "load bars")
	}
	e.SetData(bars)
	logs.Infof("backtest %s loaded %d bars of %s", e.runID, len(e.bars), e.params.ABSymbol)
	return nil
}

// SetData replaces the replay data. Bars are sorted by time.
func (e *Engine) SetData(bars []model.Bar) {
	e.bars = append([]model.Bar(nil), bars...)
	sort.SliceStable(e.bars, func(i, j int) bool {
		return e.bars[i].Datetime.Before(e.bars[j].Datetime)
	})
}

// Run initializes the strategy, replays the data and stops the strategy.
// A failing callback aborts the run.
func (e *Engine) Run() error {
	if e.strategy == nil {
		return exception.ErrBacktestNoStrategy
	}
	if len(e.bars) == 0 {
		return exception.ErrBacktestNoData
	}
	s := e.strategy
	lc := strategy.LifecycleOf(s)

	lc.SetInInit(true)
	err := call(s, "OnInit", s.OnInit)
	lc.SetInInit(false)
	if err != nil {
		return err
	}
	lc.SetInited(true)

	if err := call(s, "OnStart", s.OnStart); err != nil {
		return err
	}
	lc.SetTrading(true)

	ab := e.params.ABSymbol
	for _, b := range e.bars[e.initEnd:] {
		e.bar, e.hasBar = b, true
		if err := e.crossLimitOrders(); err != nil {
			return err
		}
		if err := call(s, "OnBars", func() error { return s.OnBars(map[string]model.Bar{ab: b}) }); err != nil {
			return err
		}
		e.updateDailyClose(b)
	}

	err = call(s, "OnStop", s.OnStop)
	lc.SetTrading(false)
	logs.Infof("backtest %s finished, bars: %d, trades: %d", e.runID, len(e.bars)-e.initEnd, len(e.trades))
	return err
}

func call(s strategy.Strategy, fn string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
		if err != nil {
			err = errors.Wrapf(exception.ErrStrategyCrashed, "%s %s, err: %+v", strategy.LifecycleOf(s).Template().Name(), fn, err)
		}
	}()
	return f()
}

// crossLimitOrders fills every active order the current bar reaches. A buy
// fills at the better of its price and the bar open; a sell likewise.
func (e *Engine) crossLimitOrders() error {
	s := e.strategy
	b := e.bar

	ids := append([]string(nil), e.active...)
	for _, id := range ids {
		o := e.orders[id]
		if o.Status == enum.StatusSubmitting {
			o.Status = enum.StatusNotTraded
			e.orders[id] = o
			if err := call(s, "OnOrder", func() error { return s.OnOrder(o) }); err != nil {
				return err
			}
		}

		price, ok := crossPrice(o, b)
		if !ok {
			continue
		}

		o.Traded = o.Volume
		o.Status = enum.StatusAllTraded
		o.Datetime = b.Datetime
		e.orders[id] = o
		e.removeActive(id)
		if err := call(s, "OnOrder", func() error { return s.OnOrder(o) }); err != nil {
			return err
		}

		e.tradeSeq++
		trade := model.Trade{
			GatewayName: GatewayName,
			Symbol:      o.Symbol,
			Exchange:    o.Exchange,
			OrderID:     o.OrderID,
			TradeID:     strconv.Itoa(e.tradeSeq),
			Direction:   o.Direction,
			Offset:      o.Offset,
			Price:       price,
			Volume:      o.Volume,
			Datetime:    b.Datetime,
		}
		e.trades = append(e.trades, trade)
		strategy.LifecycleOf(s).Template().Positions().ApplyTrade(trade)
		if err := call(s, "OnTrade", func() error { return s.OnTrade(trade) }); err != nil {
			return err
		}
	}
	return nil
}

func crossPrice(o model.Order, b model.Bar) (decimal.Decimal, bool) {
	switch {
	case o.Type == enum.OrderTypeMarket:
		return b.Open, b.Open.IsPositive()
	case o.Direction == enum.DirectionLong:
		if !b.Low.IsPositive() || o.Price.LessThan(b.Low) {
			return decimal.Zero, false
		}
		return decimal.Min(o.Price, b.Open), true
	default:
		if !b.High.IsPositive() || o.Price.GreaterThan(b.High) {
			return decimal.Zero, false
		}
		return decimal.Max(o.Price, b.Open), true
	}
}

func (e *Engine) removeActive(id string) {
	for i, v := range e.active {
		if v == id {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return
		}
	}
}

// SendOrder implements strategy.Runner. Orders rest until a later bar
// crosses them.
func (e *Engine) SendOrder(t *strategy.Template, req model.OrderRequest) ([]string, error) {
	if !t.Trading() {
		return nil, nil
	}
	switch req.Type {
	case enum.OrderTypeLimit, enum.OrderTypeMarket:
	default:
		return nil, errors.Wrap(exception.ErrOrderUnsupportedType, req.Type.String())
	}
	if req.ABSymbol() != e.params.ABSymbol {
		return nil, errors.Wrap(exception.ErrOrderContractMissing, req.ABSymbol())
	}
	req.Price = model.RoundTo(req.Price, e.contract.PriceTick)
	if !req.Volume.IsPositive() {
		return nil, errors.Wrapf(exception.ErrOrderInvalidRequest, "volume: %s", req.Volume)
	}

	e.orderSeq++
	o := req.CreateOrder(strconv.Itoa(e.orderSeq), GatewayName)
	if e.hasBar {
		o.Datetime = e.bar.Datetime
	}
	id := o.ABOrderID()
	e.orders[id] = o
	e.active = append(e.active, id)
	return []string{id}, nil
}

// CancelOrder implements strategy.Runner.
func (e *Engine) CancelOrder(t *strategy.Template, abOrderID string) error {
	o, ok := e.orders[abOrderID]
	if !ok {
		return errors.Wrap(exception.ErrOrderUnknown, abOrderID)
	}
	if !o.IsActive() {
		return errors.Wrap(exception.ErrOrderNotActive, abOrderID)
	}
	o.Status = enum.StatusCancelled
	e.orders[abOrderID] = o
	e.removeActive(abOrderID)
	return call(e.strategy, "OnOrder", func() error { return e.strategy.OnOrder(o) })
}

// CancelAll implements strategy.Runner.
func (e *Engine) CancelAll(t *strategy.Template) error {
	for _, id := range append([]string(nil), e.active...) {
		if err := e.CancelOrder(t, id); err != nil {
			return err
		}
	}
	return nil
}

// LoadBars implements strategy.Runner. The first days of data become the
// init window: they are replayed into OnBars with trading disabled and are
// excluded from the trading replay.
func (e *Engine) LoadBars(t *strategy.Template, days int, _ enum.Interval) error {
	if !strategy.LifecycleOf(e.strategy).InInit() {
		return errors.Wrap(exception.ErrStrategyLoadBarsMisuse, t.Name())
	}
	if days <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "days: %d", days)
	}

	cutoff := e.bars[0].Datetime.AddDate(0, 0, days)
	ab := e.params.ABSymbol
	n := 0
	for n < len(e.bars) && e.bars[n].Datetime.Before(cutoff) {
		b := e.bars[n]
		e.bar, e.hasBar = b, true
		if err := e.strategy.OnBars(map[string]model.Bar{ab: b}); err != nil {
			return err
		}
		n++
	}
	e.initEnd = n
	return nil
}

// GetContract implements strategy.Runner.
func (e *Engine) GetContract(abSymbol string) (model.Contract, bool) {
	if abSymbol != e.params.ABSymbol {
		return model.Contract{}, false
	}
	return e.contract, true
}

// GetTick implements strategy.Runner with a tick built from the current bar.
func (e *Engine) GetTick(abSymbol string) (model.Tick, bool) {
	if abSymbol != e.params.ABSymbol || !e.hasBar {
		return model.Tick{}, false
	}
	return model.Tick{
		GatewayName: GatewayName,
		Symbol:      e.bar.Symbol,
		Exchange:    e.bar.Exchange,
		Datetime:    e.bar.Datetime,
		LastPrice:   e.bar.Close,
		OpenPrice:   e.bar.Open,
		HighPrice:   e.bar.High,
		LowPrice:    e.bar.Low,
	}, true
}

// WriteLog implements strategy.Runner.
func (e *Engine) WriteLog(t *strategy.Template, msg string) {
	line := fmt.Sprintf("%s [%s] %s", e.bar.Datetime.Format(time.DateTime), t.Name(), msg)
	e.logs = append(e.logs, line)
	logs.Infof("backtest %s", line)
}

func (e *Engine) Trades() []model.Trade { return append([]model.Trade(nil), e.trades...) }
func (e *Engine) Logs() []string        { return append([]string(nil), e.logs...) }

// Orders returns every order in placement order.
func (e *Engine) Orders() []model.Order {
	out := make([]model.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].OrderID)
		b, _ := strconv.Atoi(out[j].OrderID)
		return a < b
	})
	return out
}
