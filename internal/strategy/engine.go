package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"abquant/internal/bar"
	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/obs"
	"abquant/internal/risk"
	"abquant/internal/state"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

// Config tunes the live strategy engine.
type Config struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	InitWorkers    int           `mapstructure:"init_workers"`
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.InitWorkers <= 0 {
		c.InitWorkers = 4
	}
	return c
}

// Option configures optional engine collaborators.
type Option func(*Engine)

func WithRisk(r *risk.Engine) Option        { return func(e *Engine) { e.risk = r } }
func WithHistory(s history.Store) Option    { return func(e *Engine) { e.history = s } }
func WithMetrics(m *obs.Metrics) Option     { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// Engine runs strategies against live gateways. Market data is fanned out to
// the strategies subscribed to its symbol, order and trade updates go to the
// strategy that placed the order.
type Engine struct {
	ctx        context.Context
	cfg        Config
	dispatcher *bus.Dispatcher
	gateways   *gateway.Manager
	cache      *state.Cache
	risk       *risk.Engine
	history    history.Store
	metrics    *obs.Metrics
	now        func() time.Time

	mu               sync.RWMutex
	classes          map[string]Factory
	strategies       map[string]Strategy
	names            []string
	symbolStrategies map[string][]string            // ab symbol -> strategy names
	orderStrategy    map[string]string              // ab order id -> strategy name
	strategyOrders   map[string]map[string]struct{} // strategy name -> active ab order ids
	sentOrders       map[string]model.Order         // ab order id -> order as sent
	tradeSeen        map[string]struct{}            // ab trade id
	generators       map[string]*bar.Generator      // ab symbol
}

// NewEngine creates a strategy engine. ctx bounds every gateway request the
// engine makes on behalf of strategies.
func NewEngine(ctx context.Context, cfg Config, d *bus.Dispatcher, gateways *gateway.Manager, cache *state.Cache, opts ...Option) *Engine {
	e := &Engine{
		ctx:              ctx,
		cfg:              cfg.withDefaults(),
		dispatcher:       d,
		gateways:         gateways,
		cache:            cache,
		now:              time.Now,
		classes:          make(map[string]Factory),
		strategies:       make(map[string]Strategy),
		symbolStrategies: make(map[string][]string),
		orderStrategy:    make(map[string]string),
		strategyOrders:   make(map[string]map[string]struct{}),
		sentOrders:       make(map[string]model.Order),
		tradeSeen:        make(map[string]struct{}),
		generators:       make(map[string]*bar.Generator),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kinds lists the event kinds the engine consumes.
func (e *Engine) Kinds() []event.Kind {
	return []event.Kind{
		event.KindTick,
		event.KindDepth,
		event.KindTransaction,
		event.KindEntrust,
		event.KindOrder,
		event.KindTrade,
	}
}

// Register subscribes the engine to the dispatcher. Register the cache first
// so that cache lookups made during routing see the same event.
func (e *Engine) Register(d *bus.Dispatcher) {
	for _, kind := range e.Kinds() {
		d.Register(kind, e)
	}
}

// HandleEvent routes an event to strategies. Strategy failures never
// propagate to the dispatcher.
func (e *Engine) HandleEvent(ev event.Event) error {
	switch p := ev.Payload.(type) {
	case model.Tick:
		e.processTick(p)
	case model.Depth:
		e.route(p.ABSymbol(), "OnDepth", func(s Strategy) error { return s.OnDepth(p) })
	case model.Transaction:
		e.route(p.ABSymbol(), "OnTransaction", func(s Strategy) error { return s.OnTransaction(p) })
	case model.Entrust:
		e.route(p.ABSymbol(), "OnEntrust", func(s Strategy) error { return s.OnEntrust(p) })
	case model.Order:
		e.processOrder(p)
	case model.Trade:
		e.processTrade(p)
	}
	return nil
}

// RegisterClass makes a strategy class available to AddStrategy.
func (e *Engine) RegisterClass(className string, factory Factory) error {
	if factory == nil {
		return exception.ErrNilInstance
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.classes[className]; ok {
		return errors.Wrap(exception.ErrStrategyClassDuplicate, className)
	}
	e.classes[className] = factory
	return nil
}

// RegisterCheckedClass registers a class after checking the Go package in
// srcDir for LoadBars calls outside OnInit.
func (e *Engine) RegisterCheckedClass(className string, factory Factory, srcDir string) error {
	report, err := CheckPackage(srcDir)
	if err != nil {
		return errors.Wrapf(err, "check source of class %s", className)
	}
	if err := report.Err(); err != nil {
		return errors.Wrapf(err, "class %s", className)
	}
	return e.RegisterClass(className, factory)
}

// Classes returns the registered class names, sorted.
func (e *Engine) Classes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.classes))
	for name := range e.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddStrategy creates a strategy instance of a registered class.
func (e *Engine) AddStrategy(className, name string, symbols []string, setting map[string]any) error {
	if len(symbols) == 0 {
		return errors.Wrap(exception.ErrStrategyNoSymbols, name)
	}
	for _, ab := range symbols {
		if _, _, err := model.SplitABSymbol(ab); err != nil {
			return err
		}
	}

	e.mu.RLock()
	factory, ok := e.classes[className]
	_, dup := e.strategies[name]
	e.mu.RUnlock()
	if !ok {
		return errors.Wrap(exception.ErrStrategyClassNotFound, className)
	}
	if dup {
		return errors.Wrap(exception.ErrStrategyDuplicate, name)
	}

	t := NewTemplate(e, className, name, symbols, setting)
	s, err := factory(t, setting)
	if err != nil {
		return errors.Wrapf(err, "create strategy %s of class %s", name, className)
	}
	if s == nil || s.base() != t {
		return errors.Wrapf(exception.ErrInvalidArgument, "strategy %s does not embed its template", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.strategies[name]; ok {
		return errors.Wrap(exception.ErrStrategyDuplicate, name)
	}
	e.strategies[name] = s
	e.names = append(e.names, name)
	e.strategyOrders[name] = make(map[string]struct{})
	for _, ab := range t.symbols {
		e.symbolStrategies[ab] = append(e.symbolStrategies[ab], name)
	}
	return nil
}

// RemoveStrategy drops a strategy that is not trading.
func (e *Engine) RemoveStrategy(name string) error {
	s, err := e.Strategy(name)
	if err != nil {
		return err
	}
	t := s.base()
	if t.Trading() {
		return errors.Wrap(exception.ErrStrategyTrading, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strategies, name)
	delete(e.strategyOrders, name)
	for i, n := range e.names {
		if n == name {
			e.names = append(e.names[:i:i], e.names[i+1:]...)
			break
		}
	}
	for _, ab := range t.symbols {
		names := e.symbolStrategies[ab]
		kept := make([]string, 0, len(names))
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		e.symbolStrategies[ab] = kept
	}
	return nil
}

func (e *Engine) Strategy(name string) (Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	if !ok {
		return nil, errors.Wrap(exception.ErrStrategyNotFound, name)
	}
	return s, nil
}

// Strategies returns strategy names in the order they were added.
func (e *Engine) Strategies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.names...)
}

// Init runs OnInit, then subscribes the strategy's symbols. LoadBars is only
// permitted while OnInit runs.
func (e *Engine) Init(name string) error {
	s, err := e.Strategy(name)
	if err != nil {
		return err
	}
	t := s.base()
	if !t.initing.CompareAndSwap(false, true) {
		return errors.Wrapf(exception.ErrStrategyAlreadyInited, "%s is initializing", name)
	}
	defer t.initing.Store(false)
	if t.Inited() {
		return errors.Wrap(exception.ErrStrategyAlreadyInited, name)
	}

	t.inInit.Store(true)
	err = e.call(s, "OnInit", s.OnInit)
	t.inInit.Store(false)
	if err != nil {
		return err
	}

	t.inited.Store(true)
	e.subscribe(t)
	e.WriteLog(t, "initialized")
	return nil
}

// InitAll initializes every strategy that is not yet inited, a few at a time.
func (e *Engine) InitAll() error {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		first error
	)
	g.SetLimit(e.cfg.InitWorkers)
	for _, name := range e.Strategies() {
		s, err := e.Strategy(name)
		if err != nil || s.base().Inited() {
			continue
		}
		g.Go(func() error {
			if err := e.Init(name); err != nil {
				logs.Errorf("init strategy %s, err: %+v", name, err)
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return first
}

// Start runs OnStart and enables order sending.
func (e *Engine) Start(name string) error {
	s, err := e.Strategy(name)
	if err != nil {
		return err
	}
	t := s.base()
	if !t.Inited() {
		return errors.Wrap(exception.ErrStrategyNotInited, name)
	}
	if t.Trading() {
		return errors.Wrap(exception.ErrStrategyTrading, name)
	}
	if err := e.call(s, "OnStart", s.OnStart); err != nil {
		return err
	}
	t.trading.Store(true)
	e.WriteLog(t, "started")
	return nil
}

func (e *Engine) StartAll() error {
	var first error
	for _, name := range e.Strategies() {
		s, err := e.Strategy(name)
		if err != nil || !s.base().Inited() || s.base().Trading() {
			continue
		}
		if err := e.Start(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stop runs OnStop, disables trading and cancels the strategy's active
// orders. A strategy that is not trading, e.g. one stopped by a crash, only
// has its leftover orders cancelled.
func (e *Engine) Stop(name string) error {
	s, err := e.Strategy(name)
	if err != nil {
		return err
	}
	t := s.base()
	trading := t.Trading()
	if !trading && e.activeOrderCount(name) == 0 {
		return nil
	}
	if trading {
		err = e.call(s, "OnStop", s.OnStop)
		t.trading.Store(false)
	}
	if cerr := e.CancelAll(t); cerr != nil {
		logs.Errorf("cancel orders of strategy %s, err: %+v", name, cerr)
	}
	if trading {
		e.WriteLog(t, "stopped")
	}
	return err
}

func (e *Engine) StopAll() error {
	var first error
	for _, name := range e.Strategies() {
		if err := e.Stop(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SendOrder implements Runner. Price and volume are rounded to the contract
// grid and the request is checked by the risk engine before it reaches the
// gateway.
func (e *Engine) SendOrder(t *Template, req model.OrderRequest) ([]string, error) {
	if !t.Trading() {
		return nil, nil
	}

	ab := req.ABSymbol()
	contract, gw, ok := e.gateways.FindContract(ab)
	if !ok {
		err := errors.Wrap(exception.ErrOrderContractMissing, ab)
		e.writeLog(enum.LogLevelError, t, err.Error())
		return nil, err
	}

	req.Price = model.RoundTo(req.Price, contract.PriceTick)
	req.Volume = model.RoundTo(req.Volume, contract.MinVolume)
	if !req.Volume.IsPositive() {
		return nil, errors.Wrapf(exception.ErrOrderInvalidRequest, "volume rounds to zero, symbol: %s", ab)
	}
	req.Reference = t.name

	decision := e.risk.Evaluate(req, risk.StateView{
		Position:       t.pos.Position(ab),
		ReferencePrice: e.referencePrice(ab),
		ActiveOrders:   e.activeOrderCount(t.name),
		Now:            e.now(),
	})
	if !decision.Allowed {
		e.metrics.IncRiskReason(decision.Reason)
		err := decision.Err()
		e.writeLog(enum.LogLevelWarning, t, err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()
	abOrderID, err := gw.SendOrder(ctx, req)
	e.metrics.ObserveOrder(time.Since(start))
	if err != nil {
		err = errors.Wrapf(err, "send order to %s", gw.Name())
		e.writeLog(enum.LogLevelError, t, err.Error())
		return nil, err
	}

	e.mu.Lock()
	e.orderStrategy[abOrderID] = t.name
	if orders, ok := e.strategyOrders[t.name]; ok {
		orders[abOrderID] = struct{}{}
	}
	e.sentOrders[abOrderID] = req.CreateOrder(strings.TrimPrefix(abOrderID, gw.Name()+"."), gw.Name())
	e.mu.Unlock()

	return []string{abOrderID}, nil
}

// CancelOrder implements Runner.
func (e *Engine) CancelOrder(t *Template, abOrderID string) error {
	o, ok := e.lookupOrder(abOrderID)
	if !ok {
		return errors.Wrap(exception.ErrOrderUnknown, abOrderID)
	}
	if !o.IsActive() {
		return errors.Wrap(exception.ErrOrderNotActive, abOrderID)
	}
	gw, err := e.gateways.Get(o.GatewayName)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RequestTimeout)
	defer cancel()
	return gw.CancelOrder(ctx, o.CancelRequest())
}

// CancelOrders cancels a batch with one request per gateway. Unknown and
// inactive orders are skipped.
func (e *Engine) CancelOrders(t *Template, abOrderIDs []string) error {
	groups := make(map[string][]model.CancelRequest)
	for _, id := range abOrderIDs {
		o, ok := e.lookupOrder(id)
		if !ok || !o.IsActive() {
			continue
		}
		groups[o.GatewayName] = append(groups[o.GatewayName], o.CancelRequest())
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RequestTimeout)
	defer cancel()

	var first error
	for _, name := range names {
		gw, err := e.gateways.Get(name)
		if err == nil {
			err = gw.CancelOrders(ctx, groups[name])
		}
		if err != nil {
			logs.Errorf("cancel %d orders on %s, err: %+v", len(groups[name]), name, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// CancelAll implements Runner.
func (e *Engine) CancelAll(t *Template) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.strategyOrders[t.name]))
	for id := range e.strategyOrders[t.name] {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return e.CancelOrders(t, ids)
}

// ActiveOrderIDs returns the active ab order ids placed by a strategy.
func (e *Engine) ActiveOrderIDs(name string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.strategyOrders[name]))
	for id := range e.strategyOrders[name] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadBars implements Runner. History of every strategy symbol is fetched
// concurrently, aligned on timestamps and replayed into OnBars. A gateway
// without history falls back to the store.
func (e *Engine) LoadBars(t *Template, days int, interval enum.Interval) error {
	if !t.inInit.Load() {
		return errors.Wrap(exception.ErrStrategyLoadBarsMisuse, t.name)
	}
	if days <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "days: %d", days)
	}
	s, err := e.Strategy(t.name)
	if err != nil {
		return err
	}

	end := e.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	var mu sync.Mutex
	series := make(map[string][]model.Bar, len(t.symbols))
	g, ctx := errgroup.WithContext(e.ctx)
	for _, ab := range t.symbols {
		g.Go(func() error {
			bars, err := e.queryHistory(ctx, ab, interval, start, end)
			if err != nil {
				return errors.Wrapf(err, "load bars of %s", ab)
			}
			mu.Lock()
			series[ab] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	groups := bar.Merge(series)
	for _, group := range groups {
		if err := s.OnBars(group); err != nil {
			return err
		}
	}
	e.WriteLog(t, fmt.Sprintf("replayed %d bar groups", len(groups)))
	return nil
}

func (e *Engine) queryHistory(ctx context.Context, ab string, interval enum.Interval, start, end time.Time) ([]model.Bar, error) {
	symbol, exchange, err := model.SplitABSymbol(ab)
	if err != nil {
		return nil, err
	}
	req := model.HistoryRequest{Symbol: symbol, Exchange: exchange, Interval: interval, Start: start, End: end}

	if contract, gw, ok := e.gateways.FindContract(ab); ok && contract.HistoryData {
		bars, err := gw.QueryHistory(ctx, req)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		if err != nil {
			logs.Warnf("query history from %s, symbol: %s, err: %+v", gw.Name(), ab, err)
		}
	}
	if e.history == nil {
		return nil, nil
	}
	return e.history.LoadBars(ctx, req)
}

// GetContract implements Runner.
func (e *Engine) GetContract(abSymbol string) (model.Contract, bool) {
	if e.cache != nil {
		if c, ok := e.cache.GetContract(abSymbol); ok {
			return c, true
		}
	}
	c, _, ok := e.gateways.FindContract(abSymbol)
	return c, ok
}

// GetTick implements Runner.
func (e *Engine) GetTick(abSymbol string) (model.Tick, bool) {
	if e.cache == nil {
		return model.Tick{}, false
	}
	return e.cache.GetTick(abSymbol)
}

// WriteLog implements Runner.
func (e *Engine) WriteLog(t *Template, msg string) {
	e.writeLog(enum.LogLevelInfo, t, msg)
}

func (e *Engine) writeLog(level enum.LogLevel, t *Template, msg string) {
	text := fmt.Sprintf("[%s] %s", t.name, msg)
	switch level {
	case enum.LogLevelError:
		logs.Errorf("%s", text)
	case enum.LogLevelWarning:
		logs.Warnf("%s", text)
	default:
		logs.Infof("%s", text)
	}
	if e.dispatcher != nil {
		e.dispatcher.Put(event.New(event.KindLog, model.Log{Level: level, Msg: text, Time: e.now()}))
	}
}

// call runs a strategy callback. An error or panic marks the strategy as
// neither inited nor trading; other strategies are unaffected.
func (e *Engine) call(s Strategy, fn string, f func() error) (err error) {
	t := s.base()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
		if err == nil {
			return
		}
		t.trading.Store(false)
		t.inited.Store(false)
		e.metrics.IncStrategyCrash()
		err = errors.Wrapf(exception.ErrStrategyCrashed, "%s %s, err: %+v", t.name, fn, err)
		e.writeLog(enum.LogLevelError, t, err.Error())
	}()
	return f()
}

func (e *Engine) route(abSymbol, fn string, f func(Strategy) error) {
	for _, s := range e.strategiesFor(abSymbol) {
		if !s.base().Inited() {
			continue
		}
		_ = e.call(s, fn, func() error { return f(s) })
	}
}

func (e *Engine) strategiesFor(abSymbol string) []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := e.symbolStrategies[abSymbol]
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if s, ok := e.strategies[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) processTick(tick model.Tick) {
	ab := tick.ABSymbol()
	e.route(ab, "OnTick", func(s Strategy) error { return s.OnTick(tick) })

	g := e.generatorFor(ab)
	if g == nil {
		return
	}
	if err := g.UpdateTick(tick); err != nil {
		logs.Errorf("update bar generator of %s, err: %+v", ab, err)
	}
}

func (e *Engine) generatorFor(ab string) *bar.Generator {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.symbolStrategies[ab]) == 0 {
		return nil
	}
	g, ok := e.generators[ab]
	if !ok {
		g = bar.NewGenerator(func(b model.Bar) {
			e.route(ab, "OnBars", func(s Strategy) error {
				return s.OnBars(map[string]model.Bar{ab: b})
			})
		})
		e.generators[ab] = g
	}
	return g
}

func (e *Engine) processOrder(o model.Order) {
	id := o.ABOrderID()
	if e.cache != nil {
		if cur, ok := e.cache.GetOrder(id); ok && cur.Status.IsTerminal() && cur.Status != o.Status {
			return
		}
	}

	e.mu.Lock()
	name, ok := e.orderStrategy[id]
	if ok && !o.IsActive() {
		// a finished order already left the active set; repeats are dropped
		if _, active := e.strategyOrders[name][id]; !active {
			ok = false
		}
		delete(e.strategyOrders[name], id)
		delete(e.sentOrders, id)
	}
	s := e.strategies[name]
	e.mu.Unlock()
	if !ok || s == nil || !s.base().Inited() {
		return
	}
	_ = e.call(s, "OnOrder", func() error { return s.OnOrder(o) })
}

// processTrade delivers each trade id once per process, updating the
// strategy position before OnTrade.
func (e *Engine) processTrade(tr model.Trade) {
	e.mu.Lock()
	id := tr.ABTradeID()
	if _, seen := e.tradeSeen[id]; seen {
		e.mu.Unlock()
		return
	}
	e.tradeSeen[id] = struct{}{}
	name, ok := e.orderStrategy[tr.ABOrderID()]
	s := e.strategies[name]
	e.mu.Unlock()
	if !ok || s == nil {
		return
	}

	s.base().pos.ApplyTrade(tr)
	if !s.base().Inited() {
		return
	}
	_ = e.call(s, "OnTrade", func() error { return s.OnTrade(tr) })
}

func (e *Engine) subscribe(t *Template) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RequestTimeout)
	defer cancel()
	for _, ab := range t.symbols {
		contract, gw, ok := e.gateways.FindContract(ab)
		if !ok {
			e.writeLog(enum.LogLevelWarning, t, fmt.Sprintf("subscribe %s, contract not found", ab))
			continue
		}
		req := model.SubscribeRequest{Symbol: contract.Symbol, Exchange: contract.Exchange}
		if err := gw.Subscribe(ctx, req); err != nil {
			e.writeLog(enum.LogLevelError, t, fmt.Sprintf("subscribe %s, err: %+v", ab, err))
		}
	}
}

func (e *Engine) lookupOrder(abOrderID string) (model.Order, bool) {
	if e.cache != nil {
		if o, ok := e.cache.GetOrder(abOrderID); ok {
			return o, true
		}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.sentOrders[abOrderID]
	return o, ok
}

func (e *Engine) referencePrice(ab string) decimal.Decimal {
	if tick, ok := e.GetTick(ab); ok {
		return tick.LastPrice
	}
	return decimal.Zero
}

func (e *Engine) activeOrderCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.strategyOrders[name])
}
