package paper

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"abquant/internal/chaos"
	"abquant/internal/gateway"
	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Name is the default gateway name.
const Name = "PAPER"

// Config controls the simulated venue.
type Config struct {
	Name              string         `mapstructure:"name"`
	ResendOnReconnect bool           `mapstructure:"resend_on_reconnect"`
	Currency          string         `mapstructure:"currency"`
	Balance           float64        `mapstructure:"balance"`
	CommissionRate    float64        `mapstructure:"commission_rate"`
	TickInterval      time.Duration  `mapstructure:"tick_interval"`
	Seed              int64          `mapstructure:"seed"`
	Symbols           []SymbolConfig `mapstructure:"symbols"`
	Chaos             chaos.Config   `mapstructure:"chaos"`
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = Name
	}
	if c.Currency == "" {
		c.Currency = "USDT"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Gateway is a simulated venue. It streams synthetic ticks and matches
// orders against the latest tick of their symbol. While disconnected, new
// orders wait in Submitting status and are resent or rejected on reconnect.
type Gateway struct {
	*gateway.Base

	cfg   Config
	feed  *Feed
	chaos *chaos.Engine[model.Tick]
	now   func() time.Time

	historyMu sync.RWMutex
	history   history.Store

	mu         sync.Mutex
	state      *StateMachine
	pending    map[string]struct{}        // order ids waiting for a connection
	ticks      map[string]model.Tick      // ab symbol
	subscribed map[string]struct{}        // ab symbol
	positions  map[string]decimal.Decimal // ab symbol
	balance    decimal.Decimal
	connected  bool
	orderSeq   int
	tradeSeq   int
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a paper gateway publishing into sink.
func New(cfg Config, sink gateway.EventSink) (*Gateway, error) {
	cfg = cfg.withDefaults()
	feed, err := NewFeed(cfg.Name, cfg.Seed, cfg.Symbols)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		Base:       gateway.NewBase(cfg.Name, sink),
		cfg:        cfg,
		feed:       feed,
		now:        time.Now,
		state:      NewStateMachine(),
		pending:    make(map[string]struct{}),
		ticks:      make(map[string]model.Tick),
		subscribed: make(map[string]struct{}),
		positions:  make(map[string]decimal.Decimal),
		balance:    decimal.NewFromFloat(cfg.Balance),
	}
	if cfg.Chaos.Enabled() {
		g.chaos, err = chaos.NewEngine(cfg.Chaos, func(t model.Tick, d time.Duration) model.Tick {
			t.LocalTime = t.LocalTime.Add(d)
			return t
		})
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gateway) Exchanges() []enum.Exchange {
	return []enum.Exchange{enum.ExchangePaper}
}

// Connect publishes contracts and the initial account.
func (g *Gateway) Connect(ctx context.Context, _ gateway.Setting) error {
	for _, c := range g.feed.Contracts() {
		g.OnContract(c)
	}
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	g.OnStatus(true, "connected")
	g.WriteLog(enum.LogLevelInfo, "connected with %d contracts", g.Contracts().Len())
	return g.QueryAccount(ctx)
}

func (g *Gateway) Subscribe(_ context.Context, req model.SubscribeRequest) error {
	ab := req.ABSymbol()
	if _, ok := g.Contracts().Get(ab); !ok {
		return errors.Wrap(exception.ErrInvalidSymbol, ab)
	}
	g.mu.Lock()
	g.subscribed[ab] = struct{}{}
	g.mu.Unlock()
	return nil
}

// Start streams ticks for subscribed symbols until ctx is done or Close is called.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				g.Step(now)
			}
		}
	}()
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.connected = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	g.OnStatus(false, "closed")
	return nil
}

// Step emits one tick for every subscribed symbol.
func (g *Gateway) Step(now time.Time) {
	g.mu.Lock()
	symbols := make([]string, 0, len(g.subscribed))
	for ab := range g.subscribed {
		symbols = append(symbols, ab)
	}
	g.mu.Unlock()
	sort.Strings(symbols)

	for _, ab := range symbols {
		tick, ok := g.feed.Next(ab, now)
		if !ok {
			continue
		}
		for _, t := range g.chaos.Process(tick) {
			g.UpdateTick(t)
		}
	}
}

// UpdateTick publishes a tick and matches resting orders of its symbol.
func (g *Gateway) UpdateTick(tick model.Tick) {
	g.mu.Lock()
	g.ticks[tick.ABSymbol()] = tick
	g.mu.Unlock()
	g.OnTick(tick)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return
	}
	for _, o := range g.state.Active(tick.ABSymbol()) {
		if o.Status == enum.StatusSubmitting {
			continue
		}
		g.matchLocked(o, tick, false)
	}
}

// SendOrder accepts limit, market, FAK and FOK orders.
func (g *Gateway) SendOrder(_ context.Context, req model.OrderRequest) (string, error) {
	if !req.Volume.IsPositive() {
		return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "volume: %s", req.Volume)
	}
	switch req.Type {
	case enum.OrderTypeLimit, enum.OrderTypeFAK, enum.OrderTypeFOK:
		if !req.Price.IsPositive() {
			return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "price: %s", req.Price)
		}
	case enum.OrderTypeMarket:
	default:
		return "", errors.Wrap(exception.ErrOrderUnsupportedType, req.Type.String())
	}
	if _, ok := g.Contracts().Get(req.ABSymbol()); !ok {
		return "", errors.Wrap(exception.ErrOrderContractMissing, req.ABSymbol())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderSeq++
	id := strconv.Itoa(g.orderSeq)
	o, err := g.state.ApplySubmit(req.CreateOrder(id, g.Name()))
	if err != nil {
		return "", err
	}
	o.Datetime = g.now()
	g.OnOrder(o)

	if !g.connected {
		g.pending[id] = struct{}{}
		return o.ABOrderID(), nil
	}
	g.placeLocked(id)
	return o.ABOrderID(), nil
}

func (g *Gateway) CancelOrder(_ context.Context, req model.CancelRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelLocked(req.OrderID)
}

func (g *Gateway) CancelOrders(_ context.Context, reqs []model.CancelRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	for _, req := range reqs {
		if err := g.cancelLocked(req.OrderID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (g *Gateway) QueryAccount(context.Context) error {
	g.mu.Lock()
	acc := g.accountLocked()
	g.mu.Unlock()
	g.OnAccount(acc)
	return nil
}

func (g *Gateway) QueryPosition(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	symbols := make([]string, 0, len(g.positions))
	for ab := range g.positions {
		symbols = append(symbols, ab)
	}
	sort.Strings(symbols)
	for _, ab := range symbols {
		g.OnPosition(g.positionLocked(ab))
	}
	return nil
}

// SetHistory lets QueryHistory answer from store.
func (g *Gateway) SetHistory(store history.Store) {
	g.historyMu.Lock()
	defer g.historyMu.Unlock()
	g.history = store
}

// QueryHistory returns stored bars, or nothing when no store is set.
func (g *Gateway) QueryHistory(ctx context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	g.historyMu.RLock()
	store := g.history
	g.historyMu.RUnlock()
	if store == nil {
		return nil, nil
	}
	bars, err := store.LoadBars(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "load history %s", req.ABSymbol())
	}
	return bars, nil
}

// Disconnect simulates a dropped connection.
func (g *Gateway) Disconnect(reason string) {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
	g.OnStatus(false, reason)
}

// Reconnect restores the connection. Orders sent while disconnected are
// placed when ResendOnReconnect is set, otherwise rejected.
func (g *Gateway) Reconnect() {
	g.mu.Lock()
	g.connected = true
	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return orderSeqLess(ids[i], ids[j]) })
	for _, id := range ids {
		delete(g.pending, id)
		if g.cfg.ResendOnReconnect {
			g.placeLocked(id)
			continue
		}
		if o, err := g.state.ApplyReject(id); err == nil {
			g.OnOrder(o)
		}
	}
	g.mu.Unlock()
	g.OnStatus(true, "reconnected")
}

func (g *Gateway) placeLocked(id string) {
	o, err := g.state.ApplyAccept(id)
	if err != nil {
		return
	}
	g.OnOrder(o)
	tick, ok := g.ticks[o.ABSymbol()]
	if !ok {
		return
	}
	g.matchLocked(o, tick, true)
}

// matchLocked fills an order that crosses the tick in full at the better of
// its own price and the touch. FAK and FOK orders that do not cross on
// arrival are cancelled.
func (g *Gateway) matchLocked(o model.Order, tick model.Tick, arrival bool) {
	price, crossed := crossPrice(o, tick)
	if !crossed {
		if arrival && (o.Type == enum.OrderTypeFAK || o.Type == enum.OrderTypeFOK) {
			_ = g.cancelLocked(o.OrderID)
		}
		return
	}

	updated, filled, err := g.state.ApplyFill(o.OrderID, o.Volume.Sub(o.Traded))
	if err != nil || !filled.IsPositive() {
		return
	}
	g.tradeSeq++
	trade := model.Trade{
		GatewayName: g.Name(),
		Symbol:      o.Symbol,
		Exchange:    o.Exchange,
		OrderID:     o.OrderID,
		TradeID:     strconv.Itoa(g.tradeSeq),
		Direction:   o.Direction,
		Offset:      o.Offset,
		Price:       price,
		Volume:      filled,
		Commission:  price.Mul(filled).Mul(decimal.NewFromFloat(g.cfg.CommissionRate)),
		Datetime:    tick.Datetime,
	}

	ab := o.ABSymbol()
	notional := price.Mul(filled)
	if o.Direction == enum.DirectionShort {
		g.positions[ab] = g.positions[ab].Sub(filled)
		g.balance = g.balance.Add(notional)
	} else {
		g.positions[ab] = g.positions[ab].Add(filled)
		g.balance = g.balance.Sub(notional)
	}
	g.balance = g.balance.Sub(trade.Commission)

	g.OnOrder(updated)
	g.OnTrade(trade)
	g.OnPosition(g.positionLocked(ab))
	g.OnAccount(g.accountLocked())
}

func (g *Gateway) cancelLocked(id string) error {
	o, err := g.state.ApplyCancel(id)
	if err != nil {
		return err
	}
	delete(g.pending, id)
	g.OnOrder(o)
	return nil
}

func (g *Gateway) positionLocked(ab string) model.Position {
	symbol, exchange, _ := model.SplitABSymbol(ab)
	p := model.Position{
		GatewayName: g.Name(),
		Symbol:      symbol,
		Exchange:    exchange,
		Direction:   enum.DirectionNet,
		Volume:      g.positions[ab],
	}
	if tick, ok := g.ticks[ab]; ok {
		p.Price = tick.LastPrice
	}
	return p
}

func (g *Gateway) accountLocked() model.Account {
	return model.Account{
		GatewayName: g.Name(),
		AccountID:   g.cfg.Currency,
		Balance:     g.balance,
	}
}

// crossPrice returns the fill price when the order crosses the tick.
func crossPrice(o model.Order, tick model.Tick) (decimal.Decimal, bool) {
	buy := o.Direction == enum.DirectionLong
	touch := tick.LastPrice
	if buy && tick.Asks[0].Price.IsPositive() {
		touch = tick.Asks[0].Price
	}
	if !buy && tick.Bids[0].Price.IsPositive() {
		touch = tick.Bids[0].Price
	}
	if !touch.IsPositive() {
		return decimal.Zero, false
	}
	if o.Type == enum.OrderTypeMarket {
		return touch, true
	}
	if buy && o.Price.GreaterThanOrEqual(touch) {
		return touch, true
	}
	if !buy && o.Price.LessThanOrEqual(touch) {
		return touch, true
	}
	return decimal.Zero, false
}

func orderSeqLess(a, b string) bool {
	x, errX := strconv.Atoi(a)
	y, errY := strconv.Atoi(b)
	if errX != nil || errY != nil {
		return a < b
	}
	return x < y
}
