package strategy

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/obs"
	"abquant/internal/risk"
	"abquant/internal/state"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	btc = "BTCUSDT.PAPER"
	eth = "ETHUSDT.LOCAL"
)

type fakeGateway struct {
	*gateway.Base

	mu         sync.Mutex
	seq        int
	sent       []model.OrderRequest
	batches    [][]model.CancelRequest
	subscribed []string
	history    map[string][]model.Bar
}

func newFakeGateway(name string, sink gateway.EventSink, contracts ...model.Contract) *fakeGateway {
	g := &fakeGateway{Base: gateway.NewBase(name, sink), history: make(map[string][]model.Bar)}
	for _, c := range contracts {
		c.GatewayName = name
		g.Contracts().Set(c)
	}
	return g
}

func (g *fakeGateway) Exchanges() []enum.Exchange                     { return nil }
func (g *fakeGateway) Connect(context.Context, gateway.Setting) error { return nil }
func (g *fakeGateway) Start(context.Context) error                    { return nil }
func (g *fakeGateway) Close() error                                   { return nil }
func (g *fakeGateway) QueryAccount(context.Context) error             { return nil }
func (g *fakeGateway) QueryPosition(context.Context) error            { return nil }
func (g *fakeGateway) CancelOrder(ctx context.Context, req model.CancelRequest) error {
	return g.CancelOrders(ctx, []model.CancelRequest{req})
}

func (g *fakeGateway) Subscribe(_ context.Context, req model.SubscribeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribed = append(g.subscribed, req.ABSymbol())
	return nil
}

func (g *fakeGateway) SendOrder(_ context.Context, req model.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.sent = append(g.sent, req)
	return model.JoinID(g.Name(), strconv.Itoa(g.seq)), nil
}

func (g *fakeGateway) CancelOrders(_ context.Context, reqs []model.CancelRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches = append(g.batches, reqs)
	return nil
}

func (g *fakeGateway) QueryHistory(_ context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history[req.ABSymbol()], nil
}

type probe struct {
	*Template

	ticks  int
	trades int
	orders []model.Order
	bars   []map[string]model.Bar

	onInit func(p *probe) error
	onTick func(p *probe) error
}

func (p *probe) OnInit() error {
	if p.onInit != nil {
		return p.onInit(p)
	}
	return nil
}

func (p *probe) OnTick(model.Tick) error {
	p.ticks++
	if p.onTick != nil {
		return p.onTick(p)
	}
	return nil
}

func (p *probe) OnTrade(model.Trade) error           { p.trades++; return nil }
func (p *probe) OnOrder(o model.Order) error         { p.orders = append(p.orders, o); return nil }
func (p *probe) OnBars(b map[string]model.Bar) error { p.bars = append(p.bars, b); return nil }

type harness struct {
	engine  *Engine
	cache   *state.Cache
	metrics *obs.Metrics
	paper   *fakeGateway
	local   *fakeGateway
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	d := bus.NewDispatcher(bus.Config{}, nil)
	h := &harness{cache: state.NewCache(), metrics: obs.NewMetrics()}
	h.paper = newFakeGateway("PAPER", d, model.Contract{
		Symbol:      "BTCUSDT",
		Exchange:    enum.ExchangePaper,
		PriceTick:   decimal.RequireFromString("0.01"),
		MinVolume:   decimal.RequireFromString("0.001"),
		HistoryData: true,
	})
	h.local = newFakeGateway("LOCAL", d, model.Contract{
		Symbol:    "ETHUSDT",
		Exchange:  enum.ExchangeLocal,
		PriceTick: decimal.RequireFromString("0.1"),
		MinVolume: decimal.RequireFromString("0.01"),
	})
	gws := gateway.NewManager()
	require.NoError(t, gws.Add(h.paper))
	require.NoError(t, gws.Add(h.local))

	opts = append([]Option{WithMetrics(h.metrics)}, opts...)
	h.engine = NewEngine(context.Background(), Config{}, d, gws, h.cache, opts...)
	return h
}

func (h *harness) add(t *testing.T, name string, symbols ...string) *probe {
	t.Helper()
	var p *probe
	require.NoError(t, h.engine.RegisterClass("probe-"+name, func(tp *Template, _ map[string]any) (Strategy, error) {
		p = &probe{Template: tp}
		return p, nil
	}))
	require.NoError(t, h.engine.AddStrategy("probe-"+name, name, symbols, nil))
	return p
}

func (h *harness) deliver(t *testing.T, kind event.Kind, payload any) {
	t.Helper()
	e := event.New(kind, payload)
	require.NoError(t, h.cache.HandleEvent(e))
	require.NoError(t, h.engine.HandleEvent(e))
}

func (h *harness) running(t *testing.T, name string, symbols ...string) *probe {
	t.Helper()
	p := h.add(t, name, symbols...)
	require.NoError(t, h.engine.Init(name))
	require.NoError(t, h.engine.Start(name))
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEngineTradeDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	ids, err := p.Buy(btc, dec("100"), dec("2"))
	require.NoError(t, err)
	require.Equal(t, []string{"PAPER.1"}, ids)

	trade := model.Trade{
		GatewayName: "PAPER",
		Symbol:      "BTCUSDT",
		Exchange:    enum.ExchangePaper,
		OrderID:     "1",
		TradeID:     "t1",
		Direction:   enum.DirectionLong,
		Price:       dec("100"),
		Volume:      dec("2"),
	}
	for i := 0; i < 3; i++ {
		h.deliver(t, event.KindTrade, trade)
	}

	assert.Equal(t, 1, p.trades)
	if got := p.GetPos(btc); !got.Equal(dec("2")) {
		t.Fatalf("position mismatch: got %s want 2", got)
	}
}

func TestEngineIgnoresTradesOfUnknownOrders(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)
	h.deliver(t, event.KindTrade, model.Trade{GatewayName: "PAPER", Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, OrderID: "99", TradeID: "x", Volume: dec("1")})
	assert.Equal(t, 0, p.trades)
	assert.True(t, p.GetPos(btc).IsZero())
}

func TestEngineCrashIsolation(t *testing.T) {
	h := newHarness(t)
	a := h.running(t, "a", btc)
	b := h.running(t, "b", btc)
	a.onTick = func(*probe) error { panic("boom") }

	h.deliver(t, event.KindTick, model.Tick{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: time.Now(), LastPrice: dec("1")})

	assert.False(t, a.Inited())
	assert.False(t, a.Trading())
	assert.True(t, b.Inited())
	assert.True(t, b.Trading())
	assert.Equal(t, 1, b.ticks)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().StrategyCrashes)

	h.deliver(t, event.KindTick, model.Tick{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: time.Now(), LastPrice: dec("2")})
	assert.Equal(t, 1, a.ticks, "crashed strategy receives no more events")
	assert.Equal(t, 2, b.ticks)

	require.NoError(t, h.engine.Init("a"), "crashed strategy can be re-inited")
}

func TestEngineSendOrderNoopWhenNotTrading(t *testing.T) {
	h := newHarness(t)
	p := h.add(t, "a", btc)
	require.NoError(t, h.engine.Init("a"))

	ids, err := p.Buy(btc, dec("100"), dec("1"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, h.paper.sent)
}

func TestEngineSendOrderRoundsToContract(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	_, err := p.Short(btc, dec("100.123"), dec("0.12345"))
	require.NoError(t, err)
	require.Len(t, h.paper.sent, 1)
	req := h.paper.sent[0]
	if !req.Price.Equal(dec("100.12")) || !req.Volume.Equal(dec("0.123")) {
		t.Fatalf("rounding mismatch: got %s@%s want 0.123@100.12", req.Volume, req.Price)
	}
	assert.Equal(t, enum.DirectionShort, req.Direction)
	assert.Equal(t, enum.OffsetOpen, req.Offset)
	assert.Equal(t, "a", req.Reference)

	_, err = p.Buy(btc, dec("100"), dec("0.0001"))
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)

	_, err = p.Buy("DOGEUSDT.PAPER", dec("1"), dec("1"))
	require.ErrorIs(t, err, exception.ErrOrderContractMissing)
}

func TestEngineSendOrderRiskRejected(t *testing.T) {
	h := newHarness(t, WithRisk(risk.NewEngine(risk.Config{MaxOrderVolume: 1})))
	p := h.running(t, "a", btc)

	_, err := p.Buy(btc, dec("100"), dec("2"))
	require.ErrorIs(t, err, exception.ErrRiskRejected)
	assert.Empty(t, h.paper.sent)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().RiskReasonCounts[risk.ReasonMaxVolume])
}

func TestEngineCancelAllGroupsPerGateway(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc, eth)

	for i := 0; i < 2; i++ {
		_, err := p.Buy(btc, dec("100"), dec("1"))
		require.NoError(t, err)
	}
	_, err := p.Buy(eth, dec("10"), dec("1"))
	require.NoError(t, err)

	filled := model.OrderRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}.CreateOrder("2", "PAPER")
	filled.Status = enum.StatusAllTraded
	h.deliver(t, event.KindOrder, filled)
	assert.Equal(t, []string{"LOCAL.1", "PAPER.1"}, h.engine.ActiveOrderIDs("a"))
	require.Len(t, p.orders, 1)

	require.NoError(t, p.CancelAll())
	require.Len(t, h.paper.batches, 1)
	assert.Len(t, h.paper.batches[0], 1)
	assert.Equal(t, "1", h.paper.batches[0][0].OrderID)
	require.Len(t, h.local.batches, 1)
	assert.Len(t, h.local.batches[0], 1)
}

func TestEngineCancelOrderErrors(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	require.ErrorIs(t, p.CancelOrder("PAPER.404"), exception.ErrOrderUnknown)

	ids, err := p.Buy(btc, dec("100"), dec("1"))
	require.NoError(t, err)
	cancelled := model.OrderRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}.CreateOrder("1", "PAPER")
	cancelled.Status = enum.StatusCancelled
	h.deliver(t, event.KindOrder, cancelled)
	require.ErrorIs(t, p.CancelOrder(ids[0]), exception.ErrOrderNotActive)
}

func TestEngineLifecycle(t *testing.T) {
	h := newHarness(t)
	p := h.add(t, "a", btc)

	require.ErrorIs(t, h.engine.Start("a"), exception.ErrStrategyNotInited)
	require.NoError(t, h.engine.Init("a"))
	require.ErrorIs(t, h.engine.Init("a"), exception.ErrStrategyAlreadyInited)
	assert.Equal(t, []string{btc}, h.paper.subscribed)

	require.NoError(t, h.engine.Start("a"))
	require.ErrorIs(t, h.engine.Start("a"), exception.ErrStrategyTrading)
	require.ErrorIs(t, h.engine.RemoveStrategy("a"), exception.ErrStrategyTrading)

	_, err := p.Buy(btc, dec("100"), dec("1"))
	require.NoError(t, err)
	require.NoError(t, h.engine.Stop("a"))
	assert.False(t, p.Trading())
	assert.True(t, p.Inited())
	require.Len(t, h.paper.batches, 1, "stop cancels active orders")

	require.NoError(t, h.engine.Stop("a"))
	require.NoError(t, h.engine.Start("a"), "restart after stop")
	require.NoError(t, h.engine.StopAll())
	require.NoError(t, h.engine.RemoveStrategy("a"))
	assert.Empty(t, h.engine.Strategies())
}

func TestEngineAddStrategyValidation(t *testing.T) {
	h := newHarness(t)
	h.add(t, "a", btc)

	require.ErrorIs(t, h.engine.AddStrategy("missing", "x", []string{btc}, nil), exception.ErrStrategyClassNotFound)
	require.ErrorIs(t, h.engine.AddStrategy("probe-a", "a", []string{btc}, nil), exception.ErrStrategyDuplicate)
	require.ErrorIs(t, h.engine.AddStrategy("probe-a", "y", nil, nil), exception.ErrStrategyNoSymbols)
	require.ErrorIs(t, h.engine.AddStrategy("probe-a", "z", []string{"BTCUSDT"}, nil), exception.ErrInvalidSymbol)
	require.ErrorIs(t, h.engine.RegisterClass("probe-a", func(*Template, map[string]any) (Strategy, error) { return nil, nil }), exception.ErrStrategyClassDuplicate)
	assert.Equal(t, []string{"probe-a"}, h.engine.Classes())
}

func TestEngineLoadBarsOnlyDuringInit(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	h.paper.history[btc] = []model.Bar{
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: base, Close: dec("1")},
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: base.Add(2 * time.Minute), Close: dec("3")},
	}

	p := h.add(t, "a", btc)
	p.onInit = func(p *probe) error {
		require.False(t, p.Trading())
		return p.LoadBars(1, enum.IntervalMinute)
	}
	require.NoError(t, h.engine.Init("a"))
	require.Len(t, p.bars, 2)
	assert.True(t, p.bars[1][btc].Close.Equal(dec("3")))

	require.ErrorIs(t, p.LoadBars(1, enum.IntervalMinute), exception.ErrStrategyLoadBarsMisuse)
}

func TestEngineLoadBarsForwardFillsAcrossSymbols(t *testing.T) {
	h := newHarness(t, WithHistory(stubStore{
		eth: {
			{Symbol: "ETHUSDT", Exchange: enum.ExchangeLocal, Datetime: time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC), Close: dec("10")},
		},
	}))
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	h.paper.history[btc] = []model.Bar{
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: base, Close: dec("1")},
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: base.Add(2 * time.Minute), Close: dec("3")},
	}

	p := h.add(t, "a", btc, eth)
	p.onInit = func(p *probe) error { return p.LoadBars(1, enum.IntervalMinute) }
	require.NoError(t, h.engine.Init("a"))

	require.Len(t, p.bars, 3)
	assert.Len(t, p.bars[0], 1)
	assert.True(t, p.bars[1][btc].Close.Equal(dec("1")), "btc forward-filled at 10:01")
	assert.True(t, p.bars[2][eth].Close.Equal(dec("10")), "eth forward-filled at 10:02")
}

func TestEngineTicksBuildBars(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	base := time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC)
	for i, price := range []string{"1", "2", "3"} {
		h.deliver(t, event.KindTick, model.Tick{
			Symbol:    "BTCUSDT",
			Exchange:  enum.ExchangePaper,
			Datetime:  base.Add(time.Duration(i) * 40 * time.Second),
			LastPrice: dec(price),
		})
	}

	require.Len(t, p.bars, 1)
	b := p.bars[0][btc]
	assert.Equal(t, base.Truncate(time.Minute), b.Datetime)
	assert.True(t, b.Close.Equal(dec("2")))
}

type stubStore map[string][]model.Bar

func (s stubStore) SaveBars(context.Context, []model.Bar) error { return nil }

func (s stubStore) LoadBars(_ context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	return s[req.ABSymbol()], nil
}

func TestEngineStopCancelsOrdersOfCrashedStrategy(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	ids, err := p.Buy(btc, dec("100"), dec("1"))
	require.NoError(t, err)
	p.onTick = func(*probe) error { panic("boom") }
	h.deliver(t, event.KindTick, model.Tick{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Datetime: time.Now(), LastPrice: dec("100")})
	require.False(t, p.Trading())

	require.NoError(t, h.engine.Stop("a"))
	require.Len(t, h.paper.batches, 1, "leftover orders are cancelled")
	assert.Equal(t, "1", h.paper.batches[0][0].OrderID)
	assert.Equal(t, ids, h.engine.ActiveOrderIDs("a"), "removed once the venue confirms")

	cancelled := model.OrderRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}.CreateOrder("1", "PAPER")
	cancelled.Status = enum.StatusCancelled
	h.deliver(t, event.KindOrder, cancelled)
	require.NoError(t, h.engine.StopAll())
	assert.Len(t, h.paper.batches, 1, "nothing left to cancel")
}

func TestEngineTerminalOrderDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	p := h.running(t, "a", btc)

	_, err := p.Buy(btc, dec("100"), dec("1"))
	require.NoError(t, err)

	order := model.OrderRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}.CreateOrder("1", "PAPER")
	for _, status := range []enum.Status{enum.StatusNotTraded, enum.StatusCancelled, enum.StatusCancelled, enum.StatusNotTraded} {
		order.Status = status
		h.deliver(t, event.KindOrder, order)
	}

	require.Len(t, p.orders, 2)
	assert.Equal(t, enum.StatusNotTraded, p.orders[0].Status)
	assert.Equal(t, enum.StatusCancelled, p.orders[1].Status)
	assert.Empty(t, h.engine.ActiveOrderIDs("a"))
}

func TestEngineConcurrentInitRunsOnInitOnce(t *testing.T) {
	h := newHarness(t)
	p := h.add(t, "a", btc)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	p.onInit = func(*probe) error {
		calls++
		close(entered)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- h.engine.Init("a") }()
	<-entered

	require.ErrorIs(t, h.engine.Init("a"), exception.ErrStrategyAlreadyInited)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
	assert.True(t, p.Inited())
}

func TestEngineRegisterCheckedClass(t *testing.T) {
	h := newHarness(t)
	factory := func(tp *Template, _ map[string]any) (Strategy, error) { return &probe{Template: tp}, nil }

	writePackage := func(body string) string {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module demo\n\ngo 1.22\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.go"), []byte("package demo\n\ntype S struct{}\n\nfunc (s *S) LoadBars(int) {}\n\n"+body), 0o644))
		return dir
	}

	err := h.engine.RegisterCheckedClass("bad", factory, writePackage("func (s *S) OnTick() { s.LoadBars(1) }\n"))
	require.ErrorIs(t, err, exception.ErrStrategyLoadBarsMisuse)
	assert.Empty(t, h.engine.Classes())

	require.NoError(t, h.engine.RegisterCheckedClass("good", factory, writePackage("func (s *S) OnInit() { s.LoadBars(1) }\n")))
	assert.Equal(t, []string{"good"}, h.engine.Classes())
}
