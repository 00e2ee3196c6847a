package paper

import (
	"context"
	"sync"
	"testing"
	"time"

	"abquant/internal/chaos"
	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *sink) Put(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func payloads[T any](s *sink) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, e := range s.events {
		if v, ok := event.PayloadOf[T](e); ok {
			out = append(out, v)
		}
	}
	return out
}

func lastOrder(t *testing.T, s *sink) model.Order {
	t.Helper()
	orders := payloads[model.Order](s)
	require.NotEmpty(t, orders)
	return orders[len(orders)-1]
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

const btc = "BTCUSDT.PAPER"

func newConnected(t *testing.T, cfg Config) (*Gateway, *sink) {
	t.Helper()
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []SymbolConfig{{Symbol: "BTCUSDT", BasePrice: 100, PriceTick: 0.5, MinVolume: 0.01}}
	}
	if cfg.Seed == 0 {
		cfg.Seed = 11
	}
	s := &sink{}
	g, err := New(cfg, s)
	require.NoError(t, err)
	require.NoError(t, g.Connect(context.Background(), gateway.Setting{}))
	return g, s
}

func book(bid, ask string) model.Tick {
	tick := model.Tick{
		GatewayName: Name,
		Symbol:      "BTCUSDT",
		Exchange:    enum.ExchangePaper,
		Datetime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		LastPrice:   dec(bid),
	}
	tick.Bids[0] = model.DepthLevel{Price: dec(bid), Volume: dec("1")}
	tick.Asks[0] = model.DepthLevel{Price: dec(ask), Volume: dec("1")}
	return tick
}

func limit(direction enum.Direction, price, volume string) model.OrderRequest {
	return model.OrderRequest{
		Symbol:    "BTCUSDT",
		Exchange:  enum.ExchangePaper,
		Direction: direction,
		Type:      enum.OrderTypeLimit,
		Offset:    enum.OffsetOpen,
		Price:     dec(price),
		Volume:    dec(volume),
	}
}

func TestGatewayConnectPublishesContractsAndAccount(t *testing.T) {
	g, s := newConnected(t, Config{Balance: 1000})

	contracts := payloads[model.Contract](s)
	require.Len(t, contracts, 1)
	assert.Equal(t, btc, contracts[0].ABSymbol())
	assert.True(t, contracts[0].PriceTick.Equal(dec("0.5")))

	accounts := payloads[model.Account](s)
	require.Len(t, accounts, 1)
	assert.Equal(t, "PAPER.USDT", accounts[0].ABAccountID())
	assert.True(t, accounts[0].Balance.Equal(dec("1000")))

	status := payloads[model.GatewayStatus](s)
	require.Len(t, status, 1)
	assert.True(t, status[0].Connected)

	require.ErrorIs(t, g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "ETHUSDT", Exchange: enum.ExchangePaper}), exception.ErrInvalidSymbol)
}

func TestGatewayLimitOrderFillsWhenCrossed(t *testing.T) {
	g, s := newConnected(t, Config{Balance: 1000, CommissionRate: 0.001})
	ctx := context.Background()

	id, err := g.SendOrder(ctx, limit(enum.DirectionLong, "100", "2"))
	require.NoError(t, err)
	assert.Equal(t, "PAPER.1", id)
	assert.Equal(t, enum.StatusNotTraded, lastOrder(t, s).Status)

	g.UpdateTick(book("100.5", "101"))
	assert.Equal(t, enum.StatusNotTraded, lastOrder(t, s).Status, "ask above limit")

	g.UpdateTick(book("99", "99.5"))
	o := lastOrder(t, s)
	assert.Equal(t, enum.StatusAllTraded, o.Status)
	assert.True(t, o.Traded.Equal(dec("2")))

	trades := payloads[model.Trade](s)
	require.Len(t, trades, 1)
	if !trades[0].Price.Equal(dec("99.5")) {
		t.Fatalf("fill price mismatch: got %s want 99.5", trades[0].Price)
	}
	assert.True(t, trades[0].Commission.Equal(dec("0.199")))

	positions := payloads[model.Position](s)
	require.NotEmpty(t, positions)
	assert.True(t, positions[len(positions)-1].Volume.Equal(dec("2")))

	accounts := payloads[model.Account](s)
	assert.True(t, accounts[len(accounts)-1].Balance.Equal(dec("800.801")))
}

func TestGatewayMarketAndFAK(t *testing.T) {
	g, s := newConnected(t, Config{})
	ctx := context.Background()
	g.UpdateTick(book("100", "100.5"))

	req := limit(enum.DirectionShort, "0", "1")
	req.Type = enum.OrderTypeMarket
	_, err := g.SendOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusAllTraded, lastOrder(t, s).Status)
	assert.True(t, payloads[model.Trade](s)[0].Price.Equal(dec("100")))

	fak := limit(enum.DirectionLong, "99", "1")
	fak.Type = enum.OrderTypeFAK
	_, err = g.SendOrder(ctx, fak)
	require.NoError(t, err)
	assert.Equal(t, enum.StatusCancelled, lastOrder(t, s).Status)

	stop := limit(enum.DirectionLong, "99", "1")
	stop.Type = enum.OrderTypeStop
	_, err = g.SendOrder(ctx, stop)
	require.ErrorIs(t, err, exception.ErrOrderUnsupportedType)

	_, err = g.SendOrder(ctx, limit(enum.DirectionLong, "99", "0"))
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)
}

func TestGatewayCancel(t *testing.T) {
	g, s := newConnected(t, Config{})
	ctx := context.Background()

	require.ErrorIs(t, g.CancelOrder(ctx, model.CancelRequest{OrderID: "9"}), exception.ErrOrderUnknown)

	_, err := g.SendOrder(ctx, limit(enum.DirectionLong, "90", "1"))
	require.NoError(t, err)
	_, err = g.SendOrder(ctx, limit(enum.DirectionLong, "91", "1"))
	require.NoError(t, err)

	require.NoError(t, g.CancelOrders(ctx, []model.CancelRequest{{OrderID: "1"}, {OrderID: "2"}}))
	assert.Equal(t, enum.StatusCancelled, lastOrder(t, s).Status)
	require.ErrorIs(t, g.CancelOrder(ctx, model.CancelRequest{OrderID: "1"}), exception.ErrOrderNotActive)
}

func TestGatewayReconnect(t *testing.T) {
	cases := []struct {
		name   string
		resend bool
		want   enum.Status
	}{
		{name: "resend", resend: true, want: enum.StatusNotTraded},
		{name: "reject", resend: false, want: enum.StatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, s := newConnected(t, Config{ResendOnReconnect: tc.resend})
			g.Disconnect("test")

			_, err := g.SendOrder(context.Background(), limit(enum.DirectionLong, "90", "1"))
			require.NoError(t, err)
			assert.Equal(t, enum.StatusSubmitting, lastOrder(t, s).Status)

			g.UpdateTick(book("80", "80.5"))
			assert.Equal(t, enum.StatusSubmitting, lastOrder(t, s).Status, "no matching while disconnected")

			g.Reconnect()
			orders := payloads[model.Order](s)
			got := orders[len(orders)-1].Status
			if tc.resend {
				got = orders[len(orders)-2].Status
				assert.Equal(t, enum.StatusAllTraded, lastOrder(t, s).Status, "resent order matches the last tick")
			}
			if got != tc.want {
				t.Fatalf("status mismatch: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestGatewayStepOnlySubscribed(t *testing.T) {
	g, s := newConnected(t, Config{Symbols: []SymbolConfig{
		{Symbol: "BTCUSDT", BasePrice: 100, PriceTick: 0.5, MinVolume: 0.01},
		{Symbol: "ETHUSDT", BasePrice: 10, PriceTick: 0.01, MinVolume: 0.1},
	}})
	require.NoError(t, g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "ETHUSDT", Exchange: enum.ExchangePaper}))

	now := time.Now()
	for i := 0; i < 5; i++ {
		g.Step(now.Add(time.Duration(i) * time.Second))
	}
	ticks := payloads[model.Tick](s)
	require.Len(t, ticks, 5)
	for _, tick := range ticks {
		assert.Equal(t, "ETHUSDT.PAPER", tick.ABSymbol())
		assert.True(t, tick.Asks[0].Price.GreaterThan(tick.Bids[0].Price))
	}
	assert.True(t, ticks[4].Volume.GreaterThan(ticks[0].Volume))
}

func TestGatewayChaosDropsTicks(t *testing.T) {
	g, s := newConnected(t, Config{Chaos: chaos.Config{Seed: 1, DropRate: 1}})
	require.NoError(t, g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}))
	g.Step(time.Now())
	assert.Empty(t, payloads[model.Tick](s))
}

func TestGatewayStartClose(t *testing.T) {
	g, s := newConnected(t, Config{TickInterval: 5 * time.Millisecond})
	require.NoError(t, g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper}))
	require.NoError(t, g.Start(context.Background()))
	require.Eventually(t, func() bool { return len(payloads[model.Tick](s)) >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, g.Close())

	n := len(payloads[model.Tick](s))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(payloads[model.Tick](s)))
}

func TestNewRejectsBadSymbols(t *testing.T) {
	_, err := New(Config{}, nil)
	require.ErrorIs(t, err, exception.ErrGatewayInvalidSetting)
	_, err = New(Config{Symbols: []SymbolConfig{{Symbol: "X", BasePrice: 1}}}, nil)
	require.ErrorIs(t, err, exception.ErrGatewayInvalidSetting)
}

func TestStateMachinePartialFill(t *testing.T) {
	m := NewStateMachine()
	_, err := m.ApplySubmit(limit(enum.DirectionLong, "1", "3").CreateOrder("1", Name))
	require.NoError(t, err)
	_, err = m.ApplySubmit(limit(enum.DirectionLong, "1", "3").CreateOrder("1", Name))
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)

	o, filled, err := m.ApplyFill("1", dec("1"))
	require.NoError(t, err)
	assert.Equal(t, enum.StatusPartTraded, o.Status)
	assert.True(t, filled.Equal(dec("1")))

	o, filled, err = m.ApplyFill("1", dec("5"))
	require.NoError(t, err)
	assert.Equal(t, enum.StatusAllTraded, o.Status)
	assert.True(t, filled.Equal(dec("2")), "capped at remaining volume")

	_, _, err = m.ApplyFill("1", dec("1"))
	require.ErrorIs(t, err, exception.ErrOrderNotActive)
	assert.Empty(t, m.Active(""))
}

type barStore struct{ bars []model.Bar }

func (s *barStore) SaveBars(context.Context, []model.Bar) error { return nil }

func (s *barStore) LoadBars(_ context.Context, req model.HistoryRequest) ([]model.Bar, error) {
	var out []model.Bar
	for _, b := range s.bars {
		if b.ABSymbol() == req.ABSymbol() && b.Interval == req.Interval {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestGatewayQueryHistory(t *testing.T) {
	g, _ := newConnected(t, Config{})
	req := model.HistoryRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Interval: enum.IntervalMinute}

	bars, err := g.QueryHistory(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, bars)

	g.SetHistory(&barStore{bars: []model.Bar{
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Interval: enum.IntervalMinute, Close: dec("100")},
		{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, Interval: enum.IntervalHour, Close: dec("101")},
	}})
	bars, err = g.QueryHistory(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(dec("100")))
}
