package gateway

import (
	"context"
	"sync"
	"testing"

	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"

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
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestBaseEmitsEvents(t *testing.T) {
	s := &sink{}
	b := NewBase("PAPER", s)

	b.OnTick(model.Tick{Symbol: "BTCUSDT"})
	b.OnOrder(model.Order{OrderID: "1"})
	b.OnContract(model.Contract{Symbol: "BTCUSDT", Exchange: enum.ExchangePaper, PriceTick: decimal.RequireFromString("0.01")})
	b.WriteLog(enum.LogLevelWarning, "reconnect in %d", 3)
	b.OnStatus(true, "connected")

	kinds := make([]event.Kind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []event.Kind{event.KindTick, event.KindOrder, event.KindContract, event.KindLog, event.KindGateway}, kinds)

	l, ok := event.PayloadOf[model.Log](s.events[3])
	require.True(t, ok)
	assert.Equal(t, "reconnect in 3", l.Msg)
	assert.Equal(t, "PAPER", l.GatewayName)

	_, ok = b.Contracts().Get("BTCUSDT.PAPER")
	assert.True(t, ok)
}

func TestContractRegistryConcurrentAccess(t *testing.T) {
	r := NewContractRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Set(model.Contract{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Get("BTCUSDT.BINANCE")
				r.All()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())

	c, ok := r.BySymbol("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, enum.ExchangeBinance, c.Exchange)
}

type stubGateway struct {
	*Base
	closed int
}

func (g *stubGateway) Exchanges() []enum.Exchange                              { return []enum.Exchange{enum.ExchangePaper} }
func (g *stubGateway) Connect(context.Context, Setting) error                  { return nil }
func (g *stubGateway) Subscribe(context.Context, model.SubscribeRequest) error { return nil }
func (g *stubGateway) Start(context.Context) error                             { return nil }
func (g *stubGateway) Close() error                                            { g.closed++; return nil }
func (g *stubGateway) SendOrder(context.Context, model.OrderRequest) (string, error) {
	return "", nil
}
func (g *stubGateway) CancelOrder(context.Context, model.CancelRequest) error    { return nil }
func (g *stubGateway) CancelOrders(context.Context, []model.CancelRequest) error { return nil }
func (g *stubGateway) QueryAccount(context.Context) error                        { return nil }
func (g *stubGateway) QueryPosition(context.Context) error                       { return nil }
func (g *stubGateway) QueryHistory(context.Context, model.HistoryRequest) ([]model.Bar, error) {
	return nil, nil
}

func contractOf(symbol string) model.Contract {
	return model.Contract{Symbol: symbol, Exchange: enum.ExchangePaper, PriceTick: decimal.RequireFromString("0.01")}
}
