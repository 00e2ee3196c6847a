package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/bytedance/sonic"
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

func decoder(payload string) func(any) error {
	return func(v any) error { return sonic.Unmarshal([]byte(payload), v) }
}

// venue is a fake REST endpoint. A non-zero orderCode makes placement fail.
type venue struct {
	mu        sync.Mutex
	orderCode int
	placed    []string
	cancelled []string
}

func (v *venue) handler(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case r.URL.Path == "/api/v3/exchangeInfo":
		fmt.Fprint(w, _exchangeInfoBody)
	case r.URL.Path == "/api/v3/account":
		fmt.Fprint(w, `{"balances":[{"asset":"USDT","free":"1000","locked":"0"},{"asset":"ETH","free":"0","locked":"0"}]}`)
	case r.URL.Path == "/api/v3/order" && r.Method == http.MethodPost:
		if v.orderCode != 0 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"code":%d,"msg":"rejected"}`, v.orderCode)
			return
		}
		cid := r.URL.Query().Get("newClientOrderId")
		v.placed = append(v.placed, cid)
		fmt.Fprintf(w, `{"symbol":"BTCUSDT","orderId":1,"clientOrderId":%q,"status":"NEW"}`, cid)
	case r.URL.Path == "/api/v3/order" && r.Method == http.MethodDelete:
		v.cancelled = append(v.cancelled, r.URL.Query().Get("origClientOrderId"))
		fmt.Fprint(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newConnected(t *testing.T) (*Gateway, *sink, *venue) {
	t.Helper()
	v := &venue{}
	srv := httptest.NewServer(http.HandlerFunc(v.handler))
	t.Cleanup(srv.Close)

	s := &sink{}
	g := New(Config{QueueSize: 2}, s)
	require.NoError(t, g.Connect(context.Background(), gateway.Setting{
		Key:    "k",
		Secret: "s",
		Extra:  map[string]string{"rest_url": srv.URL},
	}))
	return g, s, v
}

func limitBuy() model.OrderRequest {
	return model.OrderRequest{
		Symbol:    "BTCUSDT",
		Exchange:  enum.ExchangeBinance,
		Direction: enum.DirectionLong,
		Type:      enum.OrderTypeLimit,
		Offset:    enum.OffsetOpen,
		Price:     decimal.NewFromInt(100),
		Volume:    decimal.RequireFromString("0.5"),
		Reference: "s1",
	}
}

func TestConnectPublishesContractsAndAccount(t *testing.T) {
	g, s, _ := newConnected(t)

	_, ok := g.Contracts().Get("BTCUSDT.BINANCE")
	require.True(t, ok)

	accounts := payloads[model.Account](s)
	require.Len(t, accounts, 1, "empty balances are skipped")
	assert.Equal(t, "BINANCE.USDT", accounts[0].ABAccountID())

	statuses := payloads[model.GatewayStatus](s)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[len(statuses)-1].Connected)
}

func TestSubscribeUnknownSymbol(t *testing.T) {
	g, _, _ := newConnected(t)
	err := g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "NOPE", Exchange: enum.ExchangeBinance})
	require.ErrorIs(t, err, exception.ErrInvalidSymbol)
	require.NoError(t, g.Subscribe(context.Background(), model.SubscribeRequest{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance}))
}

func TestSendOrderPlacesThroughWorker(t *testing.T) {
	g, s, v := newConnected(t)
	ctx, cancel := context.WithCancel(context.Background())
	g.worker.Run(ctx, g.execute)
	defer func() {
		cancel()
		g.worker.Wait()
	}()

	id, err := g.SendOrder(ctx, limitBuy())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		orders := payloads[model.Order](s)
		return len(orders) == 2 && orders[1].Status == enum.StatusNotTraded
	}, time.Second, 5*time.Millisecond)

	orders := payloads[model.Order](s)
	assert.Equal(t, enum.StatusSubmitting, orders[0].Status)
	assert.Equal(t, id, orders[1].ABOrderID())
	assert.Equal(t, "s1", orders[1].Reference)

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.placed, 1)
	assert.Equal(t, "BINANCE."+v.placed[0], id)
}

func TestSendOrderRejectedByVenue(t *testing.T) {
	g, s, v := newConnected(t)
	v.orderCode = -2010

	_, err := g.SendOrder(context.Background(), limitBuy())
	require.NoError(t, err)
	task := <-g.worker.queue
	g.execute(context.Background(), task)

	orders := payloads[model.Order](s)
	require.Len(t, orders, 2)
	if orders[1].Status != enum.StatusRejected {
		t.Fatalf("status mismatch: got %s want %s", orders[1].Status, enum.StatusRejected)
	}

	logs := payloads[model.Log](s)
	require.NotEmpty(t, logs)
	assert.Equal(t, enum.LogLevelWarning, logs[len(logs)-1].Level)
}

func TestSendOrderQueueFull(t *testing.T) {
	g, s, _ := newConnected(t)
	for i := 0; i < 2; i++ {
		_, err := g.SendOrder(context.Background(), limitBuy())
		require.NoError(t, err)
	}
	_, err := g.SendOrder(context.Background(), limitBuy())
	require.ErrorIs(t, err, exception.ErrOrderQueueFull)

	orders := payloads[model.Order](s)
	assert.Equal(t, enum.StatusRejected, orders[len(orders)-1].Status)
}

func TestSendOrderValidation(t *testing.T) {
	g, _, _ := newConnected(t)
	req := limitBuy()
	req.Volume = decimal.Zero
	_, err := g.SendOrder(context.Background(), req)
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)

	req = limitBuy()
	req.Type = enum.OrderTypeStop
	_, err = g.SendOrder(context.Background(), req)
	require.ErrorIs(t, err, exception.ErrOrderUnsupportedType)

	req = limitBuy()
	req.Price = decimal.Zero
	_, err = g.SendOrder(context.Background(), req)
	require.ErrorIs(t, err, exception.ErrOrderInvalidRequest)
}

func TestCancelOrder(t *testing.T) {
	g, _, v := newConnected(t)
	err := g.CancelOrder(context.Background(), model.CancelRequest{OrderID: "missing"})
	require.ErrorIs(t, err, exception.ErrOrderUnknown)

	id, err := g.SendOrder(context.Background(), limitBuy())
	require.NoError(t, err)
	<-g.worker.queue

	clientID := id[len("BINANCE."):]
	require.NoError(t, g.CancelOrders(context.Background(), []model.CancelRequest{{OrderID: clientID, Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance}}))
	g.execute(context.Background(), <-g.worker.queue)

	v.mu.Lock()
	assert.Equal(t, []string{clientID}, v.cancelled)
	v.mu.Unlock()

	g.onExecutionReport(executionReport{ClientOrderID: clientID, Status: "CANCELED", Symbol: "BTCUSDT"})
	err = g.CancelOrder(context.Background(), model.CancelRequest{OrderID: clientID})
	require.ErrorIs(t, err, exception.ErrOrderNotActive)
}

func TestEndpoints(t *testing.T) {
	restUrl, wsUrl := endpoints(gateway.Setting{})
	assert.Equal(t, _binanceBaseUrl, restUrl)
	assert.Equal(t, _binanceBaseWsUrl, wsUrl)

	restUrl, wsUrl = endpoints(gateway.Setting{Testnet: true})
	assert.Equal(t, _binanceBaseUrlTestnet, restUrl)
	assert.Equal(t, _binanceBaseWsUrlTestnet, wsUrl)

	restUrl, _ = endpoints(gateway.Setting{Extra: map[string]string{"rest_url": "http://127.0.0.1:1"}})
	assert.Equal(t, "http://127.0.0.1:1", restUrl)
}

func TestQueryHistoryBeforeConnect(t *testing.T) {
	g := New(Config{}, &sink{})
	_, err := g.QueryHistory(context.Background(), model.HistoryRequest{})
	require.ErrorIs(t, err, exception.ErrGatewayDisconnected)
}
