package state

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(id string, symbol string, status enum.Status) model.Order {
	return model.Order{
		GatewayName: "PAPER",
		Symbol:      symbol,
		Exchange:    enum.ExchangePaper,
		OrderID:     id,
		Type:        enum.OrderTypeLimit,
		Direction:   enum.DirectionLong,
		Price:       decimal.NewFromInt(100),
		Volume:      decimal.NewFromInt(1),
		Status:      status,
	}
}

func put(t *testing.T, c *Cache, kind event.Kind, payload any) {
	t.Helper()
	require.NoError(t, c.HandleEvent(event.New(kind, payload)))
}

func TestCacheTerminalStatusIsSticky(t *testing.T) {
	terminals := []enum.Status{enum.StatusAllTraded, enum.StatusCancelled, enum.StatusRejected}
	for _, terminal := range terminals {
		t.Run(terminal.String(), func(t *testing.T) {
			c := NewCache()
			put(t, c, event.KindOrder, order("1", "BTCUSDT", enum.StatusNotTraded))
			put(t, c, event.KindOrder, order("1", "BTCUSDT", terminal))
			put(t, c, event.KindOrder, order("1", "BTCUSDT", enum.StatusPartTraded))
			put(t, c, event.KindOrder, order("1", "BTCUSDT", enum.StatusSubmitting))

			got, ok := c.GetOrder("PAPER.1")
			require.True(t, ok)
			if got.Status != terminal {
				t.Fatalf("status mismatch: got %s want %s", got.Status, terminal)
			}
			assert.Empty(t, c.GetAllActiveOrders(""))
			assert.Equal(t, uint64(2), c.Regressions())
		})
	}
}

func TestCacheRedeliveryIsIdempotent(t *testing.T) {
	c := NewCache()
	o := order("7", "ETHUSDT", enum.StatusAllTraded)
	for i := 0; i < 3; i++ {
		put(t, c, event.KindOrder, o)
	}
	assert.Len(t, c.GetAllOrders(), 1)
	assert.Equal(t, uint64(0), c.Regressions())
}

func TestCacheActiveIndexMatchesOrders(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []enum.Status{
		enum.StatusSubmitting,
		enum.StatusNotTraded,
		enum.StatusPartTraded,
		enum.StatusAllTraded,
		enum.StatusCancelled,
		enum.StatusRejected,
	}
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	c := NewCache()
	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("%d", rng.Intn(200))
		symbol := symbols[rng.Intn(len(symbols))]
		if prev, ok := c.GetOrder("PAPER." + id); ok {
			symbol = prev.Symbol
		}
		put(t, c, event.KindOrder, order(id, symbol, statuses[rng.Intn(len(statuses))]))

		if i%250 != 0 {
			continue
		}
		var want []string
		for _, o := range c.GetAllOrders() {
			if o.Status.IsActive() {
				want = append(want, o.ABOrderID())
			}
		}
		sort.Strings(want)
		var got []string
		for _, o := range c.GetAllActiveOrders("") {
			got = append(got, o.ABOrderID())
		}
		require.Equal(t, want, got, "step %d", i)
	}

	for _, symbol := range symbols {
		ab := model.ABSymbol(symbol, enum.ExchangePaper)
		for _, o := range c.GetAllActiveOrders(ab) {
			require.Equal(t, ab, o.ABSymbol())
			require.True(t, o.IsActive())
		}
	}
}

func TestCacheUpsertsMarketAndAccountData(t *testing.T) {
	c := NewCache()
	tick := model.Tick{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance, LastPrice: decimal.NewFromInt(1)}
	put(t, c, event.KindTick, tick)
	tick.LastPrice = decimal.NewFromInt(2)
	put(t, c, event.KindTick, tick)

	got, ok := c.GetTick("BTCUSDT.BINANCE")
	require.True(t, ok)
	assert.True(t, got.LastPrice.Equal(decimal.NewFromInt(2)))

	put(t, c, event.KindContract, model.Contract{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance, PriceTick: decimal.RequireFromString("0.01")})
	_, ok = c.GetContract("BTCUSDT.BINANCE")
	assert.True(t, ok)

	pos := model.Position{GatewayName: "BINANCE", Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance, Direction: enum.DirectionNet, Volume: decimal.NewFromInt(3)}
	put(t, c, event.KindPosition, pos)
	pos.Volume = decimal.NewFromInt(1)
	put(t, c, event.KindPosition, pos)
	gotPos, ok := c.GetPosition(pos.ABPositionID())
	require.True(t, ok)
	assert.True(t, gotPos.Volume.Equal(decimal.NewFromInt(1)))

	put(t, c, event.KindAccount, model.Account{GatewayName: "BINANCE", AccountID: "USDT", Balance: decimal.NewFromInt(10)})
	acc, ok := c.GetAccount("BINANCE.USDT")
	require.True(t, ok)
	assert.True(t, acc.Available().Equal(decimal.NewFromInt(10)))

	trade := model.Trade{GatewayName: "BINANCE", TradeID: "t1", OrderID: "1"}
	put(t, c, event.KindTrade, trade)
	_, ok = c.GetTrade("BINANCE.t1")
	assert.True(t, ok)

	put(t, c, event.KindDepth, model.Depth{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance})
	put(t, c, event.KindTransaction, model.Transaction{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance})
	put(t, c, event.KindEntrust, model.Entrust{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance})
	_, ok = c.GetDepth("BTCUSDT.BINANCE")
	assert.True(t, ok)
	_, ok = c.GetTransaction("BTCUSDT.BINANCE")
	assert.True(t, ok)
	_, ok = c.GetEntrust("BTCUSDT.BINANCE")
	assert.True(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := NewCache()
	put(t, c, event.KindOrder, order("1", "BTCUSDT", enum.StatusNotTraded))
	put(t, c, event.KindOrder, order("2", "BTCUSDT", enum.StatusCancelled))
	put(t, c, event.KindAccount, model.Account{GatewayName: "PAPER", AccountID: "USDT", Balance: decimal.NewFromInt(10)})

	snap := c.Snapshot()
	require.Len(t, snap.ActiveOrders, 1)
	assert.Equal(t, "PAPER.1", snap.ActiveOrders[0].ABOrderID)

	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.ActiveOrders[0].ABOrderID, loaded.ActiveOrders[0].ABOrderID)
	assert.True(t, loaded.Accounts[0].Balance.Equal(decimal.NewFromInt(10)))
}

func TestPositionReducer(t *testing.T) {
	r := NewPositionReducer()
	trade := model.Trade{Symbol: "BTCUSDT", Exchange: enum.ExchangeBinance, Direction: enum.DirectionLong, Volume: decimal.NewFromInt(3)}
	r.ApplyTrade(trade)
	trade.Direction = enum.DirectionShort
	trade.Volume = decimal.NewFromInt(1)
	got := r.ApplyTrade(trade)
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("position mismatch: got %s want 2", got)
	}

	snap := r.Snapshot()
	restored := NewPositionReducer()
	restored.ApplySnapshot(snap)
	require.NoError(t, CompareNetPositions(snap, restored.Snapshot()))
	assert.Equal(t, 1, restored.Count())
}
