package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

func streamParams(symbol string) []string {
	s := strings.ToLower(symbol)
	return []string{
		s + "@bookTicker",
		s + "@trade",
		s + "@depth5@100ms",
	}
}

// subscribeStreams sends SUBSCRIBE on the combined stream and waits for the
// ack. The request is registered so that it is replayed after a reconnect.
func (g *Gateway) subscribeStreams(ctx context.Context, wss *ws.WebSocket, params []string) error {
	id := g.requestID.Add(1)
	appendIntoRegister := true
	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: params,
				ID:     id,
			}
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// observe feeds every message of wss into handler until ctx is done.
func observe(ctx context.Context, name string, wss *ws.WebSocket, handler func(decode func(any) error) error) {
	ch, cancel := wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(func(v any) error { return m.Unmarshal(v) }); err != nil {
					logs.Warnf("[%s] handle stream message, err: %+v", name, err)
				}
			}
		}
	}()
}

// handleMarket routes one combined stream message. Subscribe acks and
// unknown streams are ignored.
func (g *Gateway) handleMarket(decode func(any) error) error {
	var env streamEnvelope
	if err := decode(&env); err != nil {
		return errors.Wrap(err, "decode envelope")
	}
	if env.Stream == "" {
		return nil
	}

	symbol, channel, ok := strings.Cut(env.Stream, "@")
	if !ok {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	switch {
	case channel == "bookTicker":
		var bt bookTicker
		if err := sonic.Unmarshal(env.Data, &bt); err != nil {
			return errors.Wrapf(err, "decode %s", env.Stream)
		}
		g.onBookTicker(symbol, bt)
	case channel == "trade":
		var tp tradePrint
		if err := sonic.Unmarshal(env.Data, &tp); err != nil {
			return errors.Wrapf(err, "decode %s", env.Stream)
		}
		g.onTradePrint(symbol, tp)
	case strings.HasPrefix(channel, "depth"):
		var pd partialDepth
		if err := sonic.Unmarshal(env.Data, &pd); err != nil {
			return errors.Wrapf(err, "decode %s", env.Stream)
		}
		g.onPartialDepth(symbol, pd)
	}
	return nil
}

// tickLocked returns the accumulated tick of symbol, creating it on first use.
func (g *Gateway) tickLocked(symbol string) *model.Tick {
	t, ok := g.ticks[symbol]
	if !ok {
		t = &model.Tick{
			GatewayName: g.Name(),
			Symbol:      symbol,
			Exchange:    enum.ExchangeBinance,
			Name:        symbol,
		}
		g.ticks[symbol] = t
	}
	return t
}

func (g *Gateway) onBookTicker(symbol string, bt bookTicker) {
	now := g.now()
	g.mdMu.Lock()
	t := g.tickLocked(symbol)
	t.Bids[0] = model.DepthLevel{Price: parseDecimal(bt.BidPrice), Volume: parseDecimal(bt.BidQty)}
	t.Asks[0] = model.DepthLevel{Price: parseDecimal(bt.AskPrice), Volume: parseDecimal(bt.AskQty)}
	t.Datetime = now
	t.LocalTime = now
	tick := *t
	g.mdMu.Unlock()

	if tick.LastPrice.IsZero() {
		return
	}
	g.OnTick(tick)
}

func (g *Gateway) onTradePrint(symbol string, tp tradePrint) {
	price := parseDecimal(tp.Price)
	volume := parseDecimal(tp.Quantity)
	ts := time.UnixMilli(tp.TradeTime)

	direction := enum.DirectionLong
	if tp.IsBuyerMarket {
		direction = enum.DirectionShort
	}
	g.OnTransaction(model.Transaction{
		GatewayName: g.Name(),
		Symbol:      symbol,
		Exchange:    enum.ExchangeBinance,
		Datetime:    ts,
		TradeID:     strconv.FormatInt(tp.TradeID, 10),
		Price:       price,
		Volume:      volume,
		Direction:   direction,
	})

	g.mdMu.Lock()
	t := g.tickLocked(symbol)
	t.LastPrice = price
	t.LastVolume = volume
	t.Volume = t.Volume.Add(volume)
	t.Turnover = t.Turnover.Add(price.Mul(volume))
	if t.OpenPrice.IsZero() {
		t.OpenPrice = price
	}
	t.HighPrice = decimal.Max(t.HighPrice, price)
	if t.LowPrice.IsZero() {
		t.LowPrice = price
	}
	t.LowPrice = decimal.Min(t.LowPrice, price)
	t.Datetime = ts
	t.LocalTime = g.now()
	tick := *t
	g.mdMu.Unlock()

	g.OnTick(tick)
}

func (g *Gateway) onPartialDepth(symbol string, pd partialDepth) {
	now := g.now()
	depth := model.Depth{
		GatewayName: g.Name(),
		Symbol:      symbol,
		Exchange:    enum.ExchangeBinance,
		Datetime:    now,
	}
	for i := 0; i < model.DepthLevels && i < len(pd.Bids); i++ {
		depth.Bids[i] = model.DepthLevel{Price: parseDecimal(pd.Bids[i][0]), Volume: parseDecimal(pd.Bids[i][1])}
	}
	for i := 0; i < model.DepthLevels && i < len(pd.Asks); i++ {
		depth.Asks[i] = model.DepthLevel{Price: parseDecimal(pd.Asks[i][0]), Volume: parseDecimal(pd.Asks[i][1])}
	}
	g.OnDepth(depth)

	g.mdMu.Lock()
	t := g.tickLocked(symbol)
	t.Bids = depth.Bids
	t.Asks = depth.Asks
	t.LocalTime = now
	g.mdMu.Unlock()
}

// handleUser routes one user data stream message.
func (g *Gateway) handleUser(decode func(any) error) error {
	var head userEvent
	if err := decode(&head); err != nil {
		return errors.Wrap(err, "decode user event")
	}

	switch head.EventType {
	case "executionReport":
		var r executionReport
		if err := decode(&r); err != nil {
			return errors.Wrap(err, "decode execution report")
		}
		g.onExecutionReport(r)
	case "outboundAccountPosition":
		var p accountPosition
		if err := decode(&p); err != nil {
			return errors.Wrap(err, "decode account position")
		}
		for _, b := range p.Balances {
			free, locked := parseDecimal(b.Free), parseDecimal(b.Locked)
			g.OnAccount(model.Account{
				GatewayName: g.Name(),
				AccountID:   b.Asset,
				Balance:     free.Add(locked),
				Frozen:      locked,
			})
		}
	case "listenKeyExpired":
		g.WriteLog(enum.LogLevelWarning, "listen key expired")
	}
	return nil
}

func (g *Gateway) onExecutionReport(r executionReport) {
	id := r.orderID()
	status, ok := statusFromBinance[r.Status]
	if !ok {
		g.WriteLog(enum.LogLevelWarning, "unknown order status %s, order: %s", r.Status, id)
		return
	}

	g.mu.Lock()
	o, tracked := g.orders[id]
	if !tracked {
		o = model.Order{
			GatewayName: g.Name(),
			Symbol:      r.Symbol,
			Exchange:    enum.ExchangeBinance,
			OrderID:     id,
			Type:        orderTypeFromBinance(r.OrderType, r.TimeInForce),
			Direction:   directionFromSide(r.Side),
			Price:       parseDecimal(r.Price),
			Volume:      parseDecimal(r.Quantity),
		}
	}
	if o.Status.IsTerminal() {
		g.mu.Unlock()
		return
	}
	o.Traded = parseDecimal(r.CumulativeQty)
	o.Status = status
	o.Datetime = time.UnixMilli(r.TransactTime)
	g.orders[id] = o
	g.mu.Unlock()

	g.OnOrder(o)

	if r.ExecutionType != "TRADE" {
		if status == enum.StatusRejected && r.RejectReason != "" && r.RejectReason != "NONE" {
			g.WriteLog(enum.LogLevelWarning, "order %s rejected: %s", id, r.RejectReason)
		}
		return
	}
	g.OnTrade(model.Trade{
		GatewayName: g.Name(),
		Symbol:      o.Symbol,
		Exchange:    o.Exchange,
		OrderID:     id,
		TradeID:     fmt.Sprintf("%s-%d", o.Symbol, r.TradeID),
		Direction:   o.Direction,
		Offset:      o.Offset,
		Price:       parseDecimal(r.LastPrice),
		Volume:      parseDecimal(r.LastQuantity),
		Commission:  parseDecimal(r.Commission),
		Datetime:    time.UnixMilli(r.TransactTime),
	})
}
