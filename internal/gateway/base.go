package gateway

import (
	"fmt"
	"time"

	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/yanun0323/logs"
)

// Base implements the event side of a gateway: it wraps payloads into events
// and keeps the gateway's contract registry.
type Base struct {
	name      string
	sink      EventSink
	contracts *ContractRegistry
}

func NewBase(name string, sink EventSink) *Base {
	return &Base{
		name:      name,
		sink:      sink,
		contracts: NewContractRegistry(),
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Contracts() *ContractRegistry { return b.contracts }

func (b *Base) put(kind event.Kind, payload any) {
	if b.sink == nil {
		return
	}
	b.sink.Put(event.New(kind, payload))
}

func (b *Base) OnTick(tick model.Tick)                { b.put(event.KindTick, tick) }
func (b *Base) OnDepth(depth model.Depth)             { b.put(event.KindDepth, depth) }
func (b *Base) OnTransaction(tx model.Transaction)    { b.put(event.KindTransaction, tx) }
func (b *Base) OnEntrust(entrust model.Entrust)       { b.put(event.KindEntrust, entrust) }
func (b *Base) OnOrder(order model.Order)             { b.put(event.KindOrder, order) }
func (b *Base) OnTrade(trade model.Trade)             { b.put(event.KindTrade, trade) }
func (b *Base) OnPosition(position model.Position)    { b.put(event.KindPosition, position) }
func (b *Base) OnAccount(account model.Account)       { b.put(event.KindAccount, account) }
func (b *Base) OnException(exception event.Exception) { b.put(event.KindException, exception) }

// OnContract registers the contract and publishes it.
func (b *Base) OnContract(contract model.Contract) {
	b.contracts.Set(contract)
	b.put(event.KindContract, contract)
}

// OnStatus publishes a connectivity change.
func (b *Base) OnStatus(connected bool, reason string) {
	b.put(event.KindGateway, model.GatewayStatus{
		GatewayName: b.name,
		Connected:   connected,
		Reason:      reason,
		Time:        time.Now(),
	})
}

// WriteLog logs locally and publishes a log event.
func (b *Base) WriteLog(level enum.LogLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case enum.LogLevelError:
		logs.Errorf("[%s] %s", b.name, msg)
	case enum.LogLevelWarning:
		logs.Warnf("[%s] %s", b.name, msg)
	default:
		logs.Infof("[%s] %s", b.name, msg)
	}
	b.put(event.KindLog, model.Log{
		Level:       level,
		Msg:         msg,
		GatewayName: b.name,
		Time:        time.Now(),
	})
}
