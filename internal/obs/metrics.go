package obs

import (
	"sync/atomic"
	"time"

	"abquant/internal/event"
	"abquant/internal/risk"
)

const (
	maxEventKind  = int(event.KindGateway)
	maxRiskReason = int(risk.ReasonMaxActiveOrders)
)

// Metrics counts dispatcher, strategy and risk activity. A nil *Metrics is
// a valid no-op sink.
type Metrics struct {
	events        [maxEventKind + 1]atomic.Uint64
	riskReasons   [maxRiskReason + 1]atomic.Uint64
	failures      atomic.Uint64
	congestions   atomic.Uint64
	crashes       atomic.Uint64
	maxQueueDepth atomic.Uint64

	handlerLatency LatencyStats
	orderLatency   LatencyStats
}

type Snapshot struct {
	EventCounts      map[event.Kind]uint64
	RiskReasonCounts map[risk.Reason]uint64
	HandlerFailures  uint64
	Congestions      uint64
	StrategyCrashes  uint64
	MaxQueueDepth    uint64
	HandlerLatency   LatencySnapshot
	OrderLatency     LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ObserveEvent(kind event.Kind) {
	if m != nil && int(kind) >= 0 && int(kind) <= maxEventKind {
		m.events[kind].Add(1)
	}
}

// ObserveQueueDepth keeps the highest queue depth seen.
func (m *Metrics) ObserveQueueDepth(depth int) {
	if m != nil && depth > 0 {
		raise(&m.maxQueueDepth, uint64(depth))
	}
}

// ObserveHandler measures one handler invocation.
func (m *Metrics) ObserveHandler(d time.Duration) {
	if m != nil {
		m.handlerLatency.Observe(d)
	}
}

// ObserveOrder measures a gateway order round trip.
func (m *Metrics) ObserveOrder(d time.Duration) {
	if m != nil {
		m.orderLatency.Observe(d)
	}
}

func (m *Metrics) IncHandlerFailure() {
	if m != nil {
		m.failures.Add(1)
	}
}

func (m *Metrics) IncCongestion() {
	if m != nil {
		m.congestions.Add(1)
	}
}

// IncStrategyCrash records a strategy forced to stop by a callback failure.
func (m *Metrics) IncStrategyCrash() {
	if m != nil {
		m.crashes.Add(1)
	}
}

func (m *Metrics) IncRiskReason(reason risk.Reason) {
	if m != nil && int(reason) >= 0 && int(reason) <= maxRiskReason {
		m.riskReasons[reason].Add(1)
	}
}

// Snapshot copies the current values; zero counters are omitted from the maps.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		EventCounts:      make(map[event.Kind]uint64),
		RiskReasonCounts: make(map[risk.Reason]uint64),
		HandlerFailures:  m.failures.Load(),
		Congestions:      m.congestions.Load(),
		StrategyCrashes:  m.crashes.Load(),
		MaxQueueDepth:    m.maxQueueDepth.Load(),
		HandlerLatency:   m.handlerLatency.Snapshot(),
		OrderLatency:     m.orderLatency.Snapshot(),
	}
	for i := range m.events {
		if v := m.events[i].Load(); v > 0 {
			snap.EventCounts[event.Kind(i)] = v
		}
	}
	for i := range m.riskReasons {
		if v := m.riskReasons[i].Load(); v > 0 {
			snap.RiskReasonCounts[risk.Reason(i)] = v
		}
	}
	return snap
}
