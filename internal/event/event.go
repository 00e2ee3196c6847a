package event

import "time"

// Kind is the closed set of event kinds carried by the dispatcher.
type Kind uint8

const (
	_kind_beg Kind = iota
	KindTimer
	KindTick
	KindTransaction
	KindEntrust
	KindDepth
	KindTrade
	KindOrder
	KindPosition
	KindAccount
	KindContract
	KindLog
	KindException
	KindGateway
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

// Kinds lists every available kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, int(_kind_end)-1)
	for k := _kind_beg + 1; k < _kind_end; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindTick:
		return "tick"
	case KindTransaction:
		return "transaction"
	case KindEntrust:
		return "entrust"
	case KindDepth:
		return "depth"
	case KindTrade:
		return "trade"
	case KindOrder:
		return "order"
	case KindPosition:
		return "position"
	case KindAccount:
		return "account"
	case KindContract:
		return "contract"
	case KindLog:
		return "log"
	case KindException:
		return "exception"
	case KindGateway:
		return "gateway"
	default:
		return "unknown"
	}
}

// Event is an immutable envelope. Payloads are stored by value, so handlers
// receive their own copy.
type Event struct {
	Kind    Kind
	Payload any
}

func New(kind Kind, payload any) Event {
	return Event{Kind: kind, Payload: payload}
}

// PayloadOf extracts a typed payload.
func PayloadOf[T any](e Event) (T, bool) {
	v, ok := e.Payload.(T)
	return v, ok
}

// Timer is the payload of timer events.
type Timer struct {
	Time time.Time
}

// Congestion is carried by exception events when the queue depth exceeds the threshold.
type Congestion struct {
	Threshold int
	Depth     int
	Time      time.Time
}

// Exception is the payload of exception events not tied to congestion.
type Exception struct {
	Source string
	Err    error
	Time   time.Time
}
