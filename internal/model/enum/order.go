package enum

// Direction long, short, net
type Direction uint8

const (
	_direction_beg Direction = iota
	DirectionLong
	DirectionShort
	DirectionNet
	_direction_end
)

func (d Direction) IsAvailable() bool {
	return d > _direction_beg && d < _direction_end
}

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	case DirectionNet:
		return "NET"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the closing side of a direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return d
	}
}

// Offset open, close
type Offset uint8

const (
	_offset_beg Offset = iota
	OffsetNone
	OffsetOpen
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
	_offset_end
)

func (o Offset) IsAvailable() bool {
	return o > _offset_beg && o < _offset_end
}

func (o Offset) String() string {
	switch o {
	case OffsetNone:
		return "NONE"
	case OffsetOpen:
		return "OPEN"
	case OffsetClose:
		return "CLOSE"
	case OffsetCloseToday:
		return "CLOSETODAY"
	case OffsetCloseYesterday:
		return "CLOSEYESTERDAY"
	default:
		return "UNKNOWN"
	}
}

// Status submitting, not traded, part traded, all traded, cancelled, rejected
type Status uint8

const (
	_status_beg Status = iota
	StatusSubmitting
	StatusNotTraded
	StatusPartTraded
	StatusAllTraded
	StatusCancelled
	StatusRejected
	_status_end
)

func (s Status) IsAvailable() bool {
	return s > _status_beg && s < _status_end
}

// IsActive reports whether an order in this status can still trade or be cancelled.
func (s Status) IsActive() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusSubmitting:
		return "SUBMITTING"
	case StatusNotTraded:
		return "NOTTRADED"
	case StatusPartTraded:
		return "PARTTRADED"
	case StatusAllTraded:
		return "ALLTRADED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// OrderType limit, market, stop, fak, fok
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeStop
	OrderTypeFAK
	OrderTypeFOK
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeFAK:
		return "FAK"
	case OrderTypeFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}
