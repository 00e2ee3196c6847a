package paper

import (
	"sort"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// StateMachine tracks the lifecycle of the gateway's own orders.
type StateMachine struct {
	orders map[string]*model.Order // order id
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*model.Order)}
}

// Order returns a copy of the current order state.
func (m *StateMachine) Order(id string) (model.Order, bool) {
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Active returns active orders of an ab symbol sorted by order id, or of all
// symbols when abSymbol is empty.
func (m *StateMachine) Active(abSymbol string) []model.Order {
	out := make([]model.Order, 0)
	for _, o := range m.orders {
		if o.IsActive() && (abSymbol == "" || o.ABSymbol() == abSymbol) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// ApplySubmit registers a new order in Submitting status.
func (m *StateMachine) ApplySubmit(o model.Order) (model.Order, error) {
	if o.OrderID == "" {
		return model.Order{}, errors.Wrap(exception.ErrOrderInvalidRequest, "empty order id")
	}
	if _, ok := m.orders[o.OrderID]; ok {
		return model.Order{}, errors.Wrapf(exception.ErrOrderInvalidRequest, "duplicate order id: %s", o.OrderID)
	}
	o.Status = enum.StatusSubmitting
	o.Traded = decimal.Zero
	m.orders[o.OrderID] = &o
	return o, nil
}

// ApplyAccept moves a submitting order onto the book.
func (m *StateMachine) ApplyAccept(id string) (model.Order, error) {
	o, err := m.active(id)
	if err != nil {
		return model.Order{}, err
	}
	if o.Status == enum.StatusSubmitting {
		o.Status = enum.StatusNotTraded
	}
	return *o, nil
}

// ApplyFill adds traded volume, capped at the remaining volume.
func (m *StateMachine) ApplyFill(id string, volume decimal.Decimal) (model.Order, decimal.Decimal, error) {
	o, err := m.active(id)
	if err != nil {
		return model.Order{}, decimal.Zero, err
	}
	if !volume.IsPositive() {
		return *o, decimal.Zero, errors.Wrapf(exception.ErrInvalidArgument, "fill volume: %s", volume)
	}
	leaves := o.Volume.Sub(o.Traded)
	filled := decimal.Min(volume, leaves)
	o.Traded = o.Traded.Add(filled)
	if o.Traded.GreaterThanOrEqual(o.Volume) {
		o.Status = enum.StatusAllTraded
	} else {
		o.Status = enum.StatusPartTraded
	}
	return *o, filled, nil
}

// ApplyCancel cancels an active order.
func (m *StateMachine) ApplyCancel(id string) (model.Order, error) {
	o, err := m.active(id)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = enum.StatusCancelled
	return *o, nil
}

// ApplyReject rejects an active order.
func (m *StateMachine) ApplyReject(id string) (model.Order, error) {
	o, err := m.active(id)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = enum.StatusRejected
	return *o, nil
}

func (m *StateMachine) active(id string) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.Wrap(exception.ErrOrderUnknown, id)
	}
	if !o.IsActive() {
		return o, errors.Wrapf(exception.ErrOrderNotActive, "id: %s, status: %s", id, o.Status)
	}
	return o, nil
}
