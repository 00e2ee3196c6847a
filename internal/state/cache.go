package state

import (
	"sort"
	"sync"

	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/model"

	"github.com/yanun0323/logs"
)

// Cache keeps the last known state of every market and trading entity it
// sees on the event stream. Entries are never evicted.
type Cache struct {
	mu sync.RWMutex

	ticks        map[string]model.Tick        // ab symbol
	depths       map[string]model.Depth       // ab symbol
	transactions map[string]model.Transaction // ab symbol
	entrusts     map[string]model.Entrust     // ab symbol
	contracts    map[string]model.Contract    // ab symbol
	orders       map[string]model.Order       // ab order id
	activeOrders map[string]model.Order       // ab order id, subset of orders
	trades       map[string]model.Trade       // ab trade id
	positions    map[string]model.Position    // ab position id, replaced wholesale
	accounts     map[string]model.Account     // ab account id, replaced wholesale

	regressions uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		ticks:        make(map[string]model.Tick),
		depths:       make(map[string]model.Depth),
		transactions: make(map[string]model.Transaction),
		entrusts:     make(map[string]model.Entrust),
		contracts:    make(map[string]model.Contract),
		orders:       make(map[string]model.Order),
		activeOrders: make(map[string]model.Order),
		trades:       make(map[string]model.Trade),
		positions:    make(map[string]model.Position),
		accounts:     make(map[string]model.Account),
	}
}

// Kinds lists the event kinds the cache consumes.
func (c *Cache) Kinds() []event.Kind {
	return []event.Kind{
		event.KindTick,
		event.KindDepth,
		event.KindTransaction,
		event.KindEntrust,
		event.KindOrder,
		event.KindTrade,
		event.KindPosition,
		event.KindAccount,
		event.KindContract,
	}
}

// Register subscribes the cache to every kind it consumes.
func (c *Cache) Register(d *bus.Dispatcher) {
	for _, kind := range c.Kinds() {
		d.Register(kind, c)
	}
}

// HandleEvent upserts the payload into the matching map.
func (c *Cache) HandleEvent(e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := e.Payload.(type) {
	case model.Tick:
		c.ticks[p.ABSymbol()] = p
	case model.Depth:
		c.depths[p.ABSymbol()] = p
	case model.Transaction:
		c.transactions[p.ABSymbol()] = p
	case model.Entrust:
		c.entrusts[p.ABSymbol()] = p
	case model.Contract:
		c.contracts[p.ABSymbol()] = p
	case model.Order:
		c.upsertOrder(p)
	case model.Trade:
		c.trades[p.ABTradeID()] = p
	case model.Position:
		c.positions[p.ABPositionID()] = p
	case model.Account:
		c.accounts[p.ABAccountID()] = p
	}
	return nil
}

// upsertOrder keeps terminal statuses sticky: once an order is AllTraded,
// Cancelled or Rejected, later updates for it are dropped.
func (c *Cache) upsertOrder(o model.Order) {
	id := o.ABOrderID()
	if prev, ok := c.orders[id]; ok && prev.Status.IsTerminal() {
		if prev.Status != o.Status {
			c.regressions++
			logs.Warnf("drop order update after terminal status, id: %s, status: %s -> %s", id, prev.Status, o.Status)
		}
		return
	}

	c.orders[id] = o
	if o.IsActive() {
		c.activeOrders[id] = o
	} else {
		delete(c.activeOrders, id)
	}
}

func (c *Cache) GetTick(abSymbol string) (model.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.ticks[abSymbol]
	return v, ok
}

func (c *Cache) GetDepth(abSymbol string) (model.Depth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.depths[abSymbol]
	return v, ok
}

func (c *Cache) GetTransaction(abSymbol string) (model.Transaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.transactions[abSymbol]
	return v, ok
}

func (c *Cache) GetEntrust(abSymbol string) (model.Entrust, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entrusts[abSymbol]
	return v, ok
}

func (c *Cache) GetContract(abSymbol string) (model.Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.contracts[abSymbol]
	return v, ok
}

func (c *Cache) GetOrder(abOrderID string) (model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.orders[abOrderID]
	return v, ok
}

func (c *Cache) GetTrade(abTradeID string) (model.Trade, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.trades[abTradeID]
	return v, ok
}

func (c *Cache) GetPosition(abPositionID string) (model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.positions[abPositionID]
	return v, ok
}

func (c *Cache) GetAccount(abAccountID string) (model.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.accounts[abAccountID]
	return v, ok
}

func (c *Cache) GetAllTicks() []model.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.ticks)
}

func (c *Cache) GetAllContracts() []model.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.contracts)
}

func (c *Cache) GetAllOrders() []model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.orders)
}

func (c *Cache) GetAllTrades() []model.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.trades)
}

func (c *Cache) GetAllPositions() []model.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.positions)
}

func (c *Cache) GetAllAccounts() []model.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return values(c.accounts)
}

// GetAllActiveOrders returns active orders, filtered by ab symbol unless it is empty.
func (c *Cache) GetAllActiveOrders(abSymbol string) []model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Order, 0, len(c.activeOrders))
	for _, o := range c.activeOrders {
		if abSymbol == "" || o.ABSymbol() == abSymbol {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ABOrderID() < out[j].ABOrderID()
	})
	return out
}

// Regressions counts order updates dropped because the order was already terminal.
func (c *Cache) Regressions() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.regressions
}

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
