package gateway

import (
	"sync"

	"abquant/internal/model"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Manager owns the gateways of a process and resolves the gateway that
// trades a given symbol.
type Manager struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	names    []string
}

func NewManager() *Manager {
	return &Manager{gateways: make(map[string]Gateway)}
}

// Add registers a gateway under its name.
func (m *Manager) Add(g Gateway) error {
	if g == nil {
		return exception.ErrNilInstance
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gateways[g.Name()]; ok {
		return errors.Wrap(exception.ErrGatewayDuplicate, g.Name())
	}
	m.gateways[g.Name()] = g
	m.names = append(m.names, g.Name())
	return nil
}

func (m *Manager) Get(name string) (Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gateways[name]
	if !ok {
		return nil, errors.Wrap(exception.ErrGatewayNotFound, name)
	}
	return g, nil
}

// All returns gateways in registration order.
func (m *Manager) All() []Gateway {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Gateway, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.gateways[name])
	}
	return out
}

// FindContract returns the contract for ab symbol and the gateway that owns it.
func (m *Manager) FindContract(abSymbol string) (model.Contract, Gateway, bool) {
	for _, g := range m.All() {
		if c, ok := g.Contracts().Get(abSymbol); ok {
			return c, g, true
		}
	}
	return model.Contract{}, nil, false
}

// Close closes every gateway and returns the first error.
func (m *Manager) Close() error {
	var first error
	for _, g := range m.All() {
		if err := g.Close(); err != nil {
			logs.Errorf("close gateway %s, err: %+v", g.Name(), err)
			if first == nil {
				first = errors.Wrapf(err, "close gateway %s", g.Name())
			}
		}
	}
	return first
}
