package gateway

import (
	"sort"
	"sync"

	"abquant/internal/model"
)

// ContractRegistry holds one gateway's contracts by ab symbol. It is written
// by gateway goroutines and read by the runner, so access is locked.
type ContractRegistry struct {
	mu        sync.RWMutex
	contracts map[string]model.Contract
}

func NewContractRegistry() *ContractRegistry {
	return &ContractRegistry{contracts: make(map[string]model.Contract)}
}

func (r *ContractRegistry) Set(c model.Contract) {
	r.mu.Lock()
	r.contracts[c.ABSymbol()] = c
	r.mu.Unlock()
}

func (r *ContractRegistry) Get(abSymbol string) (model.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[abSymbol]
	return c, ok
}

// BySymbol looks a contract up by venue symbol, ignoring the exchange.
func (r *ContractRegistry) BySymbol(symbol string) (model.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contracts {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return model.Contract{}, false
}

func (r *ContractRegistry) All() []model.Contract {
	r.mu.RLock()
	out := make([]model.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ABSymbol() < out[j].ABSymbol() })
	return out
}

func (r *ContractRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
