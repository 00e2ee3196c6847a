package state

import (
	"sync"

	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/shopspring/decimal"
)

// PositionReducer tracks net positions per ab symbol from trades.
type PositionReducer struct {
	mu        sync.RWMutex
	positions map[string]decimal.Decimal
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[string]decimal.Decimal)}
}

// ApplyTrade updates the position and returns the new net volume.
func (r *PositionReducer) ApplyTrade(trade model.Trade) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := trade.ABSymbol()
	current := r.positions[key]
	var next decimal.Decimal
	switch trade.Direction {
	case enum.DirectionLong:
		next = current.Add(trade.Volume)
	case enum.DirectionShort:
		next = current.Sub(trade.Volume)
	default:
		next = current
	}
	r.positions[key] = next
	return next
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.positions)
	for _, entry := range snapshot.NetPositions {
		r.positions[entry.ABSymbol] = entry.Volume
	}
}

// Position returns the current net volume for an ab symbol.
func (r *PositionReducer) Position(abSymbol string) decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[abSymbol]
}

// Set overrides the net volume for an ab symbol.
func (r *PositionReducer) Set(abSymbol string, volume decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[abSymbol] = volume
}

// Count returns the number of tracked symbols.
func (r *PositionReducer) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}
