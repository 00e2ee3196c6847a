package state

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Snapshot captures the trading state at a point in time.
type Snapshot struct {
	Timestamp    int64           `json:"timestamp"`
	ActiveOrders []OrderEntry    `json:"activeOrders"`
	Positions    []PositionEntry `json:"positions"`
	Accounts     []AccountEntry  `json:"accounts"`
	NetPositions []NetEntry      `json:"netPositions,omitempty"`
}

// OrderEntry is a single active order.
type OrderEntry struct {
	ABOrderID string          `json:"abOrderId"`
	ABSymbol  string          `json:"abSymbol"`
	Direction string          `json:"direction"`
	Status    string          `json:"status"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Traded    decimal.Decimal `json:"traded"`
}

// PositionEntry is a single venue position.
type PositionEntry struct {
	ABPositionID string          `json:"abPositionId"`
	Volume       decimal.Decimal `json:"volume"`
	Price        decimal.Decimal `json:"price"`
}

// AccountEntry is a single venue account.
type AccountEntry struct {
	ABAccountID string          `json:"abAccountId"`
	Balance     decimal.Decimal `json:"balance"`
	Frozen      decimal.Decimal `json:"frozen"`
}

// NetEntry is a trade-derived net position.
type NetEntry struct {
	ABSymbol string          `json:"abSymbol"`
	Volume   decimal.Decimal `json:"volume"`
}

// Snapshot builds a snapshot of active orders, positions and accounts.
func (c *Cache) Snapshot() Snapshot {
	orders := c.GetAllActiveOrders("")
	positions := c.GetAllPositions()
	accounts := c.GetAllAccounts()

	snap := Snapshot{
		Timestamp:    time.Now().UTC().UnixNano(),
		ActiveOrders: make([]OrderEntry, 0, len(orders)),
		Positions:    make([]PositionEntry, 0, len(positions)),
		Accounts:     make([]AccountEntry, 0, len(accounts)),
	}
	for _, o := range orders {
		snap.ActiveOrders = append(snap.ActiveOrders, OrderEntry{
			ABOrderID: o.ABOrderID(),
			ABSymbol:  o.ABSymbol(),
			Direction: o.Direction.String(),
			Status:    o.Status.String(),
			Price:     o.Price,
			Volume:    o.Volume,
			Traded:    o.Traded,
		})
	}
	for _, p := range positions {
		snap.Positions = append(snap.Positions, PositionEntry{
			ABPositionID: p.ABPositionID(),
			Volume:       p.Volume,
			Price:        p.Price,
		})
	}
	for _, a := range accounts {
		snap.Accounts = append(snap.Accounts, AccountEntry{
			ABAccountID: a.ABAccountID(),
			Balance:     a.Balance,
			Frozen:      a.Frozen,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].ABPositionID < snap.Positions[j].ABPositionID
	})
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].ABAccountID < snap.Accounts[j].ABAccountID
	})
	return snap
}

// Snapshot builds the net position part of a snapshot.
func (r *PositionReducer) Snapshot() Snapshot {
	r.mu.RLock()
	entries := make([]NetEntry, 0, len(r.positions))
	for abSymbol, volume := range r.positions {
		entries = append(entries, NetEntry{ABSymbol: abSymbol, Volume: volume})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ABSymbol < entries[j].ABSymbol
	})
	return Snapshot{
		Timestamp:    time.Now().UTC().UnixNano(),
		NetPositions: entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareNetPositions checks if two snapshots carry the same net positions.
func CompareNetPositions(expected, actual Snapshot) error {
	if len(expected.NetPositions) != len(actual.NetPositions) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.NetPositions), len(actual.NetPositions))
	}
	expectedMap := make(map[string]decimal.Decimal, len(expected.NetPositions))
	for _, entry := range expected.NetPositions {
		expectedMap[entry.ABSymbol] = entry.Volume
	}
	for _, entry := range actual.NetPositions {
		want, ok := expectedMap[entry.ABSymbol]
		if !ok {
			return errors.Errorf("snapshot missing symbol: %s", entry.ABSymbol)
		}
		if !want.Equal(entry.Volume) {
			return errors.Errorf("snapshot volume mismatch: symbol=%s expected=%s actual=%s", entry.ABSymbol, want, entry.Volume)
		}
	}
	return nil
}
