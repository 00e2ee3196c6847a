package obs

import (
	"sync/atomic"
	"time"
)

// LatencyStats aggregates duration samples. The zero value is ready to use.
type LatencyStats struct {
	count atomic.Uint64
	total atomic.Uint64
	lo    atomic.Uint64
	hi    atomic.Uint64
}

type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records one sample; negative durations are ignored.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	n := uint64(d)
	lower(&l.lo, n)
	raise(&l.hi, n)
	l.total.Add(n)
	l.count.Add(1)
}

func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.lo.Load()),
		Max:   time.Duration(l.hi.Load()),
		Avg:   time.Duration(l.total.Load() / count),
	}
}

// raise stores v into a if v is larger.
func raise(a *atomic.Uint64, v uint64) {
	for cur := a.Load(); v > cur; cur = a.Load() {
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

// lower stores v into a if v is smaller. Zero counts as unset.
func lower(a *atomic.Uint64, v uint64) {
	for cur := a.Load(); cur == 0 || v < cur; cur = a.Load() {
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}
