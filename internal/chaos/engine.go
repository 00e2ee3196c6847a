package chaos

import (
	"math/rand"
	"time"

	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64         `mapstructure:"seed"`
	DropRate      float64       `mapstructure:"drop_rate"`
	DuplicateRate float64       `mapstructure:"duplicate_rate"`
	ReorderWindow int           `mapstructure:"reorder_window"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
}

// Enabled reports whether any rule would alter the stream.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrapf(exception.ErrInvalidArgument, "drop rate must be between 0 and 1, got %v", c.DropRate)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrapf(exception.ErrInvalidArgument, "duplicate rate must be between 0 and 1, got %v", c.DuplicateRate)
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "reorder window must be >= 1, got %d", c.ReorderWindow)
	}
	if c.MaxDelay < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "max delay must be >= 0, got %s", c.MaxDelay)
	}
	return nil
}

// Engine drops, duplicates, reorders and delays values of T. It is not safe
// for concurrent use.
type Engine[T any] struct {
	cfg     Config
	rng     *rand.Rand
	delay   func(T, time.Duration) T
	pending []T
}

// NewEngine creates a chaos engine. delay applies a sampled delay to a value
// and may be nil when MaxDelay is zero.
func NewEngine[T any](cfg Config, delay func(T, time.Duration) T) (*Engine[T], error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine[T]{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		delay: delay,
	}, nil
}

// Process applies chaos to a single value and returns the values to emit now.
func (e *Engine[T]) Process(v T) []T {
	if e == nil {
		return []T{v}
	}
	if e.shouldDrop() {
		return nil
	}
	v = e.applyDelay(v)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(v)
	}
	e.pending = append(e.pending, v)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any buffered values.
func (e *Engine[T]) Flush() []T {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]T, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

func (e *Engine[T]) take() T {
	idx := e.rng.Intn(len(e.pending))
	v := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return v
}

func (e *Engine[T]) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine[T]) applyDuplicate(v T) []T {
	out := []T{v}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, v)
	}
	return out
}

func (e *Engine[T]) applyDelay(v T) T {
	if e.cfg.MaxDelay <= 0 || e.delay == nil {
		return v
	}
	delay := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	if delay == 0 {
		return v
	}
	return e.delay(v, delay)
}
