package chaos

import (
	"testing"
	"time"

	"abquant/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnginePassThrough(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 1}, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, []int{i}, e.Process(i))
	}
	assert.Empty(t, e.Flush())

	var nilEngine *Engine[int]
	assert.Equal(t, []int{3}, nilEngine.Process(3))
}

func TestEngineDropAndDuplicate(t *testing.T) {
	drop, err := NewEngine[int](Config{Seed: 1, DropRate: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, drop.Process(1))

	dup, err := NewEngine[int](Config{Seed: 1, DuplicateRate: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 7}, dup.Process(7))
}

func TestEngineReorderKeepsEveryValue(t *testing.T) {
	e, err := NewEngine[int](Config{Seed: 7, ReorderWindow: 4}, nil)
	require.NoError(t, err)

	var out []int
	for i := 0; i < 20; i++ {
		out = append(out, e.Process(i)...)
	}
	out = append(out, e.Flush()...)
	assert.ElementsMatch(t, func() []int {
		s := make([]int, 20)
		for i := range s {
			s[i] = i
		}
		return s
	}(), out)
}

func TestEngineDelay(t *testing.T) {
	e, err := NewEngine(Config{Seed: 3, MaxDelay: time.Second}, func(ts time.Time, d time.Duration) time.Time {
		return ts.Add(d)
	})
	require.NoError(t, err)

	base := time.Unix(0, 0)
	for i := 0; i < 50; i++ {
		got := e.Process(base)[0]
		if got.Before(base) || got.Sub(base) > time.Second {
			t.Fatalf("delay out of range: got %s", got.Sub(base))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	_, err := NewEngine[int](Config{DropRate: 2}, nil)
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	_, err = NewEngine[int](Config{MaxDelay: -1}, nil)
	require.ErrorIs(t, err, exception.ErrInvalidArgument)
	assert.False(t, Config{ReorderWindow: 1}.Enabled())
	assert.True(t, Config{DropRate: 0.1}.Enabled())
}
