package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"abquant/pkg/backoff"
	"abquant/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() backoff.Policy {
	return backoff.Policy{
		Backoff:    backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond, Factor: 2},
		MaxRetries: 100,
		Window:     time.Minute,
		Cooldown:   time.Millisecond,
	}
}

func TestReconnectRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Reconnect(context.Background(), "TEST", backoff.NewRetrier(fastPolicy()), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReconnectStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Reconnect(ctx, "TEST", backoff.NewRetrier(fastPolicy()), func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("dial refused")
	})
	require.ErrorIs(t, err, exception.ErrGatewayRetryExhausted)
}

func TestManagerFindContract(t *testing.T) {
	m := NewManager()
	require.ErrorIs(t, m.Add(nil), exception.ErrNilInstance)

	a := &stubGateway{Base: NewBase("A", nil)}
	b := &stubGateway{Base: NewBase("B", nil)}
	b.Contracts().Set(contractOf("ETHUSDT"))
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))
	require.ErrorIs(t, m.Add(&stubGateway{Base: NewBase("A", nil)}), exception.ErrGatewayDuplicate)

	c, g, ok := m.FindContract("ETHUSDT.PAPER")
	require.True(t, ok)
	assert.Equal(t, "B", g.Name())
	assert.Equal(t, "ETHUSDT", c.Symbol)

	_, _, ok = m.FindContract("BTCUSDT.PAPER")
	assert.False(t, ok)

	_, err := m.Get("C")
	require.ErrorIs(t, err, exception.ErrGatewayNotFound)
	assert.Len(t, m.All(), 2)
	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.closed)
}
