package ops

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const _sample = `
log_level: warning
snapshot_path: /tmp/abquant/positions.json
engine:
  interval: 500ms
  event_threshold: 2000
strategy_engine:
  request_timeout: 3s
gateways:
  - kind: paper
    paper:
      balance: 100000
      commission_rate: 0.0005
      tick_interval: 200ms
      symbols:
        - symbol: BTCUSDT
          base_price: 42000
          price_tick: 0.1
          min_volume: 0.001
  - kind: binance
    setting:
      key: k
      secret: s
      testnet: true
      retry:
        max_retries: 3
        backoff:
          min: 100ms
    binance:
      workers: 2
strategies:
  - class: DoubleMa
    name: btc_ma
    symbols: [BTCUSDT.PAPER]
    auto_init: true
    auto_start: true
    setting:
      fast_window: 5
      slow_window: 20
risk:
  max_order_volume: 10
  order_rate_limit: 5
  order_rate_window: 1s
history:
  enabled: true
  driver: sqlite
  path: ":memory:"
recorder:
  enabled: true
  symbols: [BTCUSDT.PAPER]
notify:
  enabled: true
  addr: 127.0.0.1:6379
backtest:
  class: DoubleMa
  symbol: BTCUSDT.BINANCE
  interval: 1h
  start: "2024-01-01"
  end: "2024-02-01T00:00:00Z"
  rate: 0.001
  capital: 100000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	loaded, err := Load(writeConfig(t, _sample))
	require.NoError(t, err)

	assert.Equal(t, enum.LogLevelWarning, loaded.Level)
	assert.Equal(t, 500*time.Millisecond, loaded.Engine.Interval)
	assert.Equal(t, 2000, loaded.Engine.Threshold)
	assert.Equal(t, 3*time.Second, loaded.Strategy.RequestTimeout)
	assert.Equal(t, 1, loaded.Strategy.InitWorkers, "default kept")

	require.Len(t, loaded.Gateways, 2)
	assert.Equal(t, "PAPER", loaded.Gateways[0].Name())
	assert.Equal(t, 200*time.Millisecond, loaded.Gateways[0].Paper.TickInterval)
	require.Len(t, loaded.Gateways[0].Paper.Symbols, 1)
	assert.InDelta(t, 42000, loaded.Gateways[0].Paper.Symbols[0].BasePrice, 1e-9)
	assert.Equal(t, "BINANCE", loaded.Gateways[1].Name())
	assert.True(t, loaded.Gateways[1].Setting.Testnet)
	assert.Equal(t, 3, loaded.Gateways[1].Setting.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, loaded.Gateways[1].Setting.Retry.Backoff.Min)
	assert.Equal(t, 2, loaded.Gateways[1].Binance.Workers)

	require.Len(t, loaded.Strategies, 1)
	assert.Equal(t, "btc_ma", loaded.Strategies[0].Name)
	assert.EqualValues(t, 5, loaded.Strategies[0].Setting["fast_window"])

	assert.Equal(t, time.Second, loaded.Risk.OrderRateWindow)
	assert.True(t, loaded.History.Enabled)
	assert.Equal(t, ":memory:", loaded.History.Path)
	assert.Equal(t, []string{"BTCUSDT.PAPER"}, loaded.Recorder.Symbols)
	assert.Equal(t, 5*time.Second, loaded.Recorder.FlushInterval)
	assert.Equal(t, "abquant.alert", loaded.Notify.Channel)

	p, err := loaded.Backtest.Parameters()
	require.NoError(t, err)
	assert.Equal(t, enum.IntervalHour, p.Interval)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ABQUANT_RISK_KILL_SWITCH", "true")
	t.Setenv("ABQUANT_LOG_LEVEL", "error")

	loaded, err := Load(writeConfig(t, _sample))
	require.NoError(t, err)
	assert.True(t, loaded.Risk.KillSwitch)
	assert.Equal(t, enum.LogLevelError, loaded.Level)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, enum.LogLevelInfo, loaded.Level)
	assert.Equal(t, "sqlite", loaded.History.Driver)
	assert.Empty(t, loaded.Gateways)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, exception.ErrConfigRead)

	cases := map[string]string{
		"log level":       "log_level: loud\n",
		"gateway kind":    "gateways:\n  - kind: ftx\n",
		"duplicate":       "gateways:\n  - kind: paper\n  - kind: paper\n",
		"strategy symbol": "strategies:\n  - {class: A, name: a, symbols: [BTCUSDT]}\n",
		"auto start":      "strategies:\n  - {class: A, name: a, symbols: [BTCUSDT.PAPER], auto_start: true}\n",
		"recorder":        "recorder:\n  enabled: true\n  symbols: [BTCUSDT.PAPER]\n",
		"notify":          "notify:\n  enabled: true\n",
		"chaos":           "gateways:\n  - kind: paper\n    paper:\n      chaos: {drop_rate: 2, reorder_window: 1}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.ErrorIs(t, err, exception.ErrConfigInvalid)
		})
	}
}

func TestBacktestParametersErrors(t *testing.T) {
	_, err := BacktestConfig{Symbol: "BTCUSDT.BINANCE", Interval: "5m"}.Parameters()
	require.ErrorIs(t, err, exception.ErrConfigInvalid)
	_, err = BacktestConfig{Symbol: "BTCUSDT.BINANCE", Start: "yesterday"}.Parameters()
	require.ErrorIs(t, err, exception.ErrConfigInvalid)
	_, err = BacktestConfig{Symbol: "BTCUSDT"}.Parameters()
	require.ErrorIs(t, err, exception.ErrConfigInvalid)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "risk:\n  max_order_volume: 1\n")
	var latest atomic.Value
	require.NoError(t, Watch(path, func(l Loaded) { latest.Store(l) }))

	require.NoError(t, os.WriteFile(path, []byte("risk:\n  max_order_volume: 7\n"), 0o644))
	require.Eventually(t, func() bool {
		l, ok := latest.Load().(Loaded)
		return ok && l.Risk.MaxOrderVolume == 7
	}, 5*time.Second, 20*time.Millisecond)
}
