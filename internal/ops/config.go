package ops

import (
	"strings"
	"time"

	"abquant/internal/backtest"
	"abquant/internal/bus"
	"abquant/internal/gateway"
	"abquant/internal/gateway/binance"
	"abquant/internal/gateway/paper"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/notify"
	"abquant/internal/recorder"
	"abquant/internal/risk"
	"abquant/internal/strategy"
	"abquant/pkg/conn"
	"abquant/pkg/exception"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// EnvPrefix prefixes environment overrides, e.g. ABQUANT_RISK_KILL_SWITCH.
const EnvPrefix = "ABQUANT"

const (
	KindPaper   = "paper"
	KindBinance = "binance"
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	LogLevel     string           `mapstructure:"log_level"`
	SnapshotPath string           `mapstructure:"snapshot_path"`
	Engine       bus.Config       `mapstructure:"engine"`
	Strategy     strategy.Config  `mapstructure:"strategy_engine"`
	Gateways     []GatewayConfig  `mapstructure:"gateways"`
	Strategies   []StrategyConfig `mapstructure:"strategies"`
	Risk         risk.Config      `mapstructure:"risk"`
	History      HistoryConfig    `mapstructure:"history"`
	Notify       NotifyConfig     `mapstructure:"notify"`
	Recorder     RecorderConfig   `mapstructure:"recorder"`
	Backtest     BacktestConfig   `mapstructure:"backtest"`
	Profiling    ProfilingConfig  `mapstructure:"profiling"`
}

// GatewayConfig selects a gateway implementation by Kind.
type GatewayConfig struct {
	Kind    string          `mapstructure:"kind"`
	Setting gateway.Setting `mapstructure:"setting"`
	Paper   paper.Config    `mapstructure:"paper"`
	Binance binance.Config  `mapstructure:"binance"`
}

// Name returns the configured gateway name, or the default for its kind.
func (g GatewayConfig) Name() string {
	switch g.Kind {
	case KindPaper:
		if g.Paper.Name != "" {
			return g.Paper.Name
		}
		return paper.Name
	case KindBinance:
		if g.Binance.Name != "" {
			return g.Binance.Name
		}
		return binance.Name
	default:
		return ""
	}
}

type StrategyConfig struct {
	Class     string         `mapstructure:"class"`
	Name      string         `mapstructure:"name"`
	Symbols   []string       `mapstructure:"symbols"`
	Setting   map[string]any `mapstructure:"setting"`
	AutoInit  bool           `mapstructure:"auto_init"`
	AutoStart bool           `mapstructure:"auto_start"`
}

type HistoryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	conn.Option `mapstructure:",squash"`
}

type NotifyConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	notify.Config `mapstructure:",squash"`
}

type RecorderConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	recorder.Config `mapstructure:",squash"`
}

// BacktestConfig keeps times as "2006-01-02" or RFC3339 strings.
type BacktestConfig struct {
	Class      string         `mapstructure:"class"`
	Setting    map[string]any `mapstructure:"setting"`
	Symbol     string         `mapstructure:"symbol"`
	Interval   string         `mapstructure:"interval"`
	Start      string         `mapstructure:"start"`
	End        string         `mapstructure:"end"`
	Rate       float64        `mapstructure:"rate"`
	Slippage   float64        `mapstructure:"slippage"`
	Size       float64        `mapstructure:"size"`
	PriceTick  float64        `mapstructure:"price_tick"`
	Capital    float64        `mapstructure:"capital"`
	AnnualDays int            `mapstructure:"annual_days"`
	RiskFree   float64        `mapstructure:"risk_free"`
}

// Parameters resolves the backtest run parameters.
func (b BacktestConfig) Parameters() (backtest.Parameters, error) {
	p := backtest.Parameters{
		ABSymbol:   b.Symbol,
		Interval:   enum.IntervalMinute,
		Rate:       b.Rate,
		Slippage:   b.Slippage,
		Size:       b.Size,
		PriceTick:  b.PriceTick,
		Capital:    b.Capital,
		AnnualDays: b.AnnualDays,
		RiskFree:   b.RiskFree,
	}
	if b.Interval != "" {
		interval, ok := enum.ParseInterval(b.Interval)
		if !ok {
			return p, errors.Wrapf(exception.ErrConfigInvalid, "backtest interval %q", b.Interval)
		}
		p.Interval = interval
	}

	var err error
	if p.Start, err = parseTime(b.Start); err != nil {
		return p, errors.Wrapf(exception.ErrConfigInvalid, "backtest start %q", b.Start)
	}
	if p.End, err = parseTime(b.End); err != nil {
		return p, errors.Wrapf(exception.ErrConfigInvalid, "backtest end %q", b.End)
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrap(exception.ErrConfigInvalid, err.Error())
	}
	return p, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Server  string `mapstructure:"server_address"`
	App     string `mapstructure:"application_name"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig
	Level enum.LogLevel
}

// Load reads a YAML or JSON config file with environment overrides. An
// empty path loads defaults and environment only.
func Load(path string) (Loaded, error) {
	v, err := read(path)
	if err != nil {
		return Loaded{}, err
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("engine.interval", time.Second)
	v.SetDefault("engine.event_threshold", 10_000)
	v.SetDefault("strategy_engine.request_timeout", 10*time.Second)
	v.SetDefault("strategy_engine.init_workers", 1)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "abquant.db")
	v.SetDefault("notify.channel", "abquant.alert")
	v.SetDefault("recorder.flush_interval", 5*time.Second)
	v.SetDefault("profiling.application_name", "abquant.trader")
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"risk.kill_switch", "notify.enabled", "notify.addr", "notify.password",
		"history.enabled", "history.host", "history.password", "profiling.enabled",
		"profiling.server_address", "snapshot_path",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

func read(path string) (*viper.Viper, error) {
	v := newViper()
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(exception.ErrConfigRead, "read %s, err: %+v", path, err)
	}
	return v, nil
}

func decode(v *viper.Viper) (Loaded, error) {
	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrConfigRead, "decode, err: %+v", err)
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	level, ok := enum.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return Loaded{}, errors.Wrapf(exception.ErrConfigInvalid, "log level %q", cfg.LogLevel)
	}
	if err := validateGateways(cfg.Gateways); err != nil {
		return Loaded{}, err
	}
	if err := validateStrategies(cfg.Strategies); err != nil {
		return Loaded{}, err
	}
	if cfg.Recorder.Enabled {
		if !cfg.History.Enabled {
			return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "recorder needs the history store")
		}
		if err := cfg.Recorder.Config.Validate(); err != nil {
			return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, err.Error())
		}
	}
	if cfg.Notify.Enabled && cfg.Notify.Addr == "" {
		return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "notify addr is empty")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.Server == "" {
		return Loaded{}, errors.Wrap(exception.ErrConfigInvalid, "profiling server address is empty")
	}
	return Loaded{FileConfig: cfg, Level: level}, nil
}

func validateGateways(gateways []GatewayConfig) error {
	seen := make(map[string]struct{}, len(gateways))
	for i, g := range gateways {
		name := g.Name()
		if name == "" {
			return errors.Wrapf(exception.ErrConfigInvalid, "gateway %d: unknown kind %q", i, g.Kind)
		}
		if _, ok := seen[name]; ok {
			return errors.Wrapf(exception.ErrConfigInvalid, "duplicate gateway %s", name)
		}
		seen[name] = struct{}{}
		if g.Kind == KindPaper && g.Paper.Chaos.Enabled() {
			if err := g.Paper.Chaos.Validate(); err != nil {
				return errors.Wrapf(exception.ErrConfigInvalid, "gateway %s chaos, err: %+v", name, err)
			}
		}
	}
	return nil
}

func validateStrategies(strategies []StrategyConfig) error {
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		if s.Class == "" || s.Name == "" {
			return errors.Wrapf(exception.ErrConfigInvalid, "strategy needs class and name: %+v", s)
		}
		if _, ok := seen[s.Name]; ok {
			return errors.Wrapf(exception.ErrConfigInvalid, "duplicate strategy %s", s.Name)
		}
		seen[s.Name] = struct{}{}
		if len(s.Symbols) == 0 {
			return errors.Wrapf(exception.ErrConfigInvalid, "strategy %s has no symbols", s.Name)
		}
		for _, ab := range s.Symbols {
			if _, _, err := model.SplitABSymbol(ab); err != nil {
				return errors.Wrapf(exception.ErrConfigInvalid, "strategy %s symbol %q", s.Name, ab)
			}
		}
		if s.AutoStart && !s.AutoInit {
			return errors.Wrapf(exception.ErrConfigInvalid, "strategy %s auto_start requires auto_init", s.Name)
		}
	}
	return nil
}

// Watch reloads path on every change and hands valid configs to update.
// Invalid reloads are logged and skipped.
func Watch(path string, update func(Loaded)) error {
	v, err := read(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		loaded, err := decode(v)
		if err != nil {
			logs.Errorf("config reload %s failed, err: %+v", e.Name, err)
			return
		}
		update(loaded)
		logs.Infof("config reloaded: %s", e.Name)
	})
	v.WatchConfig()
	return nil
}
