package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/gateway/binance"
	"abquant/internal/gateway/paper"
	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/notify"
	"abquant/internal/obs"
	"abquant/internal/ops"
	"abquant/internal/recorder"
	"abquant/internal/risk"
	"abquant/internal/state"
	"abquant/internal/strategies/doublema"
	"abquant/internal/strategy"
	"abquant/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML or JSON config")
	watch := flag.Bool("watch", true, "Reload risk limits when the config file changes")
	snapshotPath := flag.String("snapshot-path", "", "State snapshot output (default: config snapshot_path)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}
	if *snapshotPath != "" {
		loaded.SnapshotPath = *snapshotPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *watch, newRuntimeConfig(loaded)); err != nil {
		logs.Errorf("trader failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, watch bool, runtime *runtimeConfig) error {
	loaded := runtime.Load()

	if loaded.Profiling.Enabled {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	dispatcher := bus.NewDispatcher(loaded.Engine, metrics)
	dispatcher.Register(event.KindLog, obs.NewLogPrinter(loaded.Level))

	cache := state.NewCache()
	cache.Register(dispatcher)

	var store history.Store
	if loaded.History.Enabled {
		client, err := conn.Open(loaded.History.Option)
		if err != nil {
			return errors.Wrap(err, "open history store")
		}
		defer client.Close()
		db, err := history.NewDB(client.DB())
		if err != nil {
			return err
		}
		store = db
	}

	gateways := gateway.NewManager()
	defer gateways.Close()
	for _, cfg := range loaded.Gateways {
		g, err := newGateway(cfg, dispatcher, store)
		if err != nil {
			return err
		}
		if err := gateways.Add(g); err != nil {
			return err
		}
	}

	riskEngine := risk.NewEngine(loaded.Risk)
	if watch {
		err := ops.Watch(configPath, func(l ops.Loaded) {
			runtime.Update(l)
			riskEngine.SetConfig(l.Risk)
		})
		if err != nil {
			logs.Warnf("config watch disabled, err: %+v", err)
		}
	}

	opts := []strategy.Option{strategy.WithRisk(riskEngine), strategy.WithMetrics(metrics)}
	if store != nil {
		opts = append(opts, strategy.WithHistory(store))
	}
	engine := strategy.NewEngine(ctx, loaded.Strategy, dispatcher, gateways, cache, opts...)
	engine.Register(dispatcher)
	if err := engine.RegisterClass(doublema.ClassName, doublema.New); err != nil {
		return err
	}

	var rec *recorder.Recorder
	if loaded.Recorder.Enabled {
		w, err := recorder.NewWriter(loaded.Recorder.Config, store)
		if err != nil {
			return err
		}
		if rec, err = recorder.New(loaded.Recorder.Config, w); err != nil {
			return err
		}
		rec.Register(dispatcher)
		if err := rec.Start(ctx); err != nil {
			return err
		}
	}

	var notifier *notify.Notifier
	if loaded.Notify.Enabled {
		client := notify.NewRedisClient(loaded.Notify.Config)
		defer client.Close()
		var err error
		if notifier, err = notify.New(loaded.Notify.Config, client); err != nil {
			return err
		}
		notifier.Register(dispatcher)
		notifier.Start(ctx)
	}

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	if err := connectGateways(ctx, gateways, loaded.Gateways); err != nil {
		shutdown(engine, dispatcher, rec, notifier, cache, metrics, loaded.SnapshotPath)
		return err
	}
	if rec != nil {
		subscribeRecorded(ctx, gateways, rec.Symbols())
	}
	if err := addStrategies(engine, loaded.Strategies); err != nil {
		shutdown(engine, dispatcher, rec, notifier, cache, metrics, loaded.SnapshotPath)
		return err
	}

	logs.Infof("trader running, gateways: %d, strategies: %d", len(gateways.All()), len(engine.Strategies()))
	<-ctx.Done()
	logs.Info("shutting down")
	shutdown(engine, dispatcher, rec, notifier, cache, metrics, runtime.Load().SnapshotPath)
	return nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.App,
		ServerAddress:   cfg.Server,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return profiler, nil
}

func newGateway(cfg ops.GatewayConfig, sink gateway.EventSink, store history.Store) (gateway.Gateway, error) {
	switch cfg.Kind {
	case ops.KindPaper:
		g, err := paper.New(cfg.Paper, sink)
		if err != nil {
			return nil, errors.Wrap(err, "new paper gateway")
		}
		if store != nil {
			g.SetHistory(store)
		}
		return g, nil
	case ops.KindBinance:
		return binance.New(cfg.Binance, sink), nil
	default:
		return nil, errors.Errorf("unknown gateway kind %q", cfg.Kind)
	}
}

// connectGateways connects every gateway concurrently, then starts them.
func connectGateways(ctx context.Context, gateways *gateway.Manager, cfgs []ops.GatewayConfig) error {
	eg, gctx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		g, err := gateways.Get(cfg.Name())
		if err != nil {
			return err
		}
		eg.Go(func() error {
			if err := g.Connect(gctx, cfg.Setting); err != nil {
				return errors.Wrapf(err, "connect %s", g.Name())
			}
			if err := g.Start(ctx); err != nil {
				return errors.Wrapf(err, "start %s", g.Name())
			}
			return nil
		})
	}
	return eg.Wait()
}

func subscribeRecorded(ctx context.Context, gateways *gateway.Manager, symbols []string) {
	for _, ab := range symbols {
		c, g, ok := gateways.FindContract(ab)
		if !ok {
			logs.Warnf("recorder symbol %s has no contract", ab)
			continue
		}
		req := model.SubscribeRequest{Symbol: c.Symbol, Exchange: c.Exchange}
		if err := g.Subscribe(ctx, req); err != nil {
			logs.Warnf("recorder subscribe %s failed, err: %+v", ab, err)
		}
	}
}

func addStrategies(engine *strategy.Engine, cfgs []ops.StrategyConfig) error {
	for _, cfg := range cfgs {
		if err := engine.AddStrategy(cfg.Class, cfg.Name, cfg.Symbols, cfg.Setting); err != nil {
			return err
		}
		if !cfg.AutoInit {
			continue
		}
		if err := engine.Init(cfg.Name); err != nil {
			logs.Errorf("init strategy %s failed, err: %+v", cfg.Name, err)
			continue
		}
		if cfg.AutoStart {
			if err := engine.Start(cfg.Name); err != nil {
				logs.Errorf("start strategy %s failed, err: %+v", cfg.Name, err)
			}
		}
	}
	return nil
}

func shutdown(engine *strategy.Engine, d *bus.Dispatcher, rec *recorder.Recorder, notifier *notify.Notifier, cache *state.Cache, metrics *obs.Metrics, snapshotPath string) {
	if err := engine.StopAll(); err != nil {
		logs.Errorf("stop strategies, err: %+v", err)
	}
	// let the dispatcher drain the cancel and stop events
	time.Sleep(200 * time.Millisecond)
	if err := d.Stop(); err != nil {
		logs.Errorf("stop dispatcher, err: %+v", err)
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			logs.Errorf("close recorder, err: %+v", err)
		}
	}
	if notifier != nil {
		_ = notifier.Close()
	}

	if snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(snapshotPath), 0o755); err != nil {
			logs.Errorf("snapshot dir, err: %+v", err)
		} else if err := state.WriteSnapshot(snapshotPath, cache.Snapshot()); err != nil {
			logs.Errorf("write snapshot, err: %+v", err)
		} else {
			logs.Infof("snapshot written: %s", snapshotPath)
		}
	}

	snap := metrics.Snapshot()
	logs.Infof("metrics: events=%v risk_reasons=%v handler_failures=%d congestions=%d crashes=%d max_depth=%d handler=%+v order=%+v",
		snap.EventCounts, snap.RiskReasonCounts, snap.HandlerFailures, snap.Congestions,
		snap.StrategyCrashes, snap.MaxQueueDepth, snap.HandlerLatency, snap.OrderLatency)
}
