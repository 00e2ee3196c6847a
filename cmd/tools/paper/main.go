package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abquant/internal/bus"
	"abquant/internal/chaos"
	"abquant/internal/event"
	"abquant/internal/gateway"
	"abquant/internal/gateway/paper"
	"abquant/internal/model/enum"
	"abquant/internal/obs"
	"abquant/internal/risk"
	"abquant/internal/state"
	"abquant/internal/strategies/doublema"
	"abquant/internal/strategy"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// paper runs the dual moving average strategy against the simulated venue on
// a virtual clock, optionally with chaos applied to the tick stream.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "Paper symbol")
	basePrice := flag.Float64("base-price", 100, "Starting price")
	priceTick := flag.Float64("price-tick", 0.01, "Price tick")
	balance := flag.Float64("balance", 100_000, "Starting balance")
	steps := flag.Int("steps", 3600, "Number of ticks to simulate")
	step := flag.Duration("step", time.Second, "Virtual time between ticks")
	pace := flag.Duration("pace", time.Millisecond, "Wall time between ticks")
	seed := flag.Int64("seed", 1, "RNG seed for prices and chaos")
	fast := flag.Int("fast", 5, "Fast window")
	slow := flag.Int("slow", 20, "Slow window")
	dropRate := flag.Float64("drop-rate", 0, "Tick drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Tick duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "Tick reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "Max local receive delay")
	maxPosition := flag.Float64("max-position", 0, "Risk max position (0=off)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := paper.Config{
		Balance:        *balance,
		CommissionRate: 0.001,
		Seed:           *seed,
		Symbols:        []paper.SymbolConfig{{Symbol: *symbol, BasePrice: *basePrice, PriceTick: *priceTick, MinVolume: *priceTick}},
		Chaos: chaos.Config{
			Seed:          *seed,
			DropRate:      *dropRate,
			DuplicateRate: *dupRate,
			ReorderWindow: *reorderWindow,
			MaxDelay:      *maxDelay,
		},
	}
	if cfg.Chaos.Enabled() {
		if err := cfg.Chaos.Validate(); err != nil {
			logs.Errorf("invalid chaos flags, err: %+v", err)
			os.Exit(1)
		}
	}
	setting := map[string]any{"fast_window": *fast, "slow_window": *slow, "init_days": 0}

	if err := run(ctx, cfg, setting, risk.Config{MaxPosition: *maxPosition}, *steps, *step, *pace); err != nil {
		logs.Errorf("paper session failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg paper.Config, setting map[string]any, riskCfg risk.Config, steps int, step, pace time.Duration) error {
	metrics := obs.NewMetrics()
	d := bus.NewDispatcher(bus.Config{Interval: time.Second}, metrics)
	d.Register(event.KindLog, obs.NewLogPrinter(enum.LogLevelInfo))
	cache := state.NewCache()
	cache.Register(d)

	gw, err := paper.New(cfg, d)
	if err != nil {
		return err
	}
	gateways := gateway.NewManager()
	if err := gateways.Add(gw); err != nil {
		return err
	}
	defer gateways.Close()

	engine := strategy.NewEngine(ctx, strategy.Config{}, d, gateways, cache,
		strategy.WithRisk(risk.NewEngine(riskCfg)), strategy.WithMetrics(metrics))
	engine.Register(d)
	if err := engine.RegisterClass(doublema.ClassName, doublema.New); err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	if err := gw.Connect(ctx, gateway.Setting{}); err != nil {
		return errors.Wrap(err, "connect paper")
	}

	ab := cfg.Symbols[0].Symbol + "." + string(enum.ExchangePaper)
	const name = "paper_ma"
	if err := engine.AddStrategy(doublema.ClassName, name, []string{ab}, setting); err != nil {
		return err
	}
	if err := engine.Init(name); err != nil {
		return err
	}
	if err := engine.Start(name); err != nil {
		return err
	}

	now := time.Now().Truncate(time.Minute)
	for i := 0; i < steps && ctx.Err() == nil; i++ {
		gw.Step(now)
		now = now.Add(step)
		time.Sleep(pace)
	}

	if err := engine.StopAll(); err != nil {
		logs.Errorf("stop strategies, err: %+v", err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = d.Stop()

	trades := cache.GetAllTrades()
	fmt.Printf("ticks=%d trades=%d active_orders=%d\n", steps, len(trades), len(cache.GetAllActiveOrders("")))
	for _, p := range cache.GetAllPositions() {
		fmt.Printf("position %s %s volume=%s price=%s\n", p.ABSymbol(), p.Direction, p.Volume, p.Price)
	}
	for _, a := range cache.GetAllAccounts() {
		fmt.Printf("account %s balance=%s available=%s\n", a.ABAccountID(), a.Balance, a.Available())
	}
	snap := metrics.Snapshot()
	fmt.Printf("events=%v congestions=%d handler=%+v\n", snap.EventCounts, snap.Congestions, snap.HandlerLatency)
	return nil
}
