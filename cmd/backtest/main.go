package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abquant/internal/backtest"
	"abquant/internal/event"
	"abquant/internal/gateway/binance"
	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/ops"
	"abquant/internal/strategies/doublema"
	"abquant/internal/strategy"
	"abquant/pkg/conn"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var classes = map[string]strategy.Factory{
	doublema.ClassName: doublema.New,
}

type discard struct{}

func (discard) Put(event.Event) {}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML or JSON config")
	download := flag.Bool("download", false, "Download the backtest range from the first binance gateway into the history store first")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *download); err != nil {
		logs.Errorf("backtest failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, download bool) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	params, err := loaded.Backtest.Parameters()
	if err != nil {
		return err
	}
	factory, ok := classes[loaded.Backtest.Class]
	if !ok {
		return errors.Errorf("unknown strategy class %q", loaded.Backtest.Class)
	}

	client, err := conn.Open(loaded.History.Option)
	if err != nil {
		return errors.Wrap(err, "open history store")
	}
	defer client.Close()
	store, err := history.NewDB(client.DB())
	if err != nil {
		return err
	}

	if download {
		if err := downloadBars(ctx, loaded, params, store); err != nil {
			return err
		}
	}

	engine := backtest.NewEngine(store)
	if err := engine.SetParameters(params); err != nil {
		return err
	}
	if err := engine.AddStrategy(loaded.Backtest.Class, factory, loaded.Backtest.Setting); err != nil {
		return err
	}
	if err := engine.LoadData(ctx); err != nil {
		return err
	}
	if err := engine.Run(); err != nil {
		return err
	}

	st := engine.CalculateStatistics(engine.CalculateResult())
	logs.Infof("run %s %s [%s, %s] days=%d profit_days=%d loss_days=%d",
		engine.RunID(), params.ABSymbol, st.StartDate.Format("2006-01-02"), st.EndDate.Format("2006-01-02"),
		st.TotalDays, st.ProfitDays, st.LossDays)
	logs.Infof("capital=%.2f end_balance=%.2f net_pnl=%.2f commission=%.2f slippage=%.2f turnover=%.2f trades=%d",
		st.Capital, st.EndBalance, st.TotalNetPnl, st.TotalCommission, st.TotalSlippage, st.TotalTurnover, st.TotalTradeCount)
	logs.Infof("total_return=%.2f%% annual_return=%.2f%% max_drawdown=%.2f (%.2f%%) sharpe=%.2f",
		st.TotalReturn, st.AnnualReturn, st.MaxDrawdown, st.MaxDdPercent, st.SharpeRatio)
	return nil
}

func downloadBars(ctx context.Context, loaded ops.Loaded, params backtest.Parameters, store history.Store) error {
	var cfg *ops.GatewayConfig
	for i := range loaded.Gateways {
		if loaded.Gateways[i].Kind == ops.KindBinance {
			cfg = &loaded.Gateways[i]
			break
		}
	}
	if cfg == nil {
		return errors.New("no binance gateway configured")
	}

	g := binance.New(cfg.Binance, discard{})
	defer g.Close()
	if err := g.Connect(ctx, cfg.Setting); err != nil {
		return err
	}

	symbol, exchange, err := model.SplitABSymbol(params.ABSymbol)
	if err != nil {
		return err
	}
	end := params.End
	if end.IsZero() {
		end = time.Now()
	}
	bars, err := g.QueryHistory(ctx, model.HistoryRequest{
		Symbol:   symbol,
		Exchange: exchange,
		Interval: params.Interval,
		Start:    params.Start,
		End:      end,
	})
	if err != nil {
		return err
	}
	if err := store.SaveBars(ctx, bars); err != nil {
		return err
	}
	logs.Infof("downloaded %d bars of %s", len(bars), params.ABSymbol)
	return nil
}
