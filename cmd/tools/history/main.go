package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/ops"
	"abquant/pkg/conn"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// history inspects the bar store: "overview" lists stored series, "dump"
// prints bars of one series and "delete" removes one series.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML or JSON config")
	symbol := flag.String("symbol", "", "ab symbol, e.g. BTCUSDT.BINANCE")
	interval := flag.String("interval", "1m", "Bar interval: 1m|1h|d")
	start := flag.String("start", "", "Dump start, 2006-01-02 or RFC3339")
	end := flag.String("end", "", "Dump end, 2006-01-02 or RFC3339 (default: now)")
	limit := flag.Int("limit", 0, "Max bars to print (0=all)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "overview"
	}
	if err := run(context.Background(), cmd, *configPath, *symbol, *interval, *start, *end, *limit); err != nil {
		logs.Errorf("history %s failed, err: %+v", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd, configPath, symbol, interval, start, end string, limit int) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
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

	if cmd == "overview" {
		series, err := store.Overview(ctx)
		if err != nil {
			return err
		}
		for _, s := range series {
			fmt.Printf("%s.%s %s count=%d start=%s end=%s\n", s.Symbol, s.Exchange, s.Interval, s.Count,
				s.Start.Format(time.DateTime), s.End.Format(time.DateTime))
		}
		return nil
	}

	sym, exchange, err := model.SplitABSymbol(symbol)
	if err != nil {
		return errors.Wrapf(err, "symbol %q", symbol)
	}
	iv, ok := enum.ParseInterval(interval)
	if !ok {
		return errors.Errorf("invalid interval %q", interval)
	}

	switch cmd {
	case "dump":
		req := model.HistoryRequest{Symbol: sym, Exchange: exchange, Interval: iv, End: time.Now()}
		if req.Start, err = parseTime(start); err != nil {
			return err
		}
		if end != "" {
			if req.End, err = parseTime(end); err != nil {
				return err
			}
		}
		bars, err := store.LoadBars(ctx, req)
		if err != nil {
			return err
		}
		for i, b := range bars {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Printf("%s o=%s h=%s l=%s c=%s v=%s\n", b.Datetime.Format(time.DateTime), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		fmt.Printf("bars=%d\n", len(bars))
	case "delete":
		n, err := store.DeleteBars(ctx, sym, exchange, iv)
		if err != nil {
			return err
		}
		fmt.Printf("deleted=%d\n", n)
	default:
		return errors.Errorf("unknown command %q, want overview|dump|delete", cmd)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", s)
	}
	return t, nil
}
