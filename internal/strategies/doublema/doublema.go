// Package doublema trades the crossover of a fast and a slow simple moving
// average of bar closes.
package doublema

import (
	"sort"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/strategy"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const ClassName = "DoubleMa"

// Strategy settings:
//
//	fast_window  fast average length, default 10
//	slow_window  slow average length, default 20
//	fixed_size   order volume, default 1
//	init_days    days of history loaded on init, default 10, 0 skips
//	allow_short  open short positions on a downward cross, default false
type Strategy struct {
	*strategy.Template

	fastWindow int
	slowWindow int
	fixedSize  decimal.Decimal
	initDays   int
	allowShort bool

	closes map[string][]decimal.Decimal // ab symbol, newest last
}

// New is a strategy.Factory.
func New(t *strategy.Template, setting map[string]any) (strategy.Strategy, error) {
	s := &Strategy{
		Template:   t,
		fastWindow: strategy.SettingInt(setting, "fast_window", 10),
		slowWindow: strategy.SettingInt(setting, "slow_window", 20),
		fixedSize:  strategy.SettingDecimal(setting, "fixed_size", decimal.NewFromInt(1)),
		initDays:   strategy.SettingInt(setting, "init_days", 10),
		allowShort: strategy.SettingBool(setting, "allow_short", false),
		closes:     make(map[string][]decimal.Decimal),
	}
	if s.fastWindow <= 0 || s.slowWindow <= s.fastWindow {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "windows must satisfy 0 < fast < slow, got %d and %d", s.fastWindow, s.slowWindow)
	}
	if !s.fixedSize.IsPositive() {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "fixed size must be > 0, got %s", s.fixedSize)
	}
	return s, nil
}

func (s *Strategy) OnInit() error {
	s.WriteLog("init, fast %d slow %d", s.fastWindow, s.slowWindow)
	if s.initDays <= 0 {
		return nil
	}
	return s.LoadBars(s.initDays, enum.IntervalMinute)
}

func (s *Strategy) OnStart() error {
	s.WriteLog("start")
	return nil
}

func (s *Strategy) OnStop() error {
	s.WriteLog("stop")
	return nil
}

func (s *Strategy) OnBars(bars map[string]model.Bar) error {
	symbols := make([]string, 0, len(bars))
	for ab := range bars {
		symbols = append(symbols, ab)
	}
	sort.Strings(symbols)

	for _, ab := range symbols {
		if err := s.onBar(ab, bars[ab]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) onBar(ab string, b model.Bar) error {
	closes := append(s.closes[ab], b.Close)
	if len(closes) > s.slowWindow+1 {
		closes = closes[len(closes)-s.slowWindow-1:]
	}
	s.closes[ab] = closes
	if len(closes) <= s.slowWindow {
		return nil
	}

	prev := closes[:len(closes)-1]
	fast0, slow0 := sma(closes, s.fastWindow), sma(closes, s.slowWindow)
	fast1, slow1 := sma(prev, s.fastWindow), sma(prev, s.slowWindow)
	crossOver := fast0.GreaterThan(slow0) && fast1.LessThanOrEqual(slow1)
	crossBelow := fast0.LessThan(slow0) && fast1.GreaterThanOrEqual(slow1)

	if !s.Trading() || (!crossOver && !crossBelow) {
		return nil
	}
	if err := s.CancelAll(); err != nil {
		return err
	}

	pos := s.GetPos(ab)
	price := b.Close
	switch {
	case crossOver:
		if pos.IsNegative() {
			if _, err := s.Cover(ab, price, pos.Neg()); err != nil {
				return err
			}
		}
		if !pos.IsPositive() {
			_, err := s.Buy(ab, price, s.fixedSize)
			return err
		}
	case crossBelow:
		if pos.IsPositive() {
			if _, err := s.Sell(ab, price, pos); err != nil {
				return err
			}
		}
		if s.allowShort && !pos.IsNegative() {
			_, err := s.Short(ab, price, s.fixedSize)
			return err
		}
	}
	return nil
}

func (s *Strategy) OnTrade(trade model.Trade) error {
	s.WriteLog("trade %s %s %s@%s, pos %s", trade.ABSymbol(), trade.Direction, trade.Volume, trade.Price, s.GetPos(trade.ABSymbol()))
	return nil
}

// sma averages the last n values.
func sma(values []decimal.Decimal, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values[len(values)-n:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
