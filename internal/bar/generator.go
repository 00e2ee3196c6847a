package bar

import (
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
)

type source uint8

const (
	sourceNone source = iota
	sourceTick
	sourceTransaction
)

// Generator folds ticks or transactions of one symbol into one-minute bars.
// A generator accepts a single kind of update for its whole life.
type Generator struct {
	onBar  func(model.Bar)
	window *WindowGenerator

	source   source
	bar      *model.Bar
	lastTick *model.Tick
	lastTime time.Time
}

// NewGenerator creates a minute bar generator. onBar receives a copy of every
// completed bar.
func NewGenerator(onBar func(model.Bar)) *Generator {
	return &Generator{onBar: onBar}
}

// NewWindowedGenerator creates a minute generator whose completed bars also
// feed a window generator of the given width.
func NewWindowedGenerator(onBar func(model.Bar), window int, interval enum.Interval, onWindowBar func(model.Bar)) (*Generator, error) {
	w, err := NewWindowGenerator(window, interval, onWindowBar)
	if err != nil {
		return nil, err
	}
	g := NewGenerator(onBar)
	g.window = w
	return g, nil
}

// Window returns the composed window generator, if any.
func (g *Generator) Window() *WindowGenerator {
	return g.window
}

// UpdateTick folds a tick. Ticks with zero last price or a timestamp older
// than the previous update are ignored.
func (g *Generator) UpdateTick(tick model.Tick) error {
	if err := g.use(sourceTick); err != nil {
		return err
	}
	if tick.LastPrice.IsZero() {
		return nil
	}
	if !g.lastTime.IsZero() && tick.Datetime.Before(g.lastTime) {
		return nil
	}

	g.roll(tick.Datetime, tick.LastPrice, func(b *model.Bar) {
		b.GatewayName = tick.GatewayName
		b.Symbol = tick.Symbol
		b.Exchange = tick.Exchange
	})
	g.bar.OpenInterest = tick.OpenInterest

	if g.lastTick != nil {
		if delta := tick.Volume.Sub(g.lastTick.Volume); delta.IsPositive() {
			g.bar.Volume = g.bar.Volume.Add(delta)
		}
		if delta := tick.Turnover.Sub(g.lastTick.Turnover); delta.IsPositive() {
			g.bar.Turnover = g.bar.Turnover.Add(delta)
		}
	}

	last := tick
	g.lastTick = &last
	g.lastTime = tick.Datetime
	return nil
}

// UpdateTransaction folds a public trade print.
func (g *Generator) UpdateTransaction(tx model.Transaction) error {
	if err := g.use(sourceTransaction); err != nil {
		return err
	}
	if tx.Price.IsZero() {
		return nil
	}
	if !g.lastTime.IsZero() && tx.Datetime.Before(g.lastTime) {
		return nil
	}

	g.roll(tx.Datetime, tx.Price, func(b *model.Bar) {
		b.GatewayName = tx.GatewayName
		b.Symbol = tx.Symbol
		b.Exchange = tx.Exchange
	})
	g.bar.Volume = g.bar.Volume.Add(tx.Volume)
	g.bar.Turnover = g.bar.Turnover.Add(tx.Volume.Mul(tx.Price))
	g.lastTime = tx.Datetime
	return nil
}

// Generate force-emits the in-progress bar and clears it.
func (g *Generator) Generate() (model.Bar, bool) {
	if g.bar == nil {
		return model.Bar{}, false
	}
	out := *g.bar
	g.bar = nil
	g.emit(out)
	return out, true
}

// Current returns a copy of the in-progress bar.
func (g *Generator) Current() (model.Bar, bool) {
	if g.bar == nil {
		return model.Bar{}, false
	}
	return *g.bar, true
}

func (g *Generator) use(s source) error {
	if g.source == sourceNone {
		g.source = s
		return nil
	}
	if g.source != s {
		return exception.ErrBarSourceMixed
	}
	return nil
}

// roll emits the in-progress bar when t falls in a later minute, then opens
// or updates the bar for t's minute with price.
func (g *Generator) roll(t time.Time, price decimal.Decimal, init func(*model.Bar)) {
	bucket := Bucket(t, enum.IntervalMinute, 1)
	if g.bar != nil && !g.bar.Datetime.Equal(bucket) {
		finished := *g.bar
		g.bar = nil
		g.emit(finished)
	}

	if g.bar == nil {
		b := &model.Bar{
			Datetime: bucket,
			Interval: enum.IntervalMinute,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
		}
		init(b)
		g.bar = b
		return
	}

	g.bar.High = decimal.Max(g.bar.High, price)
	g.bar.Low = decimal.Min(g.bar.Low, price)
	g.bar.Close = price
}

func (g *Generator) emit(b model.Bar) {
	if g.onBar != nil {
		g.onBar(b)
	}
	if g.window != nil {
		g.window.UpdateBar(b)
	}
}

// Bucket truncates t to the start of its window of n intervals within the
// day, in t's location.
func Bucket(t time.Time, interval enum.Interval, n int) time.Time {
	if n <= 0 {
		n = 1
	}
	y, m, d := t.Date()
	switch interval {
	case enum.IntervalHour:
		return time.Date(y, m, d, t.Hour()/n*n, 0, 0, 0, t.Location())
	case enum.IntervalDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	default:
		minuteOfDay := t.Hour()*60 + t.Minute()
		start := minuteOfDay / n * n
		return time.Date(y, m, d, start/60, start%60, 0, 0, t.Location())
	}
}
