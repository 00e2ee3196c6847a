package bar

import (
	"time"

	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// WindowGenerator merges completed bars into N-minute or N-hour bars.
// A window bar is emitted when an incoming bar belongs to a later window, or
// as soon as the incoming bar closes its window.
type WindowGenerator struct {
	window   int
	interval enum.Interval
	onBar    func(model.Bar)

	bar *model.Bar
}

// NewWindowGenerator creates a window generator. Supported intervals are
// minute and hour.
func NewWindowGenerator(window int, interval enum.Interval, onBar func(model.Bar)) (*WindowGenerator, error) {
	if window <= 0 {
		return nil, errors.Wrapf(exception.ErrBarInvalidWindow, "window: %d", window)
	}
	if interval != enum.IntervalMinute && interval != enum.IntervalHour {
		return nil, errors.Wrapf(exception.ErrBarInvalidInterval, "interval: %s", interval)
	}
	return &WindowGenerator{
		window:   window,
		interval: interval,
		onBar:    onBar,
	}, nil
}

// UpdateBar folds a completed source bar.
func (w *WindowGenerator) UpdateBar(b model.Bar) {
	bucket := Bucket(b.Datetime, w.interval, w.window)
	if w.bar != nil && !w.bar.Datetime.Equal(bucket) {
		w.Generate()
	}

	if w.bar == nil {
		w.bar = &model.Bar{
			GatewayName:  b.GatewayName,
			Symbol:       b.Symbol,
			Exchange:     b.Exchange,
			Datetime:     bucket,
			Interval:     w.interval,
			Open:         b.Open,
			High:         b.High,
			Low:          b.Low,
			Close:        b.Close,
			Volume:       b.Volume,
			Turnover:     b.Turnover,
			OpenInterest: b.OpenInterest,
		}
	} else {
		w.bar.High = decimal.Max(w.bar.High, b.High)
		w.bar.Low = decimal.Min(w.bar.Low, b.Low)
		w.bar.Close = b.Close
		w.bar.Volume = w.bar.Volume.Add(b.Volume)
		w.bar.Turnover = w.bar.Turnover.Add(b.Turnover)
		w.bar.OpenInterest = b.OpenInterest
	}

	end := bucket.Add(w.interval.Duration() * time.Duration(w.window))
	barEnd := b.Datetime.Add(sourceWidth(b, w.interval))
	if !barEnd.Before(end) {
		w.Generate()
	}
}

// Generate force-emits the in-progress window bar.
func (w *WindowGenerator) Generate() (model.Bar, bool) {
	if w.bar == nil {
		return model.Bar{}, false
	}
	out := *w.bar
	w.bar = nil
	if w.onBar != nil {
		w.onBar(out)
	}
	return out, true
}

// Current returns a copy of the in-progress window bar.
func (w *WindowGenerator) Current() (model.Bar, bool) {
	if w.bar == nil {
		return model.Bar{}, false
	}
	return *w.bar, true
}

func sourceWidth(b model.Bar, fallback enum.Interval) time.Duration {
	if b.Interval.IsAvailable() {
		return b.Interval.Duration()
	}
	return fallback.Duration()
}
