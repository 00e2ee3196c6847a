package recorder

import (
	"context"
	"sync"

	"abquant/internal/bar"
	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Recorder turns ticks of the configured symbols into minute bars and hands
// completed bars to a Writer.
type Recorder struct {
	writer *Writer

	mu         sync.Mutex
	generators map[string]*bar.Generator // ab symbol
	dropped    uint64
}

// New validates cfg and creates a recorder writing through w.
func New(cfg Config, w *Writer) (*Recorder, error) {
	if w == nil {
		return nil, exception.ErrNilInstance
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Recorder{
		writer:     w,
		generators: make(map[string]*bar.Generator, len(cfg.Symbols)),
	}
	for _, ab := range cfg.Symbols {
		r.generators[ab] = bar.NewGenerator(r.append)
	}
	return r, nil
}

// Symbols returns the recorded ab symbols.
func (r *Recorder) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.generators))
	for ab := range r.generators {
		out = append(out, ab)
	}
	return out
}

// Register subscribes the recorder to tick events.
func (r *Recorder) Register(d *bus.Dispatcher) {
	d.Register(event.KindTick, r)
}

func (r *Recorder) HandleEvent(e event.Event) error {
	tick, ok := event.PayloadOf[model.Tick](e)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.generators[tick.ABSymbol()]
	if !ok {
		return nil
	}
	return g.UpdateTick(tick)
}

// Start runs the writer.
func (r *Recorder) Start(ctx context.Context) error {
	return r.writer.Start(ctx)
}

// Close emits every in-progress bar and closes the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	for _, g := range r.generators {
		g.Generate()
	}
	dropped := r.dropped
	r.mu.Unlock()

	if dropped > 0 {
		logs.Warnf("recorder dropped %d bars", dropped)
	}
	if err := r.writer.Close(); err != nil {
		return errors.Wrap(err, "close writer")
	}
	return nil
}

// Dropped counts bars that could not be queued.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// append runs under r.mu from inside a generator.
func (r *Recorder) append(b model.Bar) {
	if err := r.writer.TryAppend(b); err != nil {
		r.dropped++
		logs.Warnf("recorder drop bar %s %s, err: %+v", b.ABSymbol(), b.Datetime, err)
	}
}
