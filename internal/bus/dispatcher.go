package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/internal/obs"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultInterval    = time.Second
	defaultThreshold   = 1000
	defaultPollTimeout = time.Second
)

// Handler consumes dispatched events. Implementations must be comparable
// (pointer receivers) so they can be unregistered.
type Handler interface {
	HandleEvent(e event.Event) error
}

type funcHandler struct {
	fn func(event.Event) error
}

func (h *funcHandler) HandleEvent(e event.Event) error { return h.fn(e) }

// HandlerFunc wraps fn into a Handler. Every call returns a distinct handler,
// keep the result to unregister it later.
func HandlerFunc(fn func(event.Event) error) Handler {
	return &funcHandler{fn: fn}
}

// Config controls the dispatcher goroutines.
type Config struct {
	Interval    time.Duration `mapstructure:"interval"`
	Threshold   int           `mapstructure:"event_threshold"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	return c
}

// Dispatcher routes events from one queue to registered handlers on a single
// consumer goroutine, and emits timer events from a second goroutine.
type Dispatcher struct {
	cfg     Config
	queue   *Queue
	metrics *obs.Metrics

	mu       sync.RWMutex
	handlers map[event.Kind][]Handler
	general  []Handler

	active atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a stopped dispatcher. metrics may be nil.
func NewDispatcher(cfg Config, metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		queue:    NewQueue(),
		metrics:  metrics,
		handlers: make(map[event.Kind][]Handler),
	}
}

// Put enqueues an event. It never blocks and is safe from any goroutine.
func (d *Dispatcher) Put(e event.Event) {
	d.queue.Put(e)
}

// Len returns the current queue depth.
func (d *Dispatcher) Len() int {
	return d.queue.Len()
}

// Register adds handler for kind. Registering the same handler twice is a no-op.
func (d *Dispatcher) Register(kind event.Kind, h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.handlers[kind]
	if indexOf(cur, h) >= 0 {
		return
	}
	next := make([]Handler, len(cur), len(cur)+1)
	copy(next, cur)
	d.handlers[kind] = append(next, h)
}

// Unregister removes handler for kind. Unknown handlers are ignored.
func (d *Dispatcher) Unregister(kind event.Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur := d.handlers[kind]
	idx := indexOf(cur, h)
	if idx < 0 {
		return
	}
	next := without(cur, idx)
	if len(next) == 0 {
		delete(d.handlers, kind)
		return
	}
	d.handlers[kind] = next
}

// RegisterGeneral adds a handler that receives every event after the kind handlers.
func (d *Dispatcher) RegisterGeneral(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if indexOf(d.general, h) >= 0 {
		return
	}
	next := make([]Handler, len(d.general), len(d.general)+1)
	copy(next, d.general)
	d.general = append(next, h)
}

// UnregisterGeneral removes a general handler.
func (d *Dispatcher) UnregisterGeneral(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := indexOf(d.general, h); idx >= 0 {
		d.general = without(d.general, idx)
	}
}

// Start launches the consumer and timer goroutines.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.active.CompareAndSwap(false, true) {
		return exception.ErrDispatcherRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.runTimer(ctx)
	}()
	logs.Infof("dispatcher started, interval: %s, threshold: %d", d.cfg.Interval, d.cfg.Threshold)
	return nil
}

// Stop signals both goroutines and waits for them. Events still queued are
// not guaranteed to be processed.
func (d *Dispatcher) Stop() error {
	if !d.active.CompareAndSwap(true, false) {
		return exception.ErrDispatcherNotRunning
	}
	d.cancel()
	d.wg.Wait()
	logs.Infof("dispatcher stopped, pending: %d", d.queue.Len())
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	for d.active.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e, ok := d.queue.Get(d.cfg.PollTimeout)
		if !ok {
			continue
		}
		d.process(e)
	}
}

func (d *Dispatcher) runTimer(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.onTimer(now)
		}
	}
}

// onTimer emits the timer event, then one congestion exception when the
// queue is deeper than the threshold.
func (d *Dispatcher) onTimer(now time.Time) {
	d.Put(event.New(event.KindTimer, event.Timer{Time: now}))

	depth := d.queue.Len()
	d.metrics.ObserveQueueDepth(depth)
	if depth <= d.cfg.Threshold {
		return
	}
	d.metrics.IncCongestion()
	logs.Warnf("event queue congested, depth: %d, threshold: %d", depth, d.cfg.Threshold)
	d.Put(event.New(event.KindException, event.Congestion{
		Threshold: d.cfg.Threshold,
		Depth:     depth,
		Time:      now,
	}))
}

func (d *Dispatcher) process(e event.Event) {
	d.metrics.ObserveEvent(e.Kind)

	d.mu.RLock()
	handlers := d.handlers[e.Kind]
	general := d.general
	d.mu.RUnlock()

	for _, h := range handlers {
		d.invoke(h, e)
	}
	for _, h := range general {
		d.invoke(h, e)
	}
}

func (d *Dispatcher) invoke(h Handler, e event.Event) {
	start := time.Now()
	err := safeHandle(h, e)
	d.metrics.ObserveHandler(time.Since(start))
	if err == nil {
		return
	}

	d.metrics.IncHandlerFailure()
	logs.Errorf("handle %s event, err: %+v", e.Kind, err)
	if e.Kind == event.KindLog {
		return
	}
	d.Put(event.New(event.KindLog, model.Log{
		Level: enum.LogLevelError,
		Msg:   errors.Wrapf(err, "handle %s event", e.Kind).Error(),
		Time:  time.Now(),
	}))
}

func safeHandle(h Handler, e event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrHandlerPanic, "%v", r)
		}
	}()
	return h.HandleEvent(e)
}

func indexOf(hs []Handler, h Handler) int {
	for i := range hs {
		if hs[i] == h {
			return i
		}
	}
	return -1
}

func without(hs []Handler, idx int) []Handler {
	next := make([]Handler, 0, len(hs)-1)
	next = append(next, hs[:idx]...)
	return append(next, hs[idx+1:]...)
}
