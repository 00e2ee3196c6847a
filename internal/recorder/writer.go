package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"abquant/internal/history"
	"abquant/internal/model"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Writer batches bars from a buffered queue into the history store.
type Writer struct {
	cfg   Config
	store history.Store
	ch    chan model.Bar
	wg    sync.WaitGroup
	err   atomic.Value

	started atomic.Bool
	closed  atomic.Bool
	saved   atomic.Uint64
}

// NewWriter creates a stopped writer.
func NewWriter(cfg Config, store history.Store) (*Writer, error) {
	if store == nil {
		return nil, exception.ErrNilInstance
	}
	cfg = cfg.withDefaults()
	return &Writer{
		cfg:   cfg,
		store: store,
		ch:    make(chan model.Bar, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if w.started.Swap(true) {
		return exception.ErrRecorderAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting bars, flushes what is queued and waits for the loop.
func (w *Writer) Close() error {
	if !w.closed.Swap(true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the last flush error, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Saved counts bars written to the store.
func (w *Writer) Saved() uint64 {
	return w.saved.Load()
}

// TryAppend enqueues a bar without blocking.
func (w *Writer) TryAppend(b model.Bar) error {
	if w.closed.Load() {
		return exception.ErrRecorderClosed
	}
	if !w.started.Load() {
		return exception.ErrRecorderNotStarted
	}

	select {
	case w.ch <- b:
		return nil
	default:
		return exception.ErrRecorderQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		batch  = make([]model.Bar, 0, w.cfg.BatchSize)
		flushC <-chan time.Time
	)
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.store.SaveBars(ctx, batch); err != nil {
			w.err.Store(errors.Wrapf(err, "save %d bars", len(batch)))
			logs.Errorf("recorder flush failed, bars: %d, err: %+v", len(batch), err)
		} else {
			w.saved.Add(uint64(len(batch)))
			logs.Debugf("recorder flushed %d bars", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(&batch)
			flush(context.WithoutCancel(ctx))
			return
		case b, ok := <-w.ch:
			if !ok {
				flush(context.WithoutCancel(ctx))
				return
			}
			batch = append(batch, b)
			if len(batch) >= w.cfg.BatchSize {
				flush(ctx)
			}
		case <-flushC:
			flush(ctx)
		}
	}
}

func (w *Writer) drainNonBlocking(batch *[]model.Bar) {
	for {
		select {
		case b, ok := <-w.ch:
			if !ok {
				return
			}
			*batch = append(*batch, b)
		default:
			return
		}
	}
}
