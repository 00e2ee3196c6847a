package binance

import (
	"context"
	"sync"
	"sync/atomic"

	"abquant/internal/model"
	"abquant/pkg/exception"
)

type taskKind uint8

const (
	taskPlace taskKind = iota + 1
	taskCancel
)

type orderTask struct {
	kind     taskKind
	clientID string
	place    model.OrderRequest
	cancel   model.CancelRequest
}

// orderWorker drains order tasks onto the REST client so that SendOrder
// never blocks on the network.
type orderWorker struct {
	running atomic.Bool
	worker  int
	queue   chan orderTask
	wg      sync.WaitGroup
}

func newOrderWorker(workerCount, workerCap int) *orderWorker {
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCap <= 0 {
		workerCap = 1
	}
	return &orderWorker{
		worker: workerCount,
		queue:  make(chan orderTask, workerCap),
	}
}

// Handle enqueues a task without blocking.
func (w *orderWorker) Handle(task orderTask) error {
	select {
	case w.queue <- task:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Run starts the workers once. They stop when ctx is done.
func (w *orderWorker) Run(ctx context.Context, exec func(context.Context, orderTask)) {
	if w.running.Swap(true) {
		return
	}

	for range w.worker {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case task := <-w.queue:
					exec(ctx, task)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Wait blocks until every worker has returned.
func (w *orderWorker) Wait() {
	w.wg.Wait()
}
