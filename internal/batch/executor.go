package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxlift/sheetvox/internal/logging"
)

// budget caps concurrent in-flight calls to one downstream service.
// Implemented as a buffered channel used as a counting semaphore; a slot is
// held for the duration of the call, so the count can never exceed the
// ceiling or go negative.
type budget struct {
	slots chan struct{}
}

func newBudget(limit int) *budget {
	if limit < 1 {
		limit = 1
	}
	return &budget{slots: make(chan struct{}, limit)}
}

// acquire blocks until a slot is free or the context is done.
func (b *budget) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *budget) release() {
	<-b.slots
}

// inFlight returns the number of currently held slots.
func (b *budget) inFlight() int {
	return len(b.slots)
}

// processFunc drives one row to a terminal outcome.
type processFunc func(ctx context.Context, workerID int, row Row) Outcome

// Executor runs rows on a fixed worker pool. The two service budgets are
// enforced inside the process function; a worker may hold its slot while
// waiting on a budget, which is deliberate backpressure.
type Executor struct {
	workers int
	process processFunc
	log     *slog.Logger
}

// NewExecutor creates an executor with the given pool size.
func NewExecutor(workers int, process processFunc) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		workers: workers,
		process: process,
		log:     slog.With("component", "executor"),
	}
}

// Run feeds rows through the worker pool and returns the outcome stream.
// Each row's outcome is emitted exactly once, in completion order. When the
// context is cancelled no further rows are dispatched; rows already being
// processed drain to their outcome.
func (e *Executor) Run(ctx context.Context, rows []Row) <-chan Outcome {
	queue := make(chan Row)
	results := make(chan Outcome, e.workers)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go e.workerLoop(ctx, i, queue, results, &wg)
	}

	// Dispatcher: stop submitting on cancellation.
	go func() {
		defer close(queue)
		for _, row := range rows {
			select {
			case queue <- row:
			case <-ctx.Done():
				e.log.Info("dispatch stopped", "reason", ctx.Err())
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// workerLoop pulls rows until the queue closes.
func (e *Executor) workerLoop(ctx context.Context, workerID int, queue <-chan Row, results chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()
	log := logging.WorkerLogger(workerID)

	for row := range queue {
		log.Debug("row dispatched", "row", row.Index)
		results <- e.process(ctx, workerID, row)
	}
}
