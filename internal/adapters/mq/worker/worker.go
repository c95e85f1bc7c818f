// Package worker drains the rebuild queue and retrains models in the
// background.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/nudge/internal/adapters/mq/queue"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// Default worker configuration constants.
const defaultWorkerCount = 2

// Rebuilder retrains and stores the model for one problem. Failures leave
// the prior model untouched; the worker only logs them.
type Rebuilder interface {
	Rebuild(ctx context.Context, problemID string) error
}

// Tracker releases the in-flight mark once a task finishes, so the next
// staleness check can trigger a fresh rebuild.
type Tracker interface {
	Unrecord(ctx context.Context, key string)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Worker processes rebuild tasks until its queue closes or ctx is canceled.
type Worker struct {
	queue     Queue
	rebuilder Rebuilder
	tracker   Tracker
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a rebuild worker.
func NewWorker(q Queue, rebuilder Rebuilder, tracker Tracker, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		rebuilder: rebuilder,
		tracker:   tracker,
		name:      "rebuild-worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			w.process(ctx, task)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process handles a single rebuild task. The in-flight mark is released
// whatever the outcome, so a failed build can be retried by a later event.
func (w *Worker) process(ctx context.Context, task queue.Task) {
	defer w.tracker.Unrecord(ctx, task.ProblemID)

	start := time.Now()
	if err := w.rebuilder.Rebuild(ctx, task.ProblemID); err != nil {
		w.logger.Error(ctx, "model rebuild failed",
			logger.String("problemID", task.ProblemID),
			logger.Error(err),
		)
		return
	}
	w.logger.Info(ctx, "model rebuild finished",
		logger.String("problemID", task.ProblemID),
		logger.Duration("took", time.Since(start)),
	)
}

// Pool manages multiple rebuild workers.
type Pool struct {
	workers []*Worker
}

// NewPool creates a worker pool of workerCount workers.
func NewPool(workerCount int, q Queue, rebuilder Rebuilder, tracker Tracker) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*Worker, workerCount),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewWorker(q, rebuilder, tracker,
			WithName(fmt.Sprintf("rebuild-worker-%d", i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully shuts down all workers.
func (p *Pool) Stop(ctx context.Context) {
	for _, w := range p.workers {
		_ = w.Shutdown(ctx)
	}
	metrics.UpdateWorkerCount(0)
}
