/**
 * @description
 * In-process work queue for webhook processing. Ingestion latency is
 * decoupled from database work by handing each verified webhook to a bounded
 * queue consumed by a pool of workers. Transient failures are retried a
 * fixed number of times with a fixed backoff; once an audit record exists,
 * its work unit always runs to a terminal state.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the ingestion queue cannot accept more work.
var ErrQueueFull = errors.New("webhook work queue is full")

// Task is one unit of asynchronous webhook work. Run returns nil on any
// terminal outcome; a non-nil error is treated as transient and retried.
// OnExhausted fires once the retry budget is spent.
type Task struct {
	Run         func(ctx context.Context) error
	OnExhausted func(cause error)
}

// Dispatcher is the default TaskQueue implementation: a bounded channel
// drained by a fixed pool of worker goroutines.
type Dispatcher struct {
	tasks    chan Task
	attempts int
	backoff  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given pool size, queue depth,
// retry attempts, and fixed backoff between attempts.
func NewDispatcher(workers, queueSize, attempts int, backoff time.Duration, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if attempts <= 0 {
		attempts = 1
	}

	d := &Dispatcher{
		tasks:    make(chan Task, queueSize),
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules a task without blocking the caller. A full queue is an
// ingress error surfaced to the HTTP layer.
func (d *Dispatcher) Enqueue(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrQueueFull
	}
	select {
	case d.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.runWithRetry(task)
	}
}

func (d *Dispatcher) runWithRetry(task Task) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		lastErr = task.Run(ctx)
		cancel()
		if lastErr == nil {
			return
		}
		d.logger.Warn("webhook work unit failed", "attempt", attempt, "max_attempts", d.attempts, "error", lastErr)
		if attempt < d.attempts {
			time.Sleep(d.backoff)
		}
	}
	if task.OnExhausted != nil {
		task.OnExhausted(lastErr)
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to reach a
// terminal state, bounded by the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
