// Package taskqueue runs repository work on one serial goroutine per
// repository path, so index and working tree mutations never overlap.
//
// A context passed to Run or Submit bounds enqueueing and waiting only: a
// task that has been handed to the worker always runs to completion, even
// if its caller gave up.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Errors returned by queue operations.
var (
	ErrClosed = errors.New("task queue is closed")
	ErrPanic  = errors.New("task panicked")
)

// DefaultBufferSize is the number of tasks that may wait for the worker.
const DefaultBufferSize = 64

// task is one unit of queued work.
type task struct {
	id     string
	fn     func() error
	result chan error
}

// Queue executes tasks one at a time in submission order.
type Queue struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex // guards closing tasks against concurrent sends
	tasks  chan *task
	closed bool
	done   chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Queue.
type Option func(*queueConfig)

type queueConfig struct {
	bufferSize int
	logger     zerolog.Logger
}

// WithBufferSize sets how many tasks may wait for the worker.
func WithBufferSize(size int) Option {
	return func(c *queueConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *queueConfig) {
		c.logger = l
	}
}

// New starts a queue for path.
func New(path string, opts ...Option) *Queue {
	cfg := queueConfig{bufferSize: DefaultBufferSize, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &Queue{
		path:   path,
		logger: cfg.logger.With().Str("component", "taskqueue").Str("repo", path).Logger(),
		tasks:  make(chan *task, cfg.bufferSize),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

// Path returns the repository path the queue serves.
func (q *Queue) Path() string {
	return q.path
}

// Submit enqueues fn and returns a channel that receives its result. It
// blocks while the buffer is full, until ctx is done.
func (q *Queue) Submit(ctx context.Context, fn func() error) (<-chan error, error) {
	t := &task{id: uuid.NewString(), fn: fn, result: make(chan error, 1)}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}
	select {
	case q.tasks <- t:
		return t.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run enqueues fn and waits for it. If ctx ends first Run returns the
// context error while fn still runs later.
func (q *Queue) Run(ctx context.Context, fn func() error) error {
	result, err := q.Submit(ctx, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on q and returns its value.
func Do[T any](ctx context.Context, q *Queue, fn func() (T, error)) (T, error) {
	var out T
	err := q.Run(ctx, func() error {
		v, err := fn()
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Close stops accepting tasks, lets the worker finish what is queued and
// waits for it. It is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
}

// Stats returns the number of tasks run and how many returned an error.
func (q *Queue) Stats() (processed, failed uint64) {
	return q.processed.Load(), q.failed.Load()
}

func (q *Queue) worker() {
	defer close(q.done)
	for t := range q.tasks {
		err := q.execute(t)
		q.processed.Add(1)
		if err != nil {
			q.failed.Add(1)
		}
		t.result <- err
	}
}

// execute runs a task, turning a panic into an error.
func (q *Queue) execute(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("task", t.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return t.fn()
}
