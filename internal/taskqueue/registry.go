package taskqueue

import (
	"path/filepath"
	"sync"
)

// Registry hands out one shared Queue per repository path. Queues are
// reference counted and closed when the last holder releases them.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*entry
	opts   []Option
	closed bool
}

type entry struct {
	queue *Queue
	refs  int
}

var defaultRegistry = NewRegistry()

// Default returns the process wide registry. Components that are not given
// a registry use it, so every holder of a path shares one queue.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry creates a registry whose queues are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		queues: make(map[string]*entry),
		opts:   opts,
	}
}

// Key normalizes a repository path to its registry key.
func Key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// Acquire returns the queue for path, creating it on first use. opts are
// applied after the registry's own options and only when the queue is
// created.
func (r *Registry) Acquire(path string, opts ...Option) (*Queue, error) {
	key := Key(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.queues[key]
	if !ok {
		all := append(append([]Option(nil), r.opts...), opts...)
		e = &entry{queue: New(key, all...)}
		r.queues[key] = e
	}
	e.refs++
	return e.queue, nil
}

// Release gives back a queue obtained from Acquire.
func (r *Registry) Release(q *Queue) {
	r.mu.Lock()
	e, ok := r.queues[q.path]
	if !ok || e.queue != q {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.queues, q.path)
	r.mu.Unlock()

	q.Close()
}

// Len returns the number of live queues.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}

// Close closes every queue regardless of outstanding references.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	queues := make([]*Queue, 0, len(r.queues))
	for _, e := range r.queues {
		queues = append(queues, e.queue)
	}
	r.queues = make(map[string]*entry)
	r.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
