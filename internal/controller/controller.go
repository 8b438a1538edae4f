// Package controller ties the change tracking pieces together for one
// repository: cached change lists, diffs, staging operations, watchers and
// the notification bus.
//
// All backend work runs on the repository's serial task queue. Watcher
// callbacks only invalidate caches and publish events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
	"github.com/dshills/stagehand/internal/git/changes"
	"github.com/dshills/stagehand/internal/git/diffcache"
	"github.com/dshills/stagehand/internal/git/patch"
	"github.com/dshills/stagehand/internal/git/staging"
	"github.com/dshills/stagehand/internal/notify"
	"github.com/dshills/stagehand/internal/taskqueue"
	"github.com/dshills/stagehand/internal/watcher"
)

// Controller manages cached data and serialized operations for one
// repository.
type Controller struct {
	backend backend.Backend
	logger  zerolog.Logger

	cache   *Cache
	changes *changes.Computer
	diffs   *diffcache.Differ
	files   *patch.FileDiffer
	stager  *staging.Stager
	applier *patch.Applier
	bus     *notify.Bus

	registry *taskqueue.Registry
	queue    *taskqueue.Queue

	watchersMu sync.Mutex
	watchers   []namedHandle

	flight singleflight.Group

	// ctx ends when the controller closes; it bounds background work the
	// watchers schedule.
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

type namedHandle struct {
	name   string
	handle watcher.Handle
}

// New creates a controller for b and starts its watchers. Its task queue
// comes from the WithRegistry registry, or from taskqueue.Default, so
// controllers on the same path always share one queue.
func New(b backend.Backend, opts ...Option) (*Controller, error) {
	o := buildOptions(opts)

	cache, err := diffcache.New(o.diffCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create diff cache: %w", err)
	}

	registry := o.registry
	if registry == nil {
		registry = taskqueue.Default()
	}
	queue, err := registry.Acquire(b.Workdir(), o.queueOptions()...)
	if err != nil {
		return nil, fmt.Errorf("acquire task queue: %w", err)
	}

	logger := o.logger.With().Str("component", "controller").Str("repo", b.Workdir()).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		backend:  b,
		logger:   logger,
		cache:    NewCache(),
		bus:      notify.New(notify.WithRepo(b.Workdir()), notify.WithLogger(o.logger)),
		registry: registry,
		queue:    queue,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.diffs = diffcache.NewDiffer(b, cache, o.logger)
	c.changes = changes.New(b, changes.WithLogger(o.logger), changes.WithDiffSource(c.diffs))
	c.files = patch.NewFileDiffer(b, o.contextLines)
	c.stager = staging.New(b, c.changes, staging.WithLogger(o.logger), staging.WithInvalidator(c))
	c.applier = patch.NewApplier(b, c.changes, c.stager, c, patch.WithLogger(o.logger))

	if o.watch {
		c.startWatchers(o.watcherOptions, o.configOptions)
	}
	return c, nil
}

// Workdir returns the repository's working tree root.
func (c *Controller) Workdir() string {
	return c.backend.Workdir()
}

// Backend returns the repository backend.
func (c *Controller) Backend() backend.Backend {
	return c.backend
}

// Cache returns the cache bundle.
func (c *Controller) Cache() *Cache {
	return c.cache
}

// DiffCache returns the commit diff cache.
func (c *Controller) DiffCache() *diffcache.Cache {
	return c.diffs.Cache()
}

// Close stops the watchers, releases the task queue and closes the
// notification bus. It is idempotent.
func (c *Controller) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.watchersMu.Lock()
	handles := c.watchers
	c.watchers = nil
	c.watchersMu.Unlock()

	var errs []error
	for _, w := range handles {
		if err := w.handle.Stop(); err != nil && !errors.Is(err, watcher.ErrStopped) {
			errs = append(errs, fmt.Errorf("stop %s watcher: %w", w.name, err))
		}
	}

	c.registry.Release(c.queue)
	c.bus.Close()
	return errors.Join(errs...)
}

// call runs fn on the task queue and returns its value.
func call[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, git.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, err := taskqueue.Do(ctx, c.queue, fn)
	if errors.Is(err, taskqueue.ErrClosed) {
		return zero, git.ErrClosed
	}
	return v, err
}

// shared coalesces concurrent loads of the same key into one queued task.
// Each caller waits with its own context; the task itself is bounded only
// by the controller lifetime.
func shared[T any](ctx context.Context, c *Controller, key string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	ch := c.flight.DoChan(key, func() (any, error) {
		return call(c.ctx, c, fn)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// mutate runs a mutating operation on the queue. The index caches are
// invalidated and index.changed is published whether or not fn succeeds.
func (c *Controller) mutate(ctx context.Context, op, path string, fn func() error) error {
	_, err := call(ctx, c, func() (struct{}, error) {
		defer c.indexChanged()
		return struct{}{}, fn()
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("operation failed")
	}
	return err
}

func (c *Controller) indexChanged() {
	c.InvalidateIndex()
	c.bus.Publish(notify.TopicIndexChanged, nil)
}
