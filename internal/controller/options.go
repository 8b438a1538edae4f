package controller

import (
	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git/patch"
	"github.com/dshills/stagehand/internal/taskqueue"
	"github.com/dshills/stagehand/internal/watcher"
)

// DefaultDiffCacheSize is the number of commit diffs kept per repository.
const DefaultDiffCacheSize = 50

type options struct {
	logger         zerolog.Logger
	registry       *taskqueue.Registry
	diffCacheSize  int
	contextLines   int
	watch          bool
	watcherOptions []watcher.Option
	configOptions  []watcher.Option
	queueBuffer    int
}

// Option configures a Controller.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		logger:        zerolog.Nop(),
		diffCacheSize: DefaultDiffCacheSize,
		contextLines:  patch.DefaultContext,
		watch:         true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger shared by the controller's components.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegistry makes the controller take its task queue from r. Without
// it the queue comes from taskqueue.Default.
func WithRegistry(r *taskqueue.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithDiffCacheSize sets how many commit diffs are cached.
func WithDiffCacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.diffCacheSize = size
		}
	}
}

// WithContextLines sets the context lines around generated hunks.
func WithContextLines(n int) Option {
	return func(o *options) {
		o.contextLines = n
	}
}

// WithWatchers enables or disables the file system watchers. Without
// watchers callers invalidate caches themselves.
func WithWatchers(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithWatcherOptions passes options to every watcher the controller starts.
func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(o *options) {
		o.watcherOptions = append(o.watcherOptions, opts...)
	}
}

// WithConfigWatcherOptions passes options to the config file watcher only,
// after those given to WithWatcherOptions.
func WithConfigWatcherOptions(opts ...watcher.Option) Option {
	return func(o *options) {
		o.configOptions = append(o.configOptions, opts...)
	}
}

// WithQueueBufferSize sets how many tasks may wait on the repository's task
// queue. It only applies when the queue is created.
func WithQueueBufferSize(n int) Option {
	return func(o *options) {
		o.queueBuffer = n
	}
}

func (o options) queueOptions() []taskqueue.Option {
	return []taskqueue.Option{taskqueue.WithLogger(o.logger), taskqueue.WithBufferSize(o.queueBuffer)}
}
