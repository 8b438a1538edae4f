// Package watcher turns file system notifications for a repository into
// coarse change signals.
//
// Four watchers are provided, all built on fsnotify:
//
//   - FileWatcher observes one path and survives the path being deleted and
//     recreated, as editors and git do when they replace files atomically.
//   - ConfigWatcher observes the repository configuration file and emits a
//     debounced signal per save.
//   - WorkspaceWatcher observes the working tree recursively and delivers
//     batches of changed paths.
//   - RepositoryWatcher observes the git directory and classifies changes
//     as HEAD, index, ref, reflog or stash changes.
//
// Every watcher implements Handle. Callbacks run on one goroutine per
// watcher, so a callback is never invoked concurrently with itself. No
// callback starts after Stop returns.
package watcher

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Common errors returned by watcher operations.
var (
	ErrStopped        = errors.New("watcher is stopped")
	ErrAlreadyStarted = errors.New("watcher is already started")
	ErrPathNotExist   = errors.New("path does not exist")
)

// Handle is a running watcher.
type Handle interface {
	// Start begins delivering callbacks. It fails once the watcher has
	// been stopped.
	Start() error

	// Stop releases the watcher. It is idempotent.
	Stop() error
}

// Flags describes what happened to a watched path.
type Flags uint32

const (
	// Delete indicates the path was removed.
	Delete Flags = 1 << iota
	// Write indicates the content was written.
	Write
	// Extend indicates the file grew. fsnotify does not report it separately
	// from Write.
	Extend
	// Attrib indicates metadata (mode, times) changed.
	Attrib
	// Link indicates the path (re)appeared.
	Link
	// Rename indicates the path was moved away.
	Rename
	// Revoke indicates access was revoked. fsnotify never reports it.
	Revoke
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Delete, "DELETE"},
	{Write, "WRITE"},
	{Extend, "EXTEND"},
	{Attrib, "ATTRIB"},
	{Link, "LINK"},
	{Rename, "RENAME"},
	{Revoke, "REVOKE"},
}

// Has reports whether all bits of o are set.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// String returns the set flag names joined with "|".
func (f Flags) String() string {
	var names []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// convertOp converts fsnotify.Op to Flags.
func convertOp(op fsnotify.Op) Flags {
	var f Flags
	if op.Has(fsnotify.Remove) {
		f |= Delete
	}
	if op.Has(fsnotify.Write) {
		f |= Write
	}
	if op.Has(fsnotify.Chmod) {
		f |= Attrib
	}
	if op.Has(fsnotify.Create) {
		f |= Link
	}
	if op.Has(fsnotify.Rename) {
		f |= Rename
	}
	return f
}

// Config holds watcher configuration options.
type Config struct {
	// Debounce is the quiet period before a batch is delivered. Zero
	// selects the watcher's own default.
	Debounce time.Duration

	// RecreateInterval is how often FileWatcher retries a deleted path.
	// Default: 50ms
	RecreateInterval time.Duration

	// BufferSize is the capacity of the internal handoff channel.
	// Default: 100
	BufferSize int

	// IgnorePatterns are gitignore-style patterns WorkspaceWatcher skips.
	// Default: .git/
	IgnorePatterns []string

	// Logger receives warnings about watch failures.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		RecreateInterval: 50 * time.Millisecond,
		BufferSize:       100,
		IgnorePatterns:   []string{".git/"},
		Logger:           zerolog.Nop(),
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		c.Debounce = d
	}
}

// WithRecreateInterval sets the retry interval for deleted paths.
func WithRecreateInterval(d time.Duration) Option {
	return func(c *Config) {
		c.RecreateInterval = d
	}
}

// WithBufferSize sets the handoff channel size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithIgnorePatterns sets the ignore patterns.
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Config) {
		c.IgnorePatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func buildConfig(defaultDebounce time.Duration, opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.RecreateInterval <= 0 {
		cfg.RecreateInterval = 50 * time.Millisecond
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	return cfg
}

// lifecycle tracks the Stopped -> Watching -> Stopped state shared by all
// watchers. The reader goroutine consumes fsnotify; the delivery goroutine
// runs callbacks. Stop waits for the reader only, so a callback may stop
// its own watcher.
type lifecycle struct {
	mu      sync.Mutex
	started bool
	stopped bool
	done    atomic.Bool
	stopCh  chan struct{}
	reader  sync.WaitGroup
}

func newLifecycle() *lifecycle {
	return &lifecycle{stopCh: make(chan struct{})}
}

func (l *lifecycle) start(reader, deliver func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true

	l.reader.Add(1)
	go func() {
		defer l.reader.Done()
		reader()
	}()
	go deliver()
	return nil
}

// stop marks the watcher stopped and runs release once. It returns after
// the reader goroutine has exited.
func (l *lifecycle) stop(release func() error) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.done.Store(true)
	close(l.stopCh)
	l.mu.Unlock()

	err := release()
	l.reader.Wait()
	return err
}

// isStopped reports whether Stop has been called.
func (l *lifecycle) isStopped() bool {
	return l.done.Load()
}

// coalesce collects keys from in and hands the distinct, sorted set to
// flush once delay has passed. With extend set every new key restarts the
// delay (trailing debounce); otherwise the window is fixed from the first
// key, so a steady stream of changes still produces regular batches.
func coalesce(l *lifecycle, in <-chan string, delay time.Duration, extend bool, flush func([]string)) {
	pending := make(map[string]struct{})
	timer := time.NewTimer(delay)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-l.stopCh:
			timer.Stop()
			return
		case key := <-in:
			pending[key] = struct{}{}
			if fire == nil || extend {
				timer.Reset(delay)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			keys := make([]string, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			clear(pending)
			sort.Strings(keys)
			if l.isStopped() {
				return
			}
			flush(keys)
		}
	}
}

// send hands key to the delivery goroutine unless the watcher stops first.
func send(l *lifecycle, out chan<- string, key string) {
	select {
	case out <- key:
	case <-l.stopCh:
	}
}
