package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileCallback receives the watched path and what happened to it.
type FileCallback func(path string, flags Flags)

// FileWatcher watches a single path. When the path is deleted or renamed
// away, its handle is closed and recreated as soon as the path exists
// again; if that takes more than one attempt a Link event is delivered on
// recovery.
type FileWatcher struct {
	path     string
	callback FileCallback
	config   Config
	logger   zerolog.Logger
	life     *lifecycle

	mu  sync.Mutex
	fsw *fsnotify.Watcher

	handoff chan Flags
}

// NewFileWatcher creates a watcher for path. It fails if path cannot be
// watched right now.
func NewFileWatcher(path string, callback FileCallback, opts ...Option) (*FileWatcher, error) {
	cfg := buildConfig(0, opts)
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}

	w := &FileWatcher{
		path:     abs,
		callback: callback,
		config:   cfg,
		logger:   cfg.Logger.With().Str("component", "watcher").Str("path", abs).Logger(),
		life:     newLifecycle(),
		handoff:  make(chan Flags, cfg.BufferSize),
	}
	fsw, err := w.open()
	if err != nil {
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Path returns the absolute watched path.
func (w *FileWatcher) Path() string {
	return w.path
}

// Start begins delivering events.
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return ErrStopped
	}
	return w.life.start(func() { w.read(fsw) }, w.deliver)
}

// Stop closes the handle. Calling Stop more than once is harmless.
func (w *FileWatcher) Stop() error {
	return w.life.stop(func() error {
		w.mu.Lock()
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		if fsw == nil {
			return nil
		}
		return fsw.Close()
	})
}

func (w *FileWatcher) open() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

// swap installs a recreated handle unless the watcher stopped meanwhile.
func (w *FileWatcher) swap(fsw *fsnotify.Watcher) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.life.isStopped() {
		fsw.Close()
		return false
	}
	w.fsw = fsw
	return true
}

func (w *FileWatcher) read(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.life.stopCh:
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			flags := convertOp(ev.Op)
			if flags == 0 {
				continue
			}
			w.emit(flags)
			if flags&(Delete|Rename) == 0 {
				continue
			}
			if fsw = w.recreate(fsw); fsw == nil {
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// recreate replaces a handle whose path went away, polling until the path
// can be watched again. It returns nil when the watcher stops first.
func (w *FileWatcher) recreate(old *fsnotify.Watcher) *fsnotify.Watcher {
	w.mu.Lock()
	if w.fsw == old {
		w.fsw = nil
	}
	w.mu.Unlock()
	old.Close()

	ticker := time.NewTicker(w.config.RecreateInterval)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		if fsw, err := w.open(); err == nil {
			if !w.swap(fsw) {
				return nil
			}
			if attempt > 0 {
				w.logger.Debug().Int("attempts", attempt+1).Msg("watch recreated")
				w.emit(Link)
			}
			return fsw
		}
		select {
		case <-w.life.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

func (w *FileWatcher) emit(flags Flags) {
	select {
	case w.handoff <- flags:
	case <-w.life.stopCh:
	}
}

func (w *FileWatcher) deliver() {
	for {
		select {
		case <-w.life.stopCh:
			return
		case flags := <-w.handoff:
			if w.life.isStopped() {
				return
			}
			w.callback(w.path, flags)
		}
	}
}

// ConfigWatcher signals changes to the repository configuration file. A
// burst of events (an editor save, `git config` rewriting through a lock
// file) yields a single callback once the file has been quiet for the
// debounce delay (default 100ms).
type ConfigWatcher struct {
	file     *FileWatcher
	callback func()
	config   Config
	life     *lifecycle
	events   chan string
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, callback func(), opts ...Option) (*ConfigWatcher, error) {
	cfg := buildConfig(100*time.Millisecond, opts)
	w := &ConfigWatcher{
		callback: callback,
		config:   cfg,
		life:     newLifecycle(),
		events:   make(chan string, cfg.BufferSize),
	}
	file, err := NewFileWatcher(path, func(string, Flags) {
		send(w.life, w.events, "config")
	}, opts...)
	if err != nil {
		return nil, err
	}
	w.file = file
	return w, nil
}

// Start begins delivering callbacks.
func (w *ConfigWatcher) Start() error {
	err := w.life.start(func() {}, func() {
		coalesce(w.life, w.events, w.config.Debounce, true, func([]string) {
			w.callback()
		})
	})
	if err != nil {
		return err
	}
	if err := w.file.Start(); err != nil {
		w.Stop()
		return err
	}
	return nil
}

// Stop releases the watcher.
func (w *ConfigWatcher) Stop() error {
	return w.life.stop(w.file.Stop)
}

var (
	_ Handle = (*FileWatcher)(nil)
	_ Handle = (*ConfigWatcher)(nil)
)
