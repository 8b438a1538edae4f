package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// WorkspaceCallback receives the sorted, distinct working tree paths
// (relative, slash separated) changed during one debounce window.
type WorkspaceCallback func(paths []string)

// WorkspaceWatcher watches a working tree recursively. The .git directory
// and paths matching the ignore patterns are skipped; directories created
// later are watched as they appear.
type WorkspaceWatcher struct {
	callback WorkspaceCallback
	config   Config
	life     *lifecycle
	tree     *dirTree
	matcher  gitignore.Matcher
	events   chan string
}

// NewWorkspaceWatcher creates a watcher rooted at the working tree root.
// The default debounce window is 200ms.
func NewWorkspaceWatcher(root string, callback WorkspaceCallback, opts ...Option) (*WorkspaceWatcher, error) {
	cfg := buildConfig(200*time.Millisecond, opts)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if !isDir(abs) {
		return nil, fmt.Errorf("workspace %s: %w", abs, ErrPathNotExist)
	}

	patterns := make([]gitignore.Pattern, 0, len(cfg.IgnorePatterns))
	for _, p := range cfg.IgnorePatterns {
		if p = strings.TrimSpace(p); p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &WorkspaceWatcher{
		callback: callback,
		config:   cfg,
		life:     newLifecycle(),
		matcher:  gitignore.NewMatcher(patterns),
		events:   make(chan string, cfg.BufferSize),
	}
	w.tree = &dirTree{
		fsw:    fsw,
		root:   abs,
		skip:   w.skip,
		logger: cfg.Logger.With().Str("component", "watcher").Str("workspace", abs).Logger(),
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	w.tree.add(abs)
	return w, nil
}

// Start begins delivering batches.
func (w *WorkspaceWatcher) Start() error {
	return w.life.start(w.read, func() {
		coalesce(w.life, w.events, w.config.Debounce, false, w.callback)
	})
}

// Stop releases the watcher.
func (w *WorkspaceWatcher) Stop() error {
	return w.life.stop(w.tree.fsw.Close)
}

func (w *WorkspaceWatcher) skip(rel string, dir bool) bool {
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	return w.matcher.Match(strings.Split(rel, "/"), dir)
}

func (w *WorkspaceWatcher) read() {
	fsw := w.tree.fsw
	for {
		select {
		case <-w.life.stopCh:
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.tree.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *WorkspaceWatcher) handle(ev fsnotify.Event) {
	rel := w.tree.rel(ev.Name)
	if rel == "" || convertOp(ev.Op) == 0 {
		return
	}
	dir := ev.Op.Has(fsnotify.Create) && isDir(ev.Name)
	if w.skip(rel, dir) {
		return
	}

	send(w.life, w.events, rel)
	if dir {
		for _, f := range w.tree.add(ev.Name) {
			send(w.life, w.events, f)
		}
	}
}

// Root returns the watched working tree root.
func (w *WorkspaceWatcher) Root() string {
	return w.tree.root
}

var _ Handle = (*WorkspaceWatcher)(nil)

