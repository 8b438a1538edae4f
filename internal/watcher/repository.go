package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RepoChange classifies a change inside the git directory.
type RepoChange uint8

const (
	// HeadChanged means HEAD was rewritten (checkout, detach).
	HeadChanged RepoChange = iota
	// IndexChanged means the index file was rewritten.
	IndexChanged
	// RefLogChanged means logs/HEAD was appended to.
	RefLogChanged
	// RefsChanged means a ref under refs/ or packed-refs changed.
	RefsChanged
	// StashChanged means the stash ref or its log changed.
	StashChanged
)

var repoChangeNames = [...]string{
	HeadChanged:   "head",
	IndexChanged:  "index",
	RefLogChanged: "reflog",
	RefsChanged:   "refs",
	StashChanged:  "stash",
}

func (c RepoChange) String() string {
	if int(c) < len(repoChangeNames) {
		return repoChangeNames[c]
	}
	return fmt.Sprintf("change(%d)", c)
}

func parseRepoChange(name string) (RepoChange, bool) {
	for i, n := range repoChangeNames {
		if n == name {
			return RepoChange(i), true
		}
	}
	return 0, false
}

// ClassifyGitPath maps a slash separated path relative to the git
// directory to the change it signals. Lock files count as their target.
func ClassifyGitPath(rel string) (RepoChange, bool) {
	rel = strings.TrimSuffix(rel, ".lock")
	switch {
	case rel == "HEAD":
		return HeadChanged, true
	case rel == "index":
		return IndexChanged, true
	case rel == "logs/HEAD":
		return RefLogChanged, true
	case rel == "refs/stash", rel == "logs/refs/stash":
		return StashChanged, true
	case rel == "packed-refs", strings.HasPrefix(rel, "refs/"):
		return RefsChanged, true
	}
	return 0, false
}

// RepositoryCallback receives one classified change.
type RepositoryCallback func(change RepoChange)

// RepositoryWatcher watches the git directory itself, refs/ recursively and
// logs/ recursively. Changes are debounced per kind (default 100ms) and
// delivered in kind order.
type RepositoryWatcher struct {
	callback RepositoryCallback
	config   Config
	life     *lifecycle
	tree     *dirTree
	events   chan string
}

// NewRepositoryWatcher creates a watcher for the git directory gitDir.
func NewRepositoryWatcher(gitDir string, callback RepositoryCallback, opts ...Option) (*RepositoryWatcher, error) {
	cfg := buildConfig(100*time.Millisecond, opts)

	abs, err := filepath.Abs(gitDir)
	if err != nil {
		return nil, err
	}
	if !isDir(abs) {
		return nil, fmt.Errorf("git dir %s: %w", abs, ErrPathNotExist)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &RepositoryWatcher{
		callback: callback,
		config:   cfg,
		life:     newLifecycle(),
		events:   make(chan string, cfg.BufferSize),
	}
	w.tree = &dirTree{
		fsw:    fsw,
		root:   abs,
		skip:   w.skip,
		logger: cfg.Logger.With().Str("component", "watcher").Str("gitdir", abs).Logger(),
	}
	for _, sub := range []string{"refs", "logs"} {
		if p := filepath.Join(abs, sub); isDir(p) {
			w.tree.add(p)
		}
	}
	return w, nil
}

// Start begins delivering changes.
func (w *RepositoryWatcher) Start() error {
	return w.life.start(w.read, func() {
		coalesce(w.life, w.events, w.config.Debounce, true, w.flush)
	})
}

// Stop releases the watcher.
func (w *RepositoryWatcher) Stop() error {
	return w.life.stop(w.tree.fsw.Close)
}

// skip keeps the walk inside refs/ and logs/.
func (w *RepositoryWatcher) skip(rel string, dir bool) bool {
	return dir && rel != "refs" && rel != "logs" &&
		!strings.HasPrefix(rel, "refs/") && !strings.HasPrefix(rel, "logs/")
}

func (w *RepositoryWatcher) read() {
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

func (w *RepositoryWatcher) handle(ev fsnotify.Event) {
	rel := w.tree.rel(ev.Name)
	if rel == "" || convertOp(ev.Op) == 0 {
		return
	}
	if ev.Op.Has(fsnotify.Create) && isDir(ev.Name) {
		if !w.skip(rel, true) {
			for _, f := range w.tree.add(ev.Name) {
				w.classify(f)
			}
		}
		return
	}
	w.classify(rel)
}

func (w *RepositoryWatcher) classify(rel string) {
	if change, ok := ClassifyGitPath(rel); ok {
		send(w.life, w.events, change.String())
	}
}

func (w *RepositoryWatcher) flush(names []string) {
	changes := make([]RepoChange, 0, len(names))
	for _, n := range names {
		if c, ok := parseRepoChange(n); ok {
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i] < changes[j] })
	for _, c := range changes {
		if w.life.isStopped() {
			return
		}
		w.callback(c)
	}
}

var _ Handle = (*RepositoryWatcher)(nil)
