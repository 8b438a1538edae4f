package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// dirTree adds every directory under a root to one fsnotify watcher, since
// fsnotify only reports the immediate children of a watched directory.
type dirTree struct {
	fsw    *fsnotify.Watcher
	root   string
	skip   func(rel string, isDir bool) bool
	logger zerolog.Logger
}

// rel returns the slash separated path of abs below the root, or "" for
// the root itself and for paths outside it.
func (t *dirTree) rel(abs string) string {
	r, err := filepath.Rel(t.root, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return ""
	}
	return filepath.ToSlash(r)
}

// add watches dir and its subdirectories. It returns the relative paths of
// the files found, so callers can report files created before the watch
// was in place.
func (t *dirTree) add(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := t.rel(p)
		if rel != "" && t.skip != nil && t.skip(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
			return nil
		}
		if err := t.fsw.Add(p); err != nil {
			t.logger.Warn().Err(err).Str("dir", p).Msg("cannot watch directory")
		}
		return nil
	})
	return files
}

// isDir reports whether abs is currently a directory.
func isDir(abs string) bool {
	info, err := os.Lstat(abs)
	return err == nil && info.IsDir()
}
