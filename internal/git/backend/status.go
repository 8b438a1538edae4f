package backend

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/dshills/stagehand/internal/git"
)

type treeItem struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// scan holds the working state of one StatusScan call.
type scan struct {
	g       *GoGit
	opts    git.StatusOptions
	flags   map[string]git.StatusFlags
	tracked map[string]*index.Entry
	// dirs holds every directory that contains a tracked or conflicted path.
	dirs       map[string]bool
	conflicted map[string]bool
	seen       map[string]bool
	matcher    gitignore.Matcher
}

// StatusScan classifies paths across baseline tree, index and working tree.
// Entries are sorted by path.
func (g *GoGit) StatusScan(opts git.StatusOptions) ([]git.StatusEntry, error) {
	idx, err := g.readIndex()
	if err != nil {
		return nil, err
	}

	s := &scan{
		g:          g,
		opts:       opts,
		flags:      make(map[string]git.StatusFlags),
		tracked:    make(map[string]*index.Entry),
		dirs:       make(map[string]bool),
		conflicted: make(map[string]bool),
		seen:       make(map[string]bool),
	}
	for _, e := range idx.Entries {
		if e.Stage != stageMerged {
			s.conflicted[e.Name] = true
			s.flags[e.Name] |= git.FlagConflicted
		} else {
			s.tracked[e.Name] = e
		}
		for dir := parentDir(e.Name); dir != ""; dir = parentDir(dir) {
			s.dirs[dir] = true
		}
	}

	if opts.Show != git.ShowWorkdirOnly {
		if err := s.compareIndex(); err != nil {
			return nil, err
		}
	}
	if opts.Show != git.ShowIndexOnly {
		s.matcher = g.ignoreMatcher()
		if err := s.compareWorkdir(); err != nil {
			return nil, err
		}
	}

	return s.entries(), nil
}

// compareIndex sets index side flags from baseline tree against index.
func (s *scan) compareIndex() error {
	baseline, err := s.g.baselineItems(s.opts.Baseline, s.opts.Pathspec)
	if err != nil {
		return err
	}

	for p, b := range baseline {
		if s.conflicted[p] {
			continue
		}
		e, ok := s.tracked[p]
		switch {
		case !ok:
			s.flags[p] |= git.IndexDeleted
		case !kindOf(b.mode).SameType(kindOf(e.Mode)):
			s.flags[p] |= git.IndexTypeChange
		case b.hash != e.Hash || b.mode != e.Mode:
			s.flags[p] |= git.IndexModified
		default:
			s.flags[p] |= git.Current
		}
	}
	for p := range s.tracked {
		if !git.MatchesPathspec(p, s.opts.Pathspec) {
			continue
		}
		if _, ok := baseline[p]; !ok {
			s.flags[p] |= git.IndexNew
		}
	}
	return nil
}

// baselineItems flattens the tree of commitID, limited to spec when it is
// not empty. An empty id means HEAD, falling back to the empty tree on an
// unborn branch.
func (g *GoGit) baselineItems(commitID string, spec []string) (map[string]treeItem, error) {
	items := make(map[string]treeItem)
	if commitID == "" {
		head, err := g.HeadCommit()
		if errors.Is(err, git.ErrNoHead) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		commitID = head.ID
	}

	t, err := g.tree(commitID)
	if err != nil || t == nil {
		return items, err
	}
	if len(spec) == 0 {
		return items, addTreeFiles(items, t, "")
	}
	for _, p := range spec {
		p = strings.TrimSuffix(p, "/")
		if p == "" || p == "." {
			return items, addTreeFiles(items, t, "")
		}
		e, err := t.FindEntry(p)
		if err != nil {
			// Not in the baseline.
			continue
		}
		if e.Mode == filemode.Dir {
			sub, err := t.Tree(p)
			if err != nil {
				return nil, git.WrapBackend("read tree", git.CodeObjectRead, err)
			}
			if err := addTreeFiles(items, sub, p+"/"); err != nil {
				return nil, err
			}
			continue
		}
		if e.Mode.IsFile() {
			items[p] = treeItem{hash: e.Hash, mode: e.Mode}
		}
	}
	return items, nil
}

// addTreeFiles records every file below t, with names prefixed by prefix.
func addTreeFiles(items map[string]treeItem, t *object.Tree, prefix string) error {
	err := t.Files().ForEach(func(f *object.File) error {
		items[prefix+f.Name] = treeItem{hash: f.Hash, mode: f.Mode}
		return nil
	})
	if err != nil {
		return git.WrapBackend("walk baseline tree", git.CodeObjectRead, err)
	}
	return nil
}

// compareWorkdir walks the working tree and sets workdir side flags.
func (s *scan) compareWorkdir() error {
	root := s.g.workdir
	err := filepath.WalkDir(root, func(full string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, as git does.
			if d != nil && d.IsDir() && full != root {
				return filepath.SkipDir
			}
			return nil
		}
		if full == root {
			return nil
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			return s.visitDir(full, rel, d)
		}
		s.visitFile(full, rel, d)
		return nil
	})
	if err != nil {
		return git.WrapBackend("walk working tree", git.CodeWorktree, err)
	}

	for p := range s.tracked {
		if !s.seen[p] && git.MatchesPathspec(p, s.opts.Pathspec) {
			s.flags[p] |= git.WorkdirDeleted
		}
	}
	return nil
}

func (s *scan) visitDir(full, rel string, d fs.DirEntry) error {
	if d.Name() == ".git" {
		return filepath.SkipDir
	}
	if !dirMayMatch(rel, s.opts.Pathspec) {
		return filepath.SkipDir
	}
	if e, ok := s.tracked[rel]; ok && e.Mode == filemode.Submodule {
		s.seen[rel] = true
		return filepath.SkipDir
	}
	if s.dirs[rel] {
		return nil
	}

	// Nothing tracked lives below this directory.
	if s.matcher.Match(splitPath(rel), true) {
		switch {
		case !s.opts.IncludeIgnored:
			return filepath.SkipDir
		case !s.opts.RecurseIgnoredDirs:
			s.flags[rel+"/"] |= git.FlagIgnored
			return filepath.SkipDir
		}
		return nil
	}
	if !s.opts.IncludeUntracked && !s.opts.IncludeIgnored {
		return filepath.SkipDir
	}
	if !s.opts.RecurseUntrackedDirs {
		if s.opts.IncludeUntracked && s.hasUntrackedFile(full) {
			s.flags[rel+"/"] |= git.WorkdirNew
		}
		return filepath.SkipDir
	}
	return nil
}

func (s *scan) visitFile(full, rel string, d fs.DirEntry) {
	if !git.MatchesPathspec(rel, s.opts.Pathspec) {
		return
	}
	if s.conflicted[rel] {
		s.seen[rel] = true
		return
	}

	e, ok := s.tracked[rel]
	if !ok {
		if s.matcher.Match(splitPath(rel), false) {
			if s.opts.IncludeIgnored {
				s.flags[rel] |= git.FlagIgnored
			}
		} else if s.opts.IncludeUntracked {
			s.flags[rel] |= git.WorkdirNew
		}
		return
	}

	s.seen[rel] = true
	info, err := d.Info()
	if err != nil {
		s.flags[rel] |= git.WorkdirDeleted
		return
	}
	s.flags[rel] |= compareEntry(full, info, e)
}

// compareEntry classifies a working tree file against its index entry.
func compareEntry(full string, info os.FileInfo, e *index.Entry) git.StatusFlags {
	mode, err := filemode.NewFromOSFileMode(info.Mode())
	if err != nil {
		return git.WorkdirModified
	}
	if !kindOf(mode).SameType(kindOf(e.Mode)) {
		return git.WorkdirTypeChange
	}
	if mode != e.Mode {
		return git.WorkdirModified
	}
	if info.Mode().IsRegular() && info.Size() != int64(e.Size) {
		return git.WorkdirModified
	}
	data, err := readWorktreeFile(full, info)
	if err != nil {
		return git.WorkdirModified
	}
	if hashData(data) != e.Hash {
		return git.WorkdirModified
	}
	return git.Current
}

// hasUntrackedFile reports whether dir holds at least one file that is not
// ignored. Empty or fully ignored directories are not reported by git.
func (s *scan) hasUntrackedFile(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(full string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(s.g.workdir, full)
		if relErr != nil {
			return nil
		}
		parts := splitPath(filepath.ToSlash(rel))
		if d.IsDir() {
			if full != dir && s.matcher.Match(parts, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.matcher.Match(parts, false) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// entries filters the collected flags by show mode and sorts them.
func (s *scan) entries() []git.StatusEntry {
	out := make([]git.StatusEntry, 0, len(s.flags))
	for p, f := range s.flags {
		if !git.MatchesPathspec(p, s.opts.Pathspec) {
			continue
		}
		if !s.keep(f) {
			continue
		}
		out = append(out, git.StatusEntry{Path: p, OldPath: p, Flags: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *scan) keep(f git.StatusFlags) bool {
	if f == git.Current {
		return s.opts.IncludeUnmodified
	}
	if f.Has(git.FlagConflicted) {
		return true
	}
	switch s.opts.Show {
	case git.ShowIndexOnly:
		return f.HasIndexChange() || s.opts.IncludeUnmodified
	case git.ShowWorkdirOnly:
		return f.HasWorkdirChange() || f.Has(git.FlagIgnored) || s.opts.IncludeUnmodified
	default:
		return true
	}
}

// dirMayMatch reports whether a directory can contain paths selected by spec.
func dirMayMatch(dir string, spec []string) bool {
	if len(spec) == 0 {
		return true
	}
	for _, s := range spec {
		s = strings.TrimSuffix(s, "/")
		if s == "" || s == "." || s == dir ||
			strings.HasPrefix(s, dir+"/") || strings.HasPrefix(dir, s+"/") {
			return true
		}
	}
	return false
}

func parentDir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}
