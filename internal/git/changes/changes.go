// Package changes computes file level change sets for a repository:
// HEAD against index (staged), index against working tree (unstaged), and
// the amend variants that use HEAD's parent as the baseline.
//
// Status queries are best effort. A backend failure is logged and yields
// unmodified or empty results instead of an error, so status display never
// fails a caller.
package changes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
)

// Mode selects the pair of snapshots being compared.
type Mode uint8

const (
	// Staged compares HEAD with the index.
	Staged Mode = iota
	// Unstaged compares the index with the working tree.
	Unstaged
	// AmendingStaged compares HEAD's parent with the index.
	AmendingStaged
	// AmendingUnstaged compares the index with the working tree using the
	// amend baseline.
	AmendingUnstaged
)

func (m Mode) String() string {
	switch m {
	case Staged:
		return "staged"
	case Unstaged:
		return "unstaged"
	case AmendingStaged:
		return "amending-staged"
	case AmendingUnstaged:
		return "amending-unstaged"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// Options tune an unstaged scan.
type Options struct {
	// ShowIgnored includes ignored paths, recursing into ignored directories.
	ShowIgnored bool

	// RecurseUntracked lists files inside untracked directories instead of
	// reporting the directory once.
	RecurseUntracked bool
}

// DiffSource supplies commit diffs, normally a cached differ.
type DiffSource interface {
	DiffFor(sha, parentID string) (*git.Diff, error)
}

// Computer produces change sets from a backend.
type Computer struct {
	backend backend.Backend
	diffs   DiffSource
	logger  zerolog.Logger
}

// Option configures a Computer.
type Option func(*Computer)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Computer) {
		c.logger = l.With().Str("component", "changes").Logger()
	}
}

// WithDiffSource sets where commit diffs come from for ChangesFor.
func WithDiffSource(d DiffSource) Option {
	return func(c *Computer) {
		c.diffs = d
	}
}

// New creates a Computer.
func New(b backend.Backend, opts ...Option) *Computer {
	c := &Computer{
		backend: b,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Changes lists the changed paths for mode in path order.
// Modes outside the four defined values return git.ErrUnexpected.
func (c *Computer) Changes(mode Mode, opts Options) ([]git.FileChange, error) {
	var scan git.StatusOptions
	switch mode {
	case Staged:
		scan = git.StatusOptions{Show: git.ShowIndexOnly}
	case AmendingStaged:
		scan = git.StatusOptions{Show: git.ShowIndexOnly, Baseline: c.amendBaseline()}
	case Unstaged, AmendingUnstaged:
		scan = git.StatusOptions{
			Show:                 git.ShowWorkdirOnly,
			IncludeUntracked:     true,
			IncludeIgnored:       opts.ShowIgnored,
			RecurseIgnoredDirs:   opts.ShowIgnored && opts.RecurseUntracked,
			RecurseUntrackedDirs: opts.RecurseUntracked,
		}
		if mode == AmendingUnstaged {
			scan.Baseline = c.amendBaseline()
		}
	default:
		return nil, fmt.Errorf("change set %s: %w", mode, git.ErrUnexpected)
	}

	entries, err := c.backend.StatusScan(scan)
	if err != nil {
		c.logger.Debug().Err(err).Stringer("mode", mode).Msg("status scan failed")
		return []git.FileChange{}, nil
	}

	classify := git.StatusFromWorkdirFlags
	if scan.Show == git.ShowIndexOnly {
		classify = git.StatusFromIndexFlags
	}
	changes := make([]git.FileChange, 0, len(entries))
	for _, e := range entries {
		status := classify(e.Flags)
		if status == git.Unmodified {
			continue
		}
		changes = append(changes, git.FileChange{Path: e.Path, Status: status})
	}
	return changes, nil
}

// amendBaseline returns HEAD's first parent, or the empty tree when HEAD is
// missing or a root commit.
func (c *Computer) amendBaseline() string {
	head, err := c.backend.HeadCommit()
	if err != nil {
		if !errors.Is(err, git.ErrNoHead) {
			c.logger.Debug().Err(err).Msg("resolving HEAD for amend baseline")
		}
		return git.EmptyTreeID
	}
	if parent := head.FirstParent(); parent != "" {
		return parent
	}
	return git.EmptyTreeID
}

// FileStatus returns the (index, workspace) status pair of a single path
// without scanning the rest of the repository. baseline selects the commit
// the index is compared with; "" means HEAD.
func (c *Computer) FileStatus(path string, show git.StatusShow, baseline string) (index, workspace git.DeltaStatus) {
	entries, err := c.backend.StatusScan(git.StatusOptions{
		Show:                 show,
		Baseline:             baseline,
		IncludeUntracked:     true,
		IncludeIgnored:       true,
		RecurseUntrackedDirs: true,
		RecurseIgnoredDirs:   true,
		IncludeUnmodified:    true,
		Pathspec:             []string{path},
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("file status failed")
		return git.Unmodified, git.Unmodified
	}
	for _, e := range entries {
		if e.Path != path {
			continue
		}
		if show != git.ShowWorkdirOnly {
			index = e.IndexStatus()
		}
		if show != git.ShowIndexOnly {
			workspace = e.WorkdirStatus()
		}
		return index, workspace
	}
	return git.Unmodified, git.Unmodified
}

// StagedStatus is the HEAD to index status of path.
func (c *Computer) StagedStatus(path string) git.DeltaStatus {
	index, _ := c.FileStatus(path, git.ShowIndexOnly, "")
	return index
}

// UnstagedStatus is the index to working tree status of path.
func (c *Computer) UnstagedStatus(path string) git.DeltaStatus {
	_, workspace := c.FileStatus(path, git.ShowWorkdirOnly, "")
	return workspace
}

// AmendingStagedStatus is the HEAD's parent to index status of path.
func (c *Computer) AmendingStagedStatus(path string) git.DeltaStatus {
	index, _ := c.FileStatus(path, git.ShowIndexOnly, c.amendBaseline())
	return index
}

// AmendingUnstagedStatus is the index to working tree status of path while
// amending.
func (c *Computer) AmendingUnstagedStatus(path string) git.DeltaStatus {
	_, workspace := c.FileStatus(path, git.ShowWorkdirOnly, c.amendBaseline())
	return workspace
}

// StagingChanges lists every path touched in the staging area, with the
// baseline to index status. Paths only changed in the working tree are
// included as unmodified so callers can show them next to staged ones.
func (c *Computer) StagingChanges(amend bool) []git.FileStagingChange {
	opts := git.StatusOptions{
		Show:                 git.ShowIndexAndWorkdir,
		IncludeUntracked:     true,
		RecurseUntrackedDirs: true,
	}
	if amend {
		opts.Baseline = c.amendBaseline()
	}
	entries, err := c.backend.StatusScan(opts)
	if err != nil {
		c.logger.Debug().Err(err).Msg("staging scan failed")
		return []git.FileStagingChange{}
	}

	out := make([]git.FileStagingChange, 0, len(entries))
	for _, e := range entries {
		out = append(out, git.FileStagingChange{
			FileChange:      git.FileChange{Path: e.OldPath, Status: e.IndexStatus()},
			DestinationPath: e.Path,
		})
	}
	return out
}

// ChangesFor lists the files changed by commit sha relative to parentID
// ("" for the first parent). git.StagingSHA selects the staging area.
func (c *Computer) ChangesFor(sha, parentID string) []git.FileChange {
	if sha == git.StagingSHA {
		staging := c.StagingChanges(false)
		out := make([]git.FileChange, len(staging))
		for i, s := range staging {
			out[i] = git.FileChange{Path: s.DestinationPath, Status: s.Status}
		}
		return out
	}
	if c.diffs == nil {
		return []git.FileChange{}
	}
	d, err := c.diffs.DiffFor(sha, parentID)
	if err != nil {
		c.logger.Debug().Err(err).Str("sha", sha).Msg("commit diff failed")
		return []git.FileChange{}
	}
	return d.Changes()
}

// TextContext names where IsTextFile reads content from.
type TextContext uint8

const (
	// TextWorkspace reads the working tree file.
	TextWorkspace TextContext = iota
	// TextIndex reads the staged blob.
	TextIndex
	// TextCommit reads the blob recorded in a commit.
	TextCommit
)

// IsTextFile reports whether the content of path in the given context is
// UTF-8 text. commitID is only used with TextCommit.
func (c *Computer) IsTextFile(path string, ctx TextContext, commitID string) bool {
	data, err := c.content(path, ctx, commitID)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("reading content for text check")
		return false
	}
	return git.IsText(data)
}

func (c *Computer) content(path string, ctx TextContext, commitID string) ([]byte, error) {
	switch ctx {
	case TextWorkspace:
		return os.ReadFile(filepath.Join(c.backend.Workdir(), filepath.FromSlash(path)))
	case TextIndex:
		ix, err := c.backend.OpenIndex()
		if err != nil {
			return nil, err
		}
		e, err := ix.Entry(path)
		if err != nil {
			return nil, err
		}
		return c.backend.BlobData(e.ID)
	case TextCommit:
		e, err := c.backend.TreeEntry(commitID, path)
		if err != nil {
			return nil, err
		}
		return c.backend.BlobData(e.ID)
	default:
		return nil, git.ErrUnexpected
	}
}

// IsIgnored reports whether path matches the repository's ignore rules.
func (c *Computer) IsIgnored(path string) bool {
	return c.backend.IsIgnored(path)
}
