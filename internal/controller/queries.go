package controller

import (
	"context"
	"fmt"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/changes"
)

// UnstagedOptions tune UnstagedChanges.
type UnstagedOptions struct {
	// ShowIgnored includes ignored files. A cached list computed with a
	// different value is recomputed.
	ShowIgnored bool

	// RecurseUntracked lists files inside untracked directories.
	RecurseUntracked bool

	// UseCache allows a cached list to be returned.
	UseCache bool
}

// StagedChanges returns the HEAD to index change list.
func (c *Controller) StagedChanges(ctx context.Context) ([]git.FileChange, error) {
	if list, ok := c.cache.Staged(); ok {
		return list, nil
	}
	return shared(ctx, c, "staged", func() ([]git.FileChange, error) {
		gen := c.cache.Generation()
		list, err := c.changes.Changes(changes.Staged, changes.Options{})
		if err != nil {
			return nil, err
		}
		c.cache.SetStaged(gen, list)
		return list, nil
	})
}

// AmendingStagedChanges returns the change list of HEAD's parent against
// the index.
func (c *Controller) AmendingStagedChanges(ctx context.Context) ([]git.FileChange, error) {
	if list, ok := c.cache.Amend(); ok {
		return list, nil
	}
	return shared(ctx, c, "amend", func() ([]git.FileChange, error) {
		gen := c.cache.Generation()
		list, err := c.changes.Changes(changes.AmendingStaged, changes.Options{})
		if err != nil {
			return nil, err
		}
		c.cache.SetAmend(gen, list)
		return list, nil
	})
}

// UnstagedChanges returns the index to working tree change list.
func (c *Controller) UnstagedChanges(ctx context.Context, opts UnstagedOptions) ([]git.FileChange, error) {
	if opts.UseCache {
		if list, ok := c.cache.Unstaged(opts.ShowIgnored); ok {
			return list, nil
		}
	}
	key := fmt.Sprintf("unstaged:%t:%t", opts.ShowIgnored, opts.RecurseUntracked)
	return shared(ctx, c, key, func() ([]git.FileChange, error) {
		gen := c.cache.Generation()
		list, err := c.changes.Changes(changes.Unstaged, changes.Options{
			ShowIgnored:      opts.ShowIgnored,
			RecurseUntracked: opts.RecurseUntracked,
		})
		if err != nil {
			return nil, err
		}
		c.cache.SetUnstaged(gen, list, opts.ShowIgnored)
		return list, nil
	})
}

// FileStatus returns the (index, workspace) status of one path. baseline
// is the commit the index is compared with; "" means HEAD. Failures
// degrade to unmodified.
func (c *Controller) FileStatus(ctx context.Context, path string, show git.StatusShow, baseline string) (index, workspace git.DeltaStatus) {
	pair, err := call(ctx, c, func() ([2]git.DeltaStatus, error) {
		i, w := c.changes.FileStatus(path, show, baseline)
		return [2]git.DeltaStatus{i, w}, nil
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("file status")
		return git.Unmodified, git.Unmodified
	}
	return pair[0], pair[1]
}

// StagedStatus is the HEAD to index status of path.
func (c *Controller) StagedStatus(ctx context.Context, path string) git.DeltaStatus {
	return c.status(ctx, path, c.changes.StagedStatus)
}

// UnstagedStatus is the index to working tree status of path.
func (c *Controller) UnstagedStatus(ctx context.Context, path string) git.DeltaStatus {
	return c.status(ctx, path, c.changes.UnstagedStatus)
}

// AmendingStagedStatus is the status of path between HEAD's parent and
// the index.
func (c *Controller) AmendingStagedStatus(ctx context.Context, path string) git.DeltaStatus {
	return c.status(ctx, path, c.changes.AmendingStagedStatus)
}

// AmendingUnstagedStatus is the working tree status of path while amending.
func (c *Controller) AmendingUnstagedStatus(ctx context.Context, path string) git.DeltaStatus {
	return c.status(ctx, path, c.changes.AmendingUnstagedStatus)
}

func (c *Controller) status(ctx context.Context, path string, fn func(string) git.DeltaStatus) git.DeltaStatus {
	s, err := call(ctx, c, func() (git.DeltaStatus, error) {
		return fn(path), nil
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("file status")
		return git.Unmodified
	}
	return s
}

// StagingChanges lists every path in the staging area with its staged
// status and rename destination.
func (c *Controller) StagingChanges(ctx context.Context, amend bool) ([]git.FileStagingChange, error) {
	return call(ctx, c, func() ([]git.FileStagingChange, error) {
		return c.changes.StagingChanges(amend), nil
	})
}

// ChangesFor lists files changed by sha against parentID ("" for the
// first parent). git.StagingSHA selects the staging area.
func (c *Controller) ChangesFor(ctx context.Context, sha, parentID string) ([]git.FileChange, error) {
	return call(ctx, c, func() ([]git.FileChange, error) {
		return c.changes.ChangesFor(sha, parentID), nil
	})
}

// DiffFor returns the cached diff of sha against parentID. The diff is
// shared with the cache; call Clone before modifying it.
func (c *Controller) DiffFor(ctx context.Context, sha, parentID string) (*git.Diff, error) {
	return call(ctx, c, func() (*git.Diff, error) {
		return c.diffs.DiffFor(sha, parentID)
	})
}

// StagedDiff returns the HEAD to index diff of path.
func (c *Controller) StagedDiff(ctx context.Context, path string) (*git.FileDiff, error) {
	return call(ctx, c, func() (*git.FileDiff, error) {
		return c.files.StagedDiff(path)
	})
}

// UnstagedDiff returns the index to working tree diff of path.
func (c *Controller) UnstagedDiff(ctx context.Context, path string) (*git.FileDiff, error) {
	return call(ctx, c, func() (*git.FileDiff, error) {
		return c.files.UnstagedDiff(path)
	})
}

// AmendingStagedDiff returns the diff of path between HEAD's parent and
// the index.
func (c *Controller) AmendingStagedDiff(ctx context.Context, path string) (*git.FileDiff, error) {
	return call(ctx, c, func() (*git.FileDiff, error) {
		return c.files.AmendingStagedDiff(path)
	})
}

// CommitFileDiff returns the diff of path in commit sha against parentID.
func (c *Controller) CommitFileDiff(ctx context.Context, sha, parentID, path string) (*git.FileDiff, error) {
	return call(ctx, c, func() (*git.FileDiff, error) {
		return c.files.CommitFileDiff(sha, parentID, path)
	})
}

// IsTextFile reports whether path holds UTF-8 text in the given context.
func (c *Controller) IsTextFile(ctx context.Context, path string, where changes.TextContext, commitID string) bool {
	ok, err := call(ctx, c, func() (bool, error) {
		return c.changes.IsTextFile(path, where, commitID), nil
	})
	return err == nil && ok
}

// IsIgnored reports whether path matches the ignore rules.
func (c *Controller) IsIgnored(ctx context.Context, path string) bool {
	ok, err := call(ctx, c, func() (bool, error) {
		return c.changes.IsIgnored(path), nil
	})
	return err == nil && ok
}

// InvalidateIndex drops the cached staged, amend and unstaged lists.
func (c *Controller) InvalidateIndex() {
	c.cache.ClearIndex()
}

// InvalidateDiffs drops every cached commit diff. Call it after history
// is rewritten.
func (c *Controller) InvalidateDiffs() {
	c.diffs.Cache().InvalidateAll()
}
