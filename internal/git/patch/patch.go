// Package patch stages and unstages individual hunks by rewriting the
// index blob of a file, and renders per-file textual diffs between HEAD,
// the index and the working tree.
//
// # Hunk application
//
// ApplyHunk edits only the index. Staging applies a hunk taken from the
// index to working tree diff; unstaging reverse-applies a hunk taken from
// the HEAD to index diff. Hunks that touch the start of a file may stand
// for a whole-file change (a new, deleted or unstaged-deleted file); those
// are delegated to whole-file staging instead of being applied as text.
package patch

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
)

// StatusReader reports the (index, workspace) status pair of a path.
type StatusReader interface {
	FileStatus(path string, show git.StatusShow, baseline string) (index, workspace git.DeltaStatus)
}

// FileStager stages and unstages whole files.
type FileStager interface {
	Stage(path string) error
	Unstage(path string) error
}

// Applier applies hunks to the index.
type Applier struct {
	backend     backend.Backend
	status      StatusReader
	stager      FileStager
	invalidator git.Invalidator
	logger      zerolog.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Applier) {
		a.logger = l.With().Str("component", "patch").Logger()
	}
}

// NewApplier creates an Applier. inv may be nil.
func NewApplier(b backend.Backend, status StatusReader, stager FileStager, inv git.Invalidator, opts ...Option) *Applier {
	a := &Applier{
		backend:     b,
		status:      status,
		stager:      stager,
		invalidator: inv,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ApplyHunk stages (stage=true) or unstages hunk for path. The invalidator
// is notified on every return path.
func (a *Applier) ApplyHunk(path string, hunk git.Hunk, stage bool) error {
	defer a.invalidate()

	err := a.applyHunk(path, hunk, stage)
	if err != nil {
		a.logger.Debug().Err(err).Str("path", path).Bool("stage", stage).Msg("apply hunk failed")
	}
	return err
}

func (a *Applier) applyHunk(path string, hunk git.Hunk, stage bool) error {
	indexStatus, workspaceStatus := a.status.FileStatus(path, git.ShowIndexAndWorkdir, "")

	ix, err := a.backend.OpenIndex()
	if err != nil {
		return fmt.Errorf("apply hunk to %s: %w: %w", path, git.ErrUnexpected, err)
	}

	entry, err := ix.Entry(path)
	if err != nil {
		if !errors.Is(err, git.ErrFileNotFound) {
			return err
		}
		switch {
		case stage && workspaceStatus == git.Untracked && hunk.NewStart == 1:
			return a.stager.Stage(path)
		case !stage && indexStatus == git.Deleted && hunk.OldStart == 1:
			return a.stager.Unstage(path)
		}
		return fmt.Errorf("apply hunk to %s: %w", path, git.ErrPatchMismatch)
	}

	if hunk.CoversWholeFile() {
		if stage && workspaceStatus == git.Deleted {
			return a.stager.Stage(path)
		}
		if !stage && (indexStatus == git.Added || indexStatus == git.Deleted) {
			return a.stager.Unstage(path)
		}
	}

	data, err := a.backend.BlobData(entry.ID)
	if err != nil {
		return err
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("apply hunk to %s: staged content is not text: %w", path, git.ErrPatchMismatch)
	}

	patched, err := Apply(hunk, string(data), !stage)
	if err != nil {
		return fmt.Errorf("apply hunk to %s: %w", path, err)
	}
	if err := ix.AddData(path, []byte(patched)); err != nil {
		return err
	}
	return ix.Save()
}

func (a *Applier) invalidate() {
	if a.invalidator != nil {
		a.invalidator.InvalidateIndex()
	}
}
