// Package staging moves whole files between the working tree, the index and
// HEAD: stage, unstage, revert, and their amend variants.
//
// Every operation notifies the invalidator when it returns, whether it
// succeeded or not, since a partial failure may still have touched the
// index or working tree.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
)

// StatusReader is the status surface staging decisions are based on.
type StatusReader interface {
	FileStatus(path string, show git.StatusShow, baseline string) (index, workspace git.DeltaStatus)
	AmendingStagedStatus(path string) git.DeltaStatus
	AmendingUnstagedStatus(path string) git.DeltaStatus
}

// Stager performs whole-file staging operations.
type Stager struct {
	backend     backend.Backend
	status      StatusReader
	invalidator git.Invalidator
	logger      zerolog.Logger
}

// Option configures a Stager.
type Option func(*Stager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stager) {
		s.logger = l.With().Str("component", "staging").Logger()
	}
}

// WithInvalidator sets who is told about index changes.
func WithInvalidator(inv git.Invalidator) Option {
	return func(s *Stager) {
		s.invalidator = inv
	}
}

// New creates a Stager.
func New(b backend.Backend, status StatusReader, opts ...Option) *Stager {
	s := &Stager{
		backend: b,
		status:  status,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInvalidator replaces the invalidator. It must be called before the
// Stager is shared.
func (s *Stager) SetInvalidator(inv git.Invalidator) {
	s.invalidator = inv
}

func (s *Stager) invalidate() {
	if s.invalidator != nil {
		s.invalidator.InvalidateIndex()
	}
}

// edit opens the index, runs fn and saves the result.
func (s *Stager) edit(op, path string, fn func(backend.Index) error) error {
	ix, err := s.backend.OpenIndex()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	if err := fn(ix); err != nil {
		s.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("index edit failed")
		return err
	}
	return ix.Save()
}

// Stage adds the working tree version of path to the index. A path that no
// longer exists is removed from the index instead.
func (s *Stager) Stage(path string) error {
	defer s.invalidate()

	return s.edit("stage", path, func(ix backend.Index) error {
		if s.inWorkdir(path) {
			return ix.AddPath(path)
		}
		return ix.Remove(path)
	})
}

// Unstage resets the index entry of path to HEAD. Paths HEAD does not have,
// and every path in a repository without commits, are dropped.
func (s *Stager) Unstage(path string) error {
	defer s.invalidate()

	head, err := s.backend.HeadCommit()
	if err != nil && !errors.Is(err, git.ErrNoHead) {
		return err
	}
	return s.edit("unstage", path, func(ix backend.Index) error {
		if err := ix.Remove(path); err != nil {
			return err
		}
		if head == nil {
			return nil
		}
		err := ix.AddFromTree(head.ID, path)
		if errors.Is(err, git.ErrFileNotFound) {
			return nil
		}
		return err
	})
}

// Revert discards working tree changes to path. Untracked files are
// deleted; tracked ones are restored from HEAD, recreating missing files.
func (s *Stager) Revert(path string) error {
	defer s.invalidate()

	_, workspace := s.status.FileStatus(path, git.ShowWorkdirOnly, "")
	if workspace == git.Untracked {
		if err := os.RemoveAll(s.abs(path)); err != nil {
			return fmt.Errorf("revert %s: %w", path, err)
		}
		return nil
	}
	return s.backend.CheckoutPaths([]string{path}, backend.CheckoutForce|backend.CheckoutRecreateMissing)
}

// StageAll stages every working tree change, like `git add --all`:
// modified and untracked files are added, deleted ones removed. Ignored
// files are left alone.
func (s *Stager) StageAll() error {
	defer s.invalidate()

	entries, err := s.backend.StatusScan(git.StatusOptions{
		Show:                 git.ShowWorkdirOnly,
		IncludeUntracked:     true,
		RecurseUntrackedDirs: true,
	})
	if err != nil {
		return fmt.Errorf("stage all: %w", err)
	}
	return s.edit("stage all", ".", func(ix backend.Index) error {
		for _, e := range entries {
			var err error
			if e.Flags.Has(git.WorkdirDeleted) {
				err = ix.Remove(e.Path)
			} else {
				err = ix.AddPath(e.Path)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// UnstageAll resets the whole index to HEAD, or empties it when there is
// no HEAD.
func (s *Stager) UnstageAll() error {
	defer s.invalidate()

	head, err := s.backend.HeadCommit()
	if err != nil && !errors.Is(err, git.ErrNoHead) {
		return err
	}
	return s.edit("unstage all", ".", func(ix backend.Index) error {
		if head == nil {
			ix.Clear()
			return nil
		}
		return ix.ReadTree(head.ID)
	})
}

// AmendStage stages path while amending, based on its status against the
// amend baseline.
func (s *Stager) AmendStage(path string) error {
	defer s.invalidate()

	switch status := s.status.AmendingUnstagedStatus(path); status {
	case git.Modified, git.Added, git.Untracked:
		return s.edit("amend stage", path, func(ix backend.Index) error {
			return ix.AddPath(path)
		})
	case git.Deleted:
		return s.edit("amend stage", path, func(ix backend.Index) error {
			return ix.Remove(path)
		})
	default:
		return fmt.Errorf("amend stage %s with status %s: %w", path, status, git.ErrUnexpected)
	}
}

// AmendUnstage unstages path while amending: the index entry goes back to
// the version in HEAD's parent, or is dropped if the amended commit adds
// the file.
func (s *Stager) AmendUnstage(path string) error {
	defer s.invalidate()

	switch status := s.status.AmendingStagedStatus(path); status {
	case git.Added:
		return s.edit("amend unstage", path, func(ix backend.Index) error {
			return ix.Remove(path)
		})
	case git.Modified, git.Deleted:
		parent, err := s.amendParent()
		if err != nil {
			return err
		}
		return s.edit("amend unstage", path, func(ix backend.Index) error {
			return ix.AddFromTree(parent, path)
		})
	default:
		return fmt.Errorf("amend unstage %s with status %s: %w", path, status, git.ErrUnexpected)
	}
}

func (s *Stager) amendParent() (string, error) {
	head, err := s.backend.HeadCommit()
	if errors.Is(err, git.ErrNoHead) {
		return "", &git.CommitNotFoundError{ID: "HEAD"}
	}
	if err != nil {
		return "", err
	}
	parent := head.FirstParent()
	if parent == "" {
		return "", &git.CommitNotFoundError{ID: head.ID + "^"}
	}
	return parent, nil
}

func (s *Stager) abs(path string) string {
	return filepath.Join(s.backend.Workdir(), filepath.FromSlash(path))
}

func (s *Stager) inWorkdir(path string) bool {
	_, err := os.Lstat(s.abs(path))
	return err == nil
}
