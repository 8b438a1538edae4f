package patch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
)

// version is one side of a file diff.
type version struct {
	id      string
	data    []byte
	present bool
}

// FileDiffer renders textual diffs of single files.
type FileDiffer struct {
	backend backend.Backend
	context int
}

// NewFileDiffer creates a FileDiffer using context lines around changes.
// A negative context selects DefaultContext.
func NewFileDiffer(b backend.Backend, context int) *FileDiffer {
	if context < 0 {
		context = DefaultContext
	}
	return &FileDiffer{backend: b, context: context}
}

// StagedDiff compares HEAD's version of path with the index.
func (d *FileDiffer) StagedDiff(path string) (*git.FileDiff, error) {
	old, err := d.headVersion(path)
	if err != nil {
		return nil, err
	}
	cur, err := d.indexVersion(path)
	if err != nil {
		return nil, err
	}
	return d.build(path, old, cur), nil
}

// UnstagedDiff compares the index version of path with the working tree.
func (d *FileDiffer) UnstagedDiff(path string) (*git.FileDiff, error) {
	old, err := d.indexVersion(path)
	if err != nil {
		return nil, err
	}
	cur, err := d.workdirVersion(path)
	if err != nil {
		return nil, err
	}
	return d.build(path, old, cur), nil
}

// AmendingStagedDiff compares the version of path in HEAD's parent with
// the index. A root or missing HEAD compares with nothing.
func (d *FileDiffer) AmendingStagedDiff(path string) (*git.FileDiff, error) {
	var old version
	head, err := d.backend.HeadCommit()
	switch {
	case errors.Is(err, git.ErrNoHead):
	case err != nil:
		return nil, err
	default:
		if parent := head.FirstParent(); parent != "" {
			if old, err = d.commitVersion(parent, path); err != nil {
				return nil, err
			}
		}
	}
	cur, err := d.indexVersion(path)
	if err != nil {
		return nil, err
	}
	return d.build(path, old, cur), nil
}

// CommitFileDiff compares path between commit sha and parentID, or its
// first parent when parentID is empty.
func (d *FileDiffer) CommitFileDiff(sha, parentID, path string) (*git.FileDiff, error) {
	commit, err := d.backend.ResolveCommit(sha)
	if err != nil {
		return nil, err
	}
	base := parentID
	if base == "" {
		base = commit.FirstParent()
	} else if !commit.HasParent(base) {
		return nil, &git.CommitNotFoundError{ID: parentID}
	}

	var old version
	if base != "" {
		if old, err = d.commitVersion(base, path); err != nil {
			return nil, err
		}
	}
	cur, err := d.commitVersion(commit.ID, path)
	if err != nil {
		return nil, err
	}
	return d.build(path, old, cur), nil
}

func (d *FileDiffer) build(path string, old, cur version) *git.FileDiff {
	fd := &git.FileDiff{OldID: old.id, NewID: cur.id}
	if old.present {
		fd.OldPath = path
	}
	if cur.present {
		fd.NewPath = path
	}
	switch {
	case old.present && cur.present:
		fd.Status = git.Modified
		if string(old.data) == string(cur.data) {
			fd.Status = git.Unmodified
			return fd
		}
	case cur.present:
		fd.Status = git.Added
	case old.present:
		fd.Status = git.Deleted
	default:
		fd.Status = git.Unmodified
		return fd
	}

	if !git.IsText(old.data) || !git.IsText(cur.data) {
		fd.IsBinary = true
		return fd
	}
	fd.Hunks = FileHunks(string(old.data), string(cur.data), d.context)
	fd.Stats = stats(fd.Hunks)
	return fd
}

func (d *FileDiffer) headVersion(path string) (version, error) {
	head, err := d.backend.HeadCommit()
	if errors.Is(err, git.ErrNoHead) {
		return version{}, nil
	}
	if err != nil {
		return version{}, err
	}
	return d.commitVersion(head.ID, path)
}

func (d *FileDiffer) commitVersion(commitID, path string) (version, error) {
	e, err := d.backend.TreeEntry(commitID, path)
	if errors.Is(err, git.ErrFileNotFound) {
		return version{}, nil
	}
	if err != nil {
		return version{}, err
	}
	return d.blobVersion(e.ID)
}

func (d *FileDiffer) indexVersion(path string) (version, error) {
	ix, err := d.backend.OpenIndex()
	if err != nil {
		return version{}, err
	}
	e, err := ix.Entry(path)
	if errors.Is(err, git.ErrFileNotFound) {
		return version{}, nil
	}
	if err != nil {
		return version{}, err
	}
	return d.blobVersion(e.ID)
}

func (d *FileDiffer) blobVersion(id string) (version, error) {
	data, err := d.backend.BlobData(id)
	if err != nil {
		return version{}, err
	}
	return version{id: id, data: data, present: true}, nil
}

func (d *FileDiffer) workdirVersion(path string) (version, error) {
	full := filepath.Join(d.backend.Workdir(), filepath.FromSlash(path))
	info, err := os.Lstat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return version{}, nil
	}
	if err != nil {
		return version{}, err
	}
	var data []byte
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return version{}, err
		}
		data = []byte(target)
	} else if data, err = os.ReadFile(full); err != nil {
		return version{}, err
	}
	return version{data: data, present: true}, nil
}
