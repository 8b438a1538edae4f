package git

import (
	"errors"
	"fmt"
)

// Error types for change tracking and staging operations.
var (
	// ErrUnexpected indicates an internal invariant was violated,
	// for example an unreadable index or an impossible status combination.
	ErrUnexpected = errors.New("unexpected repository state")

	// ErrPatchMismatch indicates a hunk does not apply to the staged content,
	// or the whole-file staging rules do not allow the operation.
	ErrPatchMismatch = errors.New("patch does not apply")

	// ErrCommitNotFound matches any CommitNotFoundError.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrFileNotFound matches any FileNotFoundError.
	ErrFileNotFound = errors.New("file not found")

	// ErrNotRepository indicates the path is not inside a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoHead indicates the repository has no commits yet.
	ErrNoHead = errors.New("repository has no HEAD")

	// ErrClosed indicates the controller or manager has been closed.
	ErrClosed = errors.New("closed")
)

// CommitNotFoundError reports a commit id that could not be resolved.
type CommitNotFoundError struct {
	ID string
}

func (e *CommitNotFoundError) Error() string {
	if e.ID == "" {
		return "commit not found"
	}
	return fmt.Sprintf("commit not found: %s", e.ID)
}

// Is makes errors.Is(err, ErrCommitNotFound) succeed.
func (e *CommitNotFoundError) Is(target error) bool {
	return target == ErrCommitNotFound
}

// FileNotFoundError reports a path missing from a tree, the index, or disk.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// Is makes errors.Is(err, ErrFileNotFound) succeed.
func (e *FileNotFoundError) Is(target error) bool {
	return target == ErrFileNotFound
}

// BackendError wraps a failure reported by the object store.
// Code is a short stable identifier for the failing primitive.
type BackendError struct {
	Op   string
	Code string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Backend error codes.
const (
	CodeObjectRead  = "object-read"
	CodeObjectWrite = "object-write"
	CodeIndexRead   = "index-read"
	CodeIndexWrite  = "index-write"
	CodeRefRead     = "ref-read"
	CodeWorktree    = "worktree"
	CodeDiff        = "diff"
)

// WrapBackend returns nil for a nil err, err itself when it is already part
// of the taxonomy, and a *BackendError otherwise.
func WrapBackend(op, code string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) ||
		errors.Is(err, ErrCommitNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrNoHead) {
		return err
	}
	return &BackendError{Op: op, Code: code, Err: err}
}
