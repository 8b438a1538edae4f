// Package backend adapts a git object store to the operations the change
// tracking engine needs. The only implementation is GoGit, an in-process
// adapter built on go-git.
package backend

import (
	"github.com/dshills/stagehand/internal/git"
)

// Backend is the object store consumed by the engine. Object ids are hex
// strings; git.EmptyTreeID is accepted wherever a commit id is.
//
// Implementations are not required to be safe for concurrent mutation;
// callers serialize index and working tree writes.
type Backend interface {
	// ResolveCommit resolves a full id or revision (e.g. "HEAD", "main~1").
	ResolveCommit(id string) (*git.Commit, error)

	// HeadCommit returns the checked out commit, or git.ErrNoHead.
	HeadCommit() (*git.Commit, error)

	// TreeEntry looks up path in the tree of commitID.
	TreeEntry(commitID, path string) (*git.TreeEntry, error)

	// BlobData returns the raw content of a blob.
	BlobData(blobID string) ([]byte, error)

	// DiffTrees compares the trees of two commits at file granularity.
	DiffTrees(oldCommitID, newCommitID string) (*git.Diff, error)

	// StatusScan classifies paths across baseline tree, index and working tree.
	StatusScan(opts git.StatusOptions) ([]git.StatusEntry, error)

	// OpenIndex reads the on-disk index for editing.
	OpenIndex() (Index, error)

	// CheckoutPaths restores HEAD content for paths into the index and working tree.
	CheckoutPaths(paths []string, strategy CheckoutStrategy) error

	// CurrentBranch returns the short name HEAD points at, or "" when detached.
	CurrentBranch() (string, error)

	// Branches lists local branches.
	Branches() ([]git.Branch, error)

	// IsIgnored reports whether path matches the repository's ignore rules.
	IsIgnored(path string) bool

	// Workdir is the absolute working tree root.
	Workdir() string

	// GitDir is the absolute repository metadata directory.
	GitDir() string

	// ConfigPath is the repository configuration file.
	ConfigPath() string
}

// Index is an in-memory copy of the index. Changes reach disk on Save.
type Index interface {
	// Entry returns the stage 0 entry for path or a *git.FileNotFoundError.
	Entry(path string) (*git.IndexEntry, error)

	// Entries returns all stage 0 entries in path order.
	Entries() []git.IndexEntry

	// AddPath stages the working tree content at path. Directories are
	// added recursively, skipping ignored untracked files.
	AddPath(path string) error

	// AddData stages data as the content of path.
	AddData(path string, data []byte) error

	// AddFromTree stages the version of path recorded in commitID,
	// every file beneath it when path is a directory.
	AddFromTree(commitID, path string) error

	// Remove drops path, and everything under it when it is a directory.
	// Removing a missing path is not an error.
	Remove(path string) error

	// ReadTree replaces the whole index with the tree of commitID.
	ReadTree(commitID string) error

	// Clear drops every entry.
	Clear()

	// Save writes the index to disk.
	Save() error
}

// CheckoutStrategy controls CheckoutPaths.
type CheckoutStrategy uint8

const (
	// CheckoutForce overwrites working tree files that have local edits.
	CheckoutForce CheckoutStrategy = 1 << iota
	// CheckoutRecreateMissing writes files that are missing from the working tree.
	CheckoutRecreateMissing
)

// Has reports whether all bits of f are set.
func (s CheckoutStrategy) Has(f CheckoutStrategy) bool {
	return s&f == f
}
