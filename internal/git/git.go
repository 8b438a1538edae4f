package git

import "time"

// EmptyTreeID is the object id of the empty tree. Backends accept it
// anywhere a commit id is expected and treat it as a commit with no files.
const EmptyTreeID = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// StagingSHA is the pseudo commit id that stands for the staging area
// (index plus working tree) when asking for a commit's changes.
const StagingSHA = ""

// DeltaStatus classifies how a path differs between two snapshots.
type DeltaStatus uint8

const (
	// Unmodified indicates the path is the same on both sides.
	Unmodified DeltaStatus = iota
	// Added indicates the path exists only on the new side.
	Added
	// Deleted indicates the path exists only on the old side.
	Deleted
	// Modified indicates the content differs.
	Modified
	// Renamed indicates the path was moved.
	Renamed
	// Copied indicates the path was copied from another path.
	Copied
	// TypeChange indicates the object kind changed (file, symlink, submodule).
	TypeChange
	// Ignored indicates the path matches an ignore rule.
	Ignored
	// Untracked indicates the path exists only in the working tree.
	Untracked
	// Conflict indicates an unresolved merge conflict.
	Conflict
	// Mixed indicates a directory whose children have differing statuses.
	Mixed
)

var deltaStatusNames = [...]string{
	Unmodified: "unmodified",
	Added:      "added",
	Deleted:    "deleted",
	Modified:   "modified",
	Renamed:    "renamed",
	Copied:     "copied",
	TypeChange: "typeChange",
	Ignored:    "ignored",
	Untracked:  "untracked",
	Conflict:   "conflict",
	Mixed:      "mixed",
}

// String returns the lower camel case name of the status.
func (s DeltaStatus) String() string {
	if int(s) < len(deltaStatusNames) {
		return deltaStatusNames[s]
	}
	return "unknown"
}

// IsModified reports whether the status represents a change worth showing.
// Only unmodified and untracked paths are not considered modified.
func (s DeltaStatus) IsModified() bool {
	return s != Unmodified && s != Untracked
}

// ParseDeltaStatus is the inverse of String. It returns false for unknown names.
func ParseDeltaStatus(name string) (DeltaStatus, bool) {
	for i, n := range deltaStatusNames {
		if n == name {
			return DeltaStatus(i), true
		}
	}
	return Unmodified, false
}

// FileChange is a path paired with its status. Values are immutable once
// produced and have no identity beyond (Path, Status).
type FileChange struct {
	Path   string
	Status DeltaStatus
}

// FileStagingChange is a FileChange that tracks the destination of a
// rename or copy. DestinationPath equals Path when nothing moved.
type FileStagingChange struct {
	FileChange
	DestinationPath string
}

// Commit is a resolved commit.
type Commit struct {
	// ID is the full hex object id.
	ID string

	// TreeID is the id of the commit's root tree.
	TreeID string

	// ParentIDs lists parents in order; the first is the mainline parent.
	ParentIDs []string

	// Message is the full commit message.
	Message string

	// Author is the author name.
	Author string

	// When is the author timestamp.
	When time.Time
}

// FirstParent returns the mainline parent id, or "" for a root commit.
func (c *Commit) FirstParent() string {
	if len(c.ParentIDs) == 0 {
		return ""
	}
	return c.ParentIDs[0]
}

// HasParent reports whether id is one of the commit's parents.
func (c *Commit) HasParent(id string) bool {
	for _, p := range c.ParentIDs {
		if p == id {
			return true
		}
	}
	return false
}

// ObjectKind is the kind of object a tree or index entry points at.
type ObjectKind uint8

const (
	KindFile ObjectKind = iota
	KindExecutable
	KindSymlink
	KindSubmodule
	KindTree
)

// SameType reports whether two kinds are interchangeable for status purposes.
// A mode flip between regular and executable is a modification, not a type change.
func (k ObjectKind) SameType(other ObjectKind) bool {
	norm := func(k ObjectKind) ObjectKind {
		if k == KindExecutable {
			return KindFile
		}
		return k
	}
	return norm(k) == norm(other)
}

// TreeEntry is a blob or subtree found in a commit's tree.
type TreeEntry struct {
	Path string
	ID   string
	Kind ObjectKind
}

// IndexEntry is a staged path.
type IndexEntry struct {
	Path  string
	ID    string
	Kind  ObjectKind
	Size  uint32
	Stage int
}

// Branch is a local branch.
type Branch struct {
	// Name is the short branch name, e.g. "main".
	Name string

	// CommitID is the id the branch points at.
	CommitID string

	// IsHead reports whether HEAD points at this branch.
	IsHead bool
}

// Invalidator is told when the index or working tree may have changed so
// cached status can be dropped.
type Invalidator interface {
	InvalidateIndex()
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func()

// InvalidateIndex calls f.
func (f InvalidatorFunc) InvalidateIndex() { f() }
