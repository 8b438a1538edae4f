package git

import "strings"

// StatusFlags is the raw classification a status scan reports for a path.
// The zero value means the path is current on every side.
type StatusFlags uint16

const (
	IndexNew StatusFlags = 1 << iota
	IndexModified
	IndexDeleted
	IndexRenamed
	IndexTypeChange
	WorkdirNew
	WorkdirModified
	WorkdirDeleted
	WorkdirTypeChange
	WorkdirRenamed
	FlagIgnored
	FlagConflicted
)

// Current is the absence of any flag.
const Current StatusFlags = 0

const (
	indexMask   = IndexNew | IndexModified | IndexDeleted | IndexRenamed | IndexTypeChange
	workdirMask = WorkdirNew | WorkdirModified | WorkdirDeleted | WorkdirTypeChange | WorkdirRenamed
)

// Has reports whether all bits of f are set.
func (s StatusFlags) Has(f StatusFlags) bool {
	return s&f == f
}

// HasIndexChange reports whether any index side flag is set.
func (s StatusFlags) HasIndexChange() bool {
	return s&indexMask != 0
}

// HasWorkdirChange reports whether any working tree flag is set.
func (s StatusFlags) HasWorkdirChange() bool {
	return s&workdirMask != 0
}

func (s StatusFlags) String() string {
	if s == Current {
		return "current"
	}
	names := []struct {
		f    StatusFlags
		name string
	}{
		{IndexNew, "index-new"},
		{IndexModified, "index-modified"},
		{IndexDeleted, "index-deleted"},
		{IndexRenamed, "index-renamed"},
		{IndexTypeChange, "index-typechange"},
		{WorkdirNew, "wt-new"},
		{WorkdirModified, "wt-modified"},
		{WorkdirDeleted, "wt-deleted"},
		{WorkdirTypeChange, "wt-typechange"},
		{WorkdirRenamed, "wt-renamed"},
		{FlagIgnored, "ignored"},
		{FlagConflicted, "conflicted"},
	}
	var parts []string
	for _, n := range names {
		if s.Has(n.f) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// StatusFromIndexFlags classifies the HEAD to index side of a scan entry.
// A conflict wins over every other flag.
func StatusFromIndexFlags(s StatusFlags) DeltaStatus {
	switch {
	case s.Has(FlagConflicted):
		return Conflict
	case s.Has(IndexNew):
		return Added
	case s.Has(IndexModified):
		return Modified
	case s.Has(IndexDeleted):
		return Deleted
	case s.Has(IndexRenamed):
		return Renamed
	case s.Has(IndexTypeChange):
		return TypeChange
	default:
		return Unmodified
	}
}

// StatusFromWorkdirFlags classifies the index to working tree side.
func StatusFromWorkdirFlags(s StatusFlags) DeltaStatus {
	switch {
	case s.Has(FlagConflicted):
		return Conflict
	case s.Has(WorkdirNew):
		return Untracked
	case s.Has(WorkdirModified):
		return Modified
	case s.Has(WorkdirDeleted):
		return Deleted
	case s.Has(WorkdirRenamed):
		return Renamed
	case s.Has(WorkdirTypeChange):
		return TypeChange
	case s.Has(FlagIgnored):
		return Ignored
	default:
		return Unmodified
	}
}

// StatusShow selects which side of a scan is reported.
type StatusShow uint8

const (
	// ShowIndexAndWorkdir reports paths changed on either side.
	ShowIndexAndWorkdir StatusShow = iota
	// ShowIndexOnly reports baseline to index changes.
	ShowIndexOnly
	// ShowWorkdirOnly reports index to working tree changes.
	ShowWorkdirOnly
)

// StatusOptions controls a status scan.
type StatusOptions struct {
	Show StatusShow

	// Baseline is the commit id compared against the index.
	// Empty means HEAD, or the empty tree when HEAD is unborn.
	Baseline string

	IncludeUntracked     bool
	IncludeIgnored       bool
	RecurseUntrackedDirs bool
	RecurseIgnoredDirs   bool
	IncludeUnmodified    bool

	// Pathspec limits the scan to exact paths or directory prefixes.
	Pathspec []string
}

// StatusEntry is one path reported by a status scan.
type StatusEntry struct {
	Path string

	// OldPath is the source path of a rename; equal to Path otherwise.
	OldPath string

	Flags StatusFlags
}

// IndexStatus classifies the entry's index side.
func (e StatusEntry) IndexStatus() DeltaStatus {
	return StatusFromIndexFlags(e.Flags)
}

// WorkdirStatus classifies the entry's working tree side.
func (e StatusEntry) WorkdirStatus() DeltaStatus {
	return StatusFromWorkdirFlags(e.Flags)
}

// MatchesPathspec reports whether path is selected by spec. An empty spec
// selects everything; "dir" and "dir/" select the directory's contents.
func MatchesPathspec(path string, spec []string) bool {
	if len(spec) == 0 {
		return true
	}
	for _, s := range spec {
		s = strings.TrimSuffix(s, "/")
		if s == "" || s == "." || path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
		// An untracked directory reported as "dir/" matches a spec inside it.
		if strings.HasSuffix(path, "/") && strings.HasPrefix(s, path) {
			return true
		}
	}
	return false
}
