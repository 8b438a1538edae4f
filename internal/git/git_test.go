package git

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaStatusIsModified(t *testing.T) {
	tests := []struct {
		status DeltaStatus
		want   bool
	}{
		{Unmodified, false},
		{Untracked, false},
		{Added, true},
		{Deleted, true},
		{Modified, true},
		{Renamed, true},
		{Copied, true},
		{TypeChange, true},
		{Ignored, true},
		{Conflict, true},
		{Mixed, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsModified())
		})
	}
}

func TestDeltaStatusParseRoundTrip(t *testing.T) {
	for s := Unmodified; s <= Mixed; s++ {
		got, ok := ParseDeltaStatus(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, s, got)
	}

	_, ok := ParseDeltaStatus("bogus")
	assert.False(t, ok)
	assert.Equal(t, "unknown", DeltaStatus(200).String())
}

func TestStatusFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   StatusFlags
		index   DeltaStatus
		workdir DeltaStatus
	}{
		{"current", Current, Unmodified, Unmodified},
		{"staged new", IndexNew, Added, Unmodified},
		{"staged and edited", IndexModified | WorkdirModified, Modified, Modified},
		{"added then deleted", IndexNew | WorkdirDeleted, Added, Deleted},
		{"untracked", WorkdirNew, Unmodified, Untracked},
		{"ignored", FlagIgnored, Unmodified, Ignored},
		{"conflicted", FlagConflicted | IndexModified, Conflict, Conflict},
		{"typechange", IndexTypeChange, TypeChange, Unmodified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.index, StatusFromIndexFlags(tt.flags))
			assert.Equal(t, tt.workdir, StatusFromWorkdirFlags(tt.flags))
		})
	}
}

func TestStatusFlagsString(t *testing.T) {
	assert.Equal(t, "current", Current.String())
	assert.Equal(t, "index-new|wt-modified", (IndexNew | WorkdirModified).String())
	assert.True(t, (IndexNew | WorkdirModified).HasIndexChange())
	assert.True(t, (IndexNew | WorkdirModified).HasWorkdirChange())
	assert.False(t, FlagIgnored.HasWorkdirChange())
}

func TestMatchesPathspec(t *testing.T) {
	assert.True(t, MatchesPathspec("a.txt", nil))
	assert.True(t, MatchesPathspec("a.txt", []string{"a.txt"}))
	assert.False(t, MatchesPathspec("a.txt.bak", []string{"a.txt"}))
	assert.True(t, MatchesPathspec("dir/a.txt", []string{"dir"}))
	assert.True(t, MatchesPathspec("dir/a.txt", []string{"dir/"}))
	assert.False(t, MatchesPathspec("dirx/a.txt", []string{"dir"}))
	assert.True(t, MatchesPathspec("dir/", []string{"dir/a.txt"}))
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &CommitNotFoundError{ID: "abc"}
	assert.True(t, errors.Is(err, ErrCommitNotFound))
	assert.False(t, errors.Is(err, ErrFileNotFound))
	assert.Equal(t, "commit not found: abc", err.Error())

	wrapped := fmt.Errorf("amend unstage: %w", &FileNotFoundError{Path: "x"})
	assert.True(t, errors.Is(wrapped, ErrFileNotFound))
	var fnf *FileNotFoundError
	require.True(t, errors.As(wrapped, &fnf))
	assert.Equal(t, "x", fnf.Path)

	cause := errors.New("disk on fire")
	be := WrapBackend("read blob", CodeObjectRead, cause)
	var backendErr *BackendError
	require.True(t, errors.As(be, &backendErr))
	assert.Equal(t, CodeObjectRead, backendErr.Code)
	assert.True(t, errors.Is(be, cause))

	assert.Nil(t, WrapBackend("op", CodeDiff, nil))
	assert.Same(t, err, WrapBackend("op", CodeDiff, err))
}

func TestCommitParents(t *testing.T) {
	c := &Commit{ID: "c", ParentIDs: []string{"p1", "p2"}}
	assert.Equal(t, "p1", c.FirstParent())
	assert.True(t, c.HasParent("p2"))
	assert.False(t, c.HasParent("p3"))
	assert.Equal(t, "", (&Commit{}).FirstParent())
}

func TestObjectKindSameType(t *testing.T) {
	assert.True(t, KindFile.SameType(KindExecutable))
	assert.False(t, KindFile.SameType(KindSymlink))
	assert.True(t, KindSymlink.SameType(KindSymlink))
}
