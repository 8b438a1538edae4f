package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
	"github.com/dshills/stagehand/internal/git/changes"
	"github.com/dshills/stagehand/internal/git/gittest"
	"github.com/dshills/stagehand/internal/git/staging"
)

type fixture struct {
	repo          *gittest.Repo
	backend       *backend.GoGit
	changes       *changes.Computer
	differ        *FileDiffer
	applier       *Applier
	invalidations int
}

func newFixture(t *testing.T, r *gittest.Repo) *fixture {
	t.Helper()

	b, err := backend.Open(r.Dir)
	require.NoError(t, err)
	f := &fixture{repo: r, backend: b, changes: changes.New(b)}
	f.differ = NewFileDiffer(b, DefaultContext)
	f.applier = NewApplier(b, f.changes, staging.New(b, f.changes), git.InvalidatorFunc(func() { f.invalidations++ }))
	return f
}

func (f *fixture) unstagedHunks(t *testing.T, path string) []git.Hunk {
	t.Helper()
	d, err := f.differ.UnstagedDiff(path)
	require.NoError(t, err)
	return d.Hunks
}

func (f *fixture) stagedHunks(t *testing.T, path string) []git.Hunk {
	t.Helper()
	d, err := f.differ.StagedDiff(path)
	require.NoError(t, err)
	return d.Hunks
}

func TestStageSingleHunk(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"f.txt": numbered(20, nil)})
	r.WriteFile("f.txt", numbered(20, map[int]string{2: "L2", 18: "L18"}))
	f := newFixture(t, r)

	hunks := f.unstagedHunks(t, "f.txt")
	require.Len(t, hunks, 2)

	require.NoError(t, f.applier.ApplyHunk("f.txt", hunks[0], true))
	assert.Equal(t, 1, f.invalidations)

	staged := f.stagedHunks(t, "f.txt")
	require.Len(t, staged, 1)
	assert.Equal(t, hunks[0].Lines, staged[0].Lines)

	remaining := f.unstagedHunks(t, "f.txt")
	require.Len(t, remaining, 1)
	assert.Equal(t, hunks[1].Lines, remaining[0].Lines)

	require.NoError(t, f.applier.ApplyHunk("f.txt", staged[0], false))
	assert.Empty(t, f.stagedHunks(t, "f.txt"))
	assert.Len(t, f.unstagedHunks(t, "f.txt"), 2)
}

func TestStageThenUnstageSameHunkRestoresIndex(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"f.txt": numbered(20, nil)})
	r.WriteFile("f.txt", numbered(20, map[int]string{5: "five", 19: "nineteen"}))
	f := newFixture(t, r)

	for _, h := range f.unstagedHunks(t, "f.txt") {
		require.NoError(t, f.applier.ApplyHunk("f.txt", h, true))
		require.NoError(t, f.applier.ApplyHunk("f.txt", h, false))
		assert.Equal(t, git.Unmodified, f.changes.StagedStatus("f.txt"))
	}
}

func TestStageHunkOfUntrackedFile(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"keep.txt": "k\n"})
	r.WriteFile("new.txt", "a\nb\n")
	f := newFixture(t, r)

	hunks := f.unstagedHunks(t, "new.txt")
	require.Len(t, hunks, 1)
	require.NoError(t, f.applier.ApplyHunk("new.txt", hunks[0], true))
	assert.Equal(t, git.Added, f.changes.StagedStatus("new.txt"))

	staged := f.stagedHunks(t, "new.txt")
	require.Len(t, staged, 1)
	require.NoError(t, f.applier.ApplyHunk("new.txt", staged[0], false))
	assert.Equal(t, git.Unmodified, f.changes.StagedStatus("new.txt"))
	assert.Equal(t, git.Untracked, f.changes.UnstagedStatus("new.txt"))
}

func TestStageHunkOfDeletedFile(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"gone.txt": "x\ny\n"})
	r.Remove("gone.txt")
	f := newFixture(t, r)

	hunks := f.unstagedHunks(t, "gone.txt")
	require.Len(t, hunks, 1)
	require.NoError(t, f.applier.ApplyHunk("gone.txt", hunks[0], true))
	assert.Equal(t, git.Deleted, f.changes.StagedStatus("gone.txt"))

	staged := f.stagedHunks(t, "gone.txt")
	require.Len(t, staged, 1)
	require.NoError(t, f.applier.ApplyHunk("gone.txt", staged[0], false))
	assert.Equal(t, git.Unmodified, f.changes.StagedStatus("gone.txt"))
	assert.Equal(t, 2, f.invalidations)
}

func TestApplyHunkMismatches(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{
		"f.txt":   "a\nb\nc\n",
		"bin.txt": "ok\n\xff\xfe\nend\n",
	})
	f := newFixture(t, r)

	foreign := FileHunks("p\nq\nr\ns\n", "p\nq\nR\ns\n", 1)
	require.Len(t, foreign, 1)
	require.Equal(t, 2, foreign[0].OldStart)

	err := f.applier.ApplyHunk("f.txt", foreign[0], true)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))

	err = f.applier.ApplyHunk("bin.txt", foreign[0], true)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))

	err = f.applier.ApplyHunk("absent.txt", foreign[0], true)
	assert.True(t, errors.Is(err, git.ErrPatchMismatch))

	assert.Equal(t, 3, f.invalidations)
	assert.Equal(t, git.Unmodified, f.changes.StagedStatus("f.txt"))
}

func TestFileDiffs(t *testing.T) {
	r := gittest.Init(t)
	first := r.Commit("first", map[string]string{"a.txt": "a\n", "b.bin": "x\x00y"})
	second := r.Commit("second", map[string]string{"a.txt": "a2\n", "c.txt": "c\n"})
	r.WriteFile("a.txt", "a3\n")
	r.Add("a.txt")
	r.WriteFile("a.txt", "a4\n")
	f := newFixture(t, r)

	staged, err := f.differ.StagedDiff("a.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Modified, staged.Status)
	assert.Equal(t, git.DiffStats{Additions: 1, Deletions: 1}, staged.Stats)
	require.Len(t, staged.Hunks, 1)
	assert.Equal(t, "a2", staged.Hunks[0].Lines[0].Content)

	unstaged, err := f.differ.UnstagedDiff("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a3", unstaged.Hunks[0].Lines[0].Content)
	assert.Equal(t, "a4", unstaged.Hunks[0].Lines[1].Content)

	amend, err := f.differ.AmendingStagedDiff("c.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Added, amend.Status)
	assert.Equal(t, "", amend.OldPath)

	commit, err := f.differ.CommitFileDiff(second, "", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Added, commit.Status)

	commit, err = f.differ.CommitFileDiff(second, first, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Modified, commit.Status)

	_, err = f.differ.CommitFileDiff(second, second, "a.txt")
	assert.True(t, errors.Is(err, git.ErrCommitNotFound))

	bin, err := f.differ.CommitFileDiff(first, "", "b.bin")
	require.NoError(t, err)
	assert.True(t, bin.IsBinary)
	assert.Empty(t, bin.Hunks)

	same, err := f.differ.StagedDiff("c.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Unmodified, same.Status)
}
