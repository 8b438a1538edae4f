package diffcache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
	"github.com/dshills/stagehand/internal/git/gittest"
)

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestGetAfterPut(t *testing.T) {
	c, err := New(DefaultSize)
	require.NoError(t, err)

	d := &git.Diff{NewID: "abc"}
	c.Put(Key("abc", ""), d)

	got, ok := c.Get("abc")
	require.True(t, ok)
	assert.Same(t, d, got)

	replacement := &git.Diff{NewID: "abc"}
	c.Put("abc", replacement)
	got, _ = c.Get("abc")
	assert.Same(t, replacement, got)
	assert.Equal(t, 1, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(DefaultSize)
	require.NoError(t, err)

	for i := 0; i < DefaultSize; i++ {
		assert.False(t, c.Put(fmt.Sprintf("k%d", i), &git.Diff{}))
	}
	// Touch k0 so k1 becomes the oldest.
	_, ok := c.Get("k0")
	require.True(t, ok)

	assert.True(t, c.Put("k50", &git.Diff{}))
	assert.Equal(t, DefaultSize, c.Len())
	assert.True(t, c.Contains("k0"))
	assert.False(t, c.Contains("k1"))
	assert.True(t, c.Contains("k2"))
	assert.True(t, c.Contains("k50"))
}

func TestInvalidate(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	c.Put("a", &git.Diff{})
	c.Put("b", &git.Diff{})

	assert.True(t, c.Invalidate("a"))
	assert.False(t, c.Invalidate("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

type countingBackend struct {
	commits map[string]*git.Commit
	diffs   int
	bases   []string
}

func (b *countingBackend) ResolveCommit(id string) (*git.Commit, error) {
	c, ok := b.commits[id]
	if !ok {
		return nil, &git.CommitNotFoundError{ID: id}
	}
	return c, nil
}

func (b *countingBackend) DiffTrees(oldID, newID string) (*git.Diff, error) {
	b.diffs++
	b.bases = append(b.bases, oldID)
	return &git.Diff{OldID: oldID, NewID: newID}, nil
}

func TestDifferCachesAndResolvesParents(t *testing.T) {
	be := &countingBackend{commits: map[string]*git.Commit{
		"root":  {ID: "root"},
		"merge": {ID: "merge", ParentIDs: []string{"p1", "p2"}},
	}}
	c, err := New(DefaultSize)
	require.NoError(t, err)
	d := NewDiffer(be, c, zerolog.Nop())

	first, err := d.DiffFor("merge", "")
	require.NoError(t, err)
	again, err := d.DiffFor("merge", "")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, be.diffs)

	second, err := d.DiffFor("merge", "p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", second.OldID)

	root, err := d.DiffFor("root", "")
	require.NoError(t, err)
	assert.Equal(t, git.EmptyTreeID, root.OldID)

	assert.Equal(t, []string{"p1", "p2", git.EmptyTreeID}, be.bases)

	_, err = d.DiffFor("merge", "stranger")
	assert.True(t, errors.Is(err, git.ErrCommitNotFound))

	_, err = d.DiffFor("missing", "")
	assert.True(t, errors.Is(err, git.ErrCommitNotFound))
	assert.Equal(t, 3, c.Len())
}

func TestDifferWithRepository(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("first", map[string]string{"a.txt": "a\n"})
	second := r.Commit("second", map[string]string{"a.txt": "b\n", "c.txt": "c\n"})

	b, err := backend.Open(r.Dir)
	require.NoError(t, err)
	c, err := New(DefaultSize)
	require.NoError(t, err)
	d := NewDiffer(b, c, zerolog.Nop())

	diff, err := d.DiffFor(second, "")
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{
		{Path: "a.txt", Status: git.Modified},
		{Path: "c.txt", Status: git.Added},
	}, diff.Changes())
	assert.True(t, c.Contains(Key(second, "")))
}
