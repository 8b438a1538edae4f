package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
	"github.com/dshills/stagehand/internal/git/changes"
	"github.com/dshills/stagehand/internal/git/gittest"
	"github.com/dshills/stagehand/internal/notify"
	"github.com/dshills/stagehand/internal/taskqueue"
	"github.com/dshills/stagehand/internal/watcher"
)

func open(t *testing.T, r *gittest.Repo, opts ...Option) *Controller {
	t.Helper()

	b, err := backend.Open(r.Dir)
	require.NoError(t, err)
	c, err := New(b, append([]Option{WithWatchers(false)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStageModifiedFileScenario(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "1\n2\n3\n"})
	r.WriteFile("a.txt", "1\nX\n3\n")
	c := open(t, r)

	unstaged, err := c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{{Path: "a.txt", Status: git.Modified}}, unstaged)

	staged, err := c.StagedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)

	require.NoError(t, c.Stage(ctx, "a.txt"))

	staged, err = c.StagedChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{{Path: "a.txt", Status: git.Modified}}, staged)

	unstaged, err = c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Empty(t, unstaged)

	assert.Equal(t, git.Modified, c.StagedStatus(ctx, "a.txt"))
	assert.Equal(t, git.Unmodified, c.UnstagedStatus(ctx, "a.txt"))
}

func TestInvalidateIndexRecomputes(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	staged, err := c.StagedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)
	amend, err := c.AmendingStagedChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{{Path: "a.txt", Status: git.Added}}, amend)
	unstaged, err := c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Empty(t, unstaged)

	// Without watchers an outside edit stays invisible until invalidation.
	r.WriteFile("new.txt", "n\n")
	unstaged, err = c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Empty(t, unstaged)

	c.InvalidateIndex()
	_, ok := c.Cache().Staged()
	assert.False(t, ok)
	_, ok = c.Cache().Amend()
	assert.False(t, ok)
	_, ok = c.Cache().Unstaged(false)
	assert.False(t, ok)

	unstaged, err = c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{{Path: "new.txt", Status: git.Untracked}}, unstaged)
}

func TestUnstagedChangesIgnoredFlag(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{".gitignore": "*.log\n"})
	r.WriteFile("debug.log", "x\n")
	c := open(t, r)

	plain, err := c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Empty(t, plain)

	withIgnored, err := c.UnstagedChanges(ctx, UnstagedOptions{ShowIgnored: true, UseCache: true})
	require.NoError(t, err)
	assert.Contains(t, withIgnored, git.FileChange{Path: "debug.log", Status: git.Ignored})

	assert.True(t, c.IsIgnored(ctx, "debug.log"))
	assert.False(t, c.IsIgnored(ctx, ".gitignore"))
}

func TestMutationInvalidatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "1\n2\n3\n"})
	r.WriteFile("a.txt", "1\n2\n3\n4\n")
	c := open(t, r)

	var events atomic.Int32
	id := c.OnIndexChanged(func() { events.Add(1) })
	require.NotEmpty(t, id)

	_, err := c.StagedChanges(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Stage(ctx, "a.txt"))
	_, ok := c.Cache().Staged()
	assert.False(t, ok)
	require.Eventually(t, func() bool { return events.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A failing mutation still invalidates and publishes.
	_, err = c.StagedChanges(ctx)
	require.NoError(t, err)
	foreign := git.Hunk{OldStart: 2, OldLines: 1, NewStart: 2, NewLines: 1, Lines: []git.DiffLine{
		{Type: '-', Content: "nope"},
		{Type: '+', Content: "still nope"},
	}}
	err = c.ApplyHunk(ctx, "a.txt", foreign, true)
	assert.ErrorIs(t, err, git.ErrPatchMismatch)
	_, ok = c.Cache().Staged()
	assert.False(t, ok)
	require.Eventually(t, func() bool { return events.Load() == 2 }, time.Second, 5*time.Millisecond)

	assert.True(t, c.Unsubscribe(id))
	c.NotifyIndexChanged()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), events.Load())
}

func TestApplyHunkThroughController(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "1\n2\n3\n"})
	r.WriteFile("a.txt", "1\nX\n3\n")
	c := open(t, r)

	d, err := c.UnstagedDiff(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, d.Hunks, 1)

	require.NoError(t, c.ApplyHunk(ctx, "a.txt", d.Hunks[0], true))
	staged, err := c.StagedDiff(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, staged.Hunks, 1)

	require.NoError(t, c.ApplyHunk(ctx, "a.txt", staged.Hunks[0], false))
	list, err := c.StagedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCommitDiffs(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("one", map[string]string{"a.txt": "a\n"})
	second := r.Commit("two", map[string]string{"b.txt": "b\n"})
	c := open(t, r)

	files, err := c.ChangesFor(ctx, second, "")
	require.NoError(t, err)
	assert.Equal(t, []git.FileChange{{Path: "b.txt", Status: git.Added}}, files)

	first, err := c.DiffFor(ctx, second, "")
	require.NoError(t, err)
	again, err := c.DiffFor(ctx, second, "")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, c.DiffCache().Len())

	fd, err := c.CommitFileDiff(ctx, second, "", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, git.Added, fd.Status)

	_, err = c.DiffFor(ctx, second, "0123456789012345678901234567890123456789")
	assert.ErrorIs(t, err, git.ErrCommitNotFound)

	c.InvalidateDiffs()
	assert.Equal(t, 0, c.DiffCache().Len())

	assert.True(t, c.IsTextFile(ctx, "b.txt", changes.TextWorkspace, ""))
}

func TestCurrentBranchPublishesOnChangeOnly(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	var mu sync.Mutex
	var seen []string
	c.OnBranchChanged(func(name string) {
		mu.Lock()
		seen = append(seen, name)
		mu.Unlock()
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}

	name, err := c.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", name)
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)

	c.ClearCachedBranch()
	name, err = c.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", name)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, count())
	mu.Lock()
	assert.Equal(t, []string{"master"}, seen)
	mu.Unlock()
}

func TestBranches(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	head := r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	branches, err := c.Branches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, git.Branch{Name: "master", CommitID: head, IsHead: true}, branches[0])

	c.AddBranch(git.Branch{Name: "feature", CommitID: head})
	branches, err = c.Branches(ctx)
	require.NoError(t, err)
	assert.Len(t, branches, 2)

	c.ResetBranches()
	branches, err = c.Branches(ctx)
	require.NoError(t, err)
	assert.Len(t, branches, 1)
}

func TestBranchTableKeptUntilBranchChanges(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	head := r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	_, err := c.CurrentBranch(ctx)
	require.NoError(t, err)
	_, err = c.Branches(ctx)
	require.NoError(t, err)
	c.AddBranch(git.Branch{Name: "pending", CommitID: head})

	c.ClearCachedBranch()
	name, err := c.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", name)
	branches, err := c.Branches(ctx)
	require.NoError(t, err)
	assert.Len(t, branches, 2)

	feature := plumbing.NewBranchReferenceName("feature")
	require.NoError(t, r.Repo.Storer.SetReference(plumbing.NewHashReference(feature, plumbing.NewHash(head))))
	require.NoError(t, r.Repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, feature)))

	c.ClearCachedBranch()
	name, err = c.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature", name)
	branches, err = c.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []git.Branch{
		{Name: "feature", CommitID: head, IsHead: true},
		{Name: "master", CommitID: head},
	}, branches)
}

func TestDefaultRegistrySharesQueue(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})

	first := open(t, r)
	second := open(t, r)
	assert.Same(t, first.queue, second.queue)

	require.NoError(t, first.Close())
	_, err := second.StagedChanges(context.Background())
	assert.NoError(t, err)
}

func TestSharedQueueAcrossControllers(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	registry := taskqueue.NewRegistry()
	defer registry.Close()

	first := open(t, r, WithRegistry(registry))
	second := open(t, r, WithRegistry(registry))
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, first.Close())
	assert.Equal(t, 1, registry.Len())
	_, err := second.StagedChanges(context.Background())
	assert.NoError(t, err)

	require.NoError(t, second.Close())
	assert.Equal(t, 0, registry.Len())
}

func TestClose(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.StagedChanges(context.Background())
	assert.ErrorIs(t, err, git.ErrClosed)
	assert.ErrorIs(t, c.Stage(context.Background(), "a.txt"), git.ErrClosed)
	assert.Equal(t, "", c.OnHeadChanged(func() {}))
	assert.Equal(t, git.Unmodified, c.StagedStatus(context.Background(), "a.txt"))
}

func TestCancelledContext(t *testing.T) {
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	c := open(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.StagedChanges(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWatchersBridgeToNotifications(t *testing.T) {
	ctx := context.Background()
	r := gittest.Init(t)
	r.Commit("init", map[string]string{"a.txt": "a\n"})
	b, err := backend.Open(r.Dir)
	require.NoError(t, err)
	c, err := New(b, WithWatcherOptions(watcher.WithDebounce(20*time.Millisecond)))
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var changed []string
	c.OnWorkspaceChanged(func(paths []string) {
		mu.Lock()
		changed = append(changed, paths...)
		mu.Unlock()
	})
	var all atomic.Int32
	c.Subscribe("workspace.*", func(ev notify.Event) {
		assert.Equal(t, r.Dir, ev.Repo)
		all.Add(1)
	})

	_, err = c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "b.txt"), []byte("b\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range changed {
			if p == "b.txt" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, all.Load(), int32(1))

	unstaged, err := c.UnstagedChanges(ctx, UnstagedOptions{UseCache: true})
	require.NoError(t, err)
	assert.Contains(t, unstaged, git.FileChange{Path: "b.txt", Status: git.Untracked})
}
