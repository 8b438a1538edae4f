// Package diffcache caches commit diffs keyed by commit and parent id.
//
// The cache is bounded (50 entries by default) and evicts the least
// recently used entry on overflow. Entries never expire on their own:
// commit ids are content addressed, so an entry can only go stale after a
// destructive history rewrite, and callers use InvalidateAll for that.
package diffcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/git"
)

// DefaultSize is the default number of cached diffs.
const DefaultSize = 50

// Key builds the cache key for a commit and parent. An empty parent stands
// for the commit's first parent.
func Key(sha, parentID string) string {
	return sha + parentID
}

// Cache is a bounded, concurrency safe map from key to diff. The cache owns
// the diffs it holds; callers that keep a diff past the next invalidation
// should Clone it.
type Cache struct {
	lru *lru.Cache[string, *git.Diff]
}

// New creates a cache holding at most size diffs.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("diff cache size must be positive, got %d", size)
	}
	l, err := lru.New[string, *git.Diff](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the diff for key and marks it recently used.
func (c *Cache) Get(key string) (*git.Diff, bool) {
	return c.lru.Get(key)
}

// Put stores diff under key, replacing any previous value. It reports
// whether an older entry was evicted to make room.
func (c *Cache) Put(key string, diff *git.Diff) bool {
	return c.lru.Add(key, diff)
}

// Invalidate drops key. It reports whether the key was present.
func (c *Cache) Invalidate(key string) bool {
	return c.lru.Remove(key)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.lru.Purge()
}

// Contains reports whether key is cached without touching its recency.
func (c *Cache) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Len returns the number of cached diffs.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// TreeDiffer is the backend surface needed to compute commit diffs.
type TreeDiffer interface {
	ResolveCommit(id string) (*git.Commit, error)
	DiffTrees(oldCommitID, newCommitID string) (*git.Diff, error)
}

// Differ computes commit diffs through a cache.
type Differ struct {
	backend TreeDiffer
	cache   *Cache
	logger  zerolog.Logger
}

// NewDiffer creates a Differ that stores results in cache.
func NewDiffer(b TreeDiffer, cache *Cache, logger zerolog.Logger) *Differ {
	return &Differ{
		backend: b,
		cache:   cache,
		logger:  logger.With().Str("component", "diffcache").Logger(),
	}
}

// Cache returns the underlying cache.
func (d *Differ) Cache() *Cache {
	return d.cache
}

// DiffFor returns the diff of commit sha against parentID. An empty
// parentID selects the first parent; a root commit is compared with the
// empty tree. A parentID that is not a parent of sha is reported as a
// *git.CommitNotFoundError.
func (d *Differ) DiffFor(sha, parentID string) (*git.Diff, error) {
	key := Key(sha, parentID)
	if diff, ok := d.cache.Get(key); ok {
		return diff, nil
	}

	commit, err := d.backend.ResolveCommit(sha)
	if err != nil {
		return nil, err
	}

	base := git.EmptyTreeID
	switch {
	case parentID == "":
		if p := commit.FirstParent(); p != "" {
			base = p
		}
	case commit.HasParent(parentID):
		base = parentID
	default:
		return nil, &git.CommitNotFoundError{ID: parentID}
	}

	diff, err := d.backend.DiffTrees(base, commit.ID)
	if err != nil {
		return nil, err
	}

	if d.cache.Put(key, diff) {
		d.logger.Debug().Str("key", key).Msg("evicted oldest diff")
	}
	return diff, nil
}
