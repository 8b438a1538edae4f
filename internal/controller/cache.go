package controller

import (
	"sort"
	"sync"

	"github.com/dshills/stagehand/internal/git"
)

// Cache is the per-repository bundle of cached change lists and branch
// data. Every field is guarded by one mutex.
//
// Index lists carry a generation number: a list computed before an
// invalidation is not stored after it.
type Cache struct {
	mu sync.Mutex

	gen      uint64
	staged   []git.FileChange
	amend    []git.FileChange
	unstaged []git.FileChange

	hasStaged, hasAmend, hasUnstaged bool

	// ignored is the ShowIgnored flag unstaged was computed with.
	ignored bool

	branch      string
	branchValid bool
	branches    map[string]git.Branch
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{branches: make(map[string]git.Branch)}
}

// Generation returns the current index generation. Pass it to the Set
// methods so results computed before an invalidation are dropped.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Staged returns the cached HEAD to index list.
func (c *Cache) Staged() ([]git.FileChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.staged), c.hasStaged
}

// SetStaged stores the staged list if gen is still current.
func (c *Cache) SetStaged(gen uint64, changes []git.FileChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.staged, c.hasStaged = clone(changes), true
	return true
}

// Amend returns the cached amend list.
func (c *Cache) Amend() ([]git.FileChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.amend), c.hasAmend
}

// SetAmend stores the amend list if gen is still current.
func (c *Cache) SetAmend(gen uint64, changes []git.FileChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.amend, c.hasAmend = clone(changes), true
	return true
}

// Unstaged returns the cached index to working tree list. A list computed
// with a different showIgnored flag counts as a miss.
func (c *Cache) Unstaged(showIgnored bool) ([]git.FileChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasUnstaged || c.ignored != showIgnored {
		return nil, false
	}
	return clone(c.unstaged), true
}

// SetUnstaged stores the unstaged list and the flag it was computed with.
func (c *Cache) SetUnstaged(gen uint64, changes []git.FileChange, showIgnored bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.unstaged, c.hasUnstaged, c.ignored = clone(changes), true, showIgnored
	return true
}

// ClearIndex drops the three change lists.
func (c *Cache) ClearIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.staged, c.amend, c.unstaged = nil, nil, nil
	c.hasStaged, c.hasAmend, c.hasUnstaged = false, false, false
}

// Branch returns the cached current branch name.
func (c *Cache) Branch() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branch, c.branchValid
}

// SetBranch stores name and reports whether it differs from the last
// known branch, including one that was cleared since.
func (c *Cache) SetBranch(name string) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed = name != c.branch
	c.branch, c.branchValid = name, true
	return changed
}

// ClearBranch marks the current branch stale. The old name is kept so the
// next SetBranch can tell whether it really changed.
func (c *Cache) ClearBranch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branchValid = false
}

// Branches returns the branch table sorted by name.
func (c *Cache) Branches() []git.Branch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]git.Branch, 0, len(c.branches))
	for _, b := range c.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddBranch records b in the branch table, replacing any entry with the
// same name.
func (c *Cache) AddBranch(b git.Branch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branches[b.Name] = b
}

// ResetBranches empties the branch table.
func (c *Cache) ResetBranches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branches = make(map[string]git.Branch)
}

func clone(changes []git.FileChange) []git.FileChange {
	if changes == nil {
		return nil
	}
	return append(make([]git.FileChange, 0, len(changes)), changes...)
}
