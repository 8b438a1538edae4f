package controller

import (
	"context"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/notify"
)

// CurrentBranch returns the branch HEAD points at, "" when detached. The
// value is cached until ClearCachedBranch or a HEAD change.
func (c *Controller) CurrentBranch(ctx context.Context) (string, error) {
	if name, ok := c.cache.Branch(); ok {
		return name, nil
	}
	return shared(ctx, c, "branch", c.refreshBranch)
}

// refreshBranch reads the current branch and publishes branch.changed
// when it differs from the last known value. It runs on the queue.
func (c *Controller) refreshBranch() (string, error) {
	name, err := c.backend.CurrentBranch()
	if err != nil {
		return "", err
	}
	if c.cache.SetBranch(name) {
		// IsHead in the branch table follows the current branch.
		c.cache.ResetBranches()
		c.bus.Publish(notify.TopicBranchChanged, func(ev *notify.Event) { ev.Branch = name })
	}
	return name, nil
}

// ClearCachedBranch forgets the cached current branch.
func (c *Controller) ClearCachedBranch() {
	c.cache.ClearBranch()
}

// Branches returns the local branches, loading the branch table when it
// is empty.
func (c *Controller) Branches(ctx context.Context) ([]git.Branch, error) {
	if list := c.cache.Branches(); len(list) > 0 {
		return list, nil
	}
	return shared(ctx, c, "branches", func() ([]git.Branch, error) {
		list, err := c.backend.Branches()
		if err != nil {
			return nil, err
		}
		for _, b := range list {
			c.cache.AddBranch(b)
		}
		return list, nil
	})
}

// AddBranch records b in the branch table.
func (c *Controller) AddBranch(b git.Branch) {
	c.cache.AddBranch(b)
}

// ResetBranches empties the branch table.
func (c *Controller) ResetBranches() {
	c.cache.ResetBranches()
}
