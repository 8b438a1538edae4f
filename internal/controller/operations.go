package controller

import (
	"context"

	"github.com/dshills/stagehand/internal/git"
)

// Stage copies the working tree version of path into the index.
func (c *Controller) Stage(ctx context.Context, path string) error {
	return c.mutate(ctx, "stage", path, func() error { return c.stager.Stage(path) })
}

// Unstage resets the index entry of path to HEAD.
func (c *Controller) Unstage(ctx context.Context, path string) error {
	return c.mutate(ctx, "unstage", path, func() error { return c.stager.Unstage(path) })
}

// Revert discards working tree changes to path.
func (c *Controller) Revert(ctx context.Context, path string) error {
	return c.mutate(ctx, "revert", path, func() error { return c.stager.Revert(path) })
}

// StageAll stages every working tree change.
func (c *Controller) StageAll(ctx context.Context) error {
	return c.mutate(ctx, "stage all", "", c.stager.StageAll)
}

// UnstageAll resets the whole index to HEAD.
func (c *Controller) UnstageAll(ctx context.Context) error {
	return c.mutate(ctx, "unstage all", "", c.stager.UnstageAll)
}

// AmendStage stages path for an amended commit.
func (c *Controller) AmendStage(ctx context.Context, path string) error {
	return c.mutate(ctx, "amend stage", path, func() error { return c.stager.AmendStage(path) })
}

// AmendUnstage resets path to HEAD's parent for an amended commit.
func (c *Controller) AmendUnstage(ctx context.Context, path string) error {
	return c.mutate(ctx, "amend unstage", path, func() error { return c.stager.AmendUnstage(path) })
}

// ApplyHunk stages hunk of path, or unstages it when stage is false.
func (c *Controller) ApplyHunk(ctx context.Context, path string, hunk git.Hunk, stage bool) error {
	return c.mutate(ctx, "apply hunk", path, func() error { return c.applier.ApplyHunk(path, hunk, stage) })
}
