package controller

import (
	"github.com/dshills/stagehand/internal/notify"
	"github.com/dshills/stagehand/internal/watcher"
)

// Subscribe registers handler for topic, which may be a wildcard such as
// "refs.*". It returns the subscription id, or "" after Close.
func (c *Controller) Subscribe(topic string, handler notify.Handler) string {
	return c.bus.Subscribe(topic, handler)
}

// Unsubscribe cancels a subscription.
func (c *Controller) Unsubscribe(id string) bool {
	return c.bus.Unsubscribe(id)
}

func (c *Controller) onSignal(topic string, fn func()) string {
	return c.bus.Subscribe(topic, func(notify.Event) { fn() })
}

// OnConfigChanged calls fn when the repository config file changes.
func (c *Controller) OnConfigChanged(fn func()) string {
	return c.onSignal(notify.TopicConfigChanged, fn)
}

// OnHeadChanged calls fn when HEAD moves.
func (c *Controller) OnHeadChanged(fn func()) string {
	return c.onSignal(notify.TopicHeadChanged, fn)
}

// OnIndexChanged calls fn when the index changes.
func (c *Controller) OnIndexChanged(fn func()) string {
	return c.onSignal(notify.TopicIndexChanged, fn)
}

// OnRefsChanged calls fn when references change.
func (c *Controller) OnRefsChanged(fn func()) string {
	return c.onSignal(notify.TopicRefsChanged, fn)
}

// OnRefLogChanged calls fn when the reflog changes.
func (c *Controller) OnRefLogChanged(fn func()) string {
	return c.onSignal(notify.TopicRefLogChanged, fn)
}

// OnStashChanged calls fn when the stash changes.
func (c *Controller) OnStashChanged(fn func()) string {
	return c.onSignal(notify.TopicStashChanged, fn)
}

// OnWorkspaceChanged calls fn with the working tree paths that changed.
func (c *Controller) OnWorkspaceChanged(fn func(paths []string)) string {
	return c.bus.Subscribe(notify.TopicWorkspaceChanged, func(ev notify.Event) { fn(ev.Paths) })
}

// OnBranchChanged calls fn with the new current branch.
func (c *Controller) OnBranchChanged(fn func(branch string)) string {
	return c.bus.Subscribe(notify.TopicBranchChanged, func(ev notify.Event) { fn(ev.Branch) })
}

// NotifyIndexChanged publishes index.changed.
func (c *Controller) NotifyIndexChanged() {
	c.bus.Publish(notify.TopicIndexChanged, nil)
}

// NotifyRefsChanged publishes refs.changed.
func (c *Controller) NotifyRefsChanged() {
	c.bus.Publish(notify.TopicRefsChanged, nil)
}

// startWatchers creates and starts the config, repository and workspace
// watchers. A watcher that cannot start is logged and skipped.
func (c *Controller) startWatchers(opts, configOpts []watcher.Option) {
	opts = append([]watcher.Option{watcher.WithLogger(c.logger)}, opts...)
	configOpts = append(append([]watcher.Option(nil), opts...), configOpts...)

	c.addWatcher("config", func() (watcher.Handle, error) {
		return watcher.NewConfigWatcher(c.backend.ConfigPath(), c.configChanged, configOpts...)
	})
	c.addWatcher("repository", func() (watcher.Handle, error) {
		return watcher.NewRepositoryWatcher(c.backend.GitDir(), c.repositoryChanged, opts...)
	})
	c.addWatcher("workspace", func() (watcher.Handle, error) {
		return watcher.NewWorkspaceWatcher(c.backend.Workdir(), c.workspaceChanged, opts...)
	})
}

func (c *Controller) addWatcher(name string, create func() (watcher.Handle, error)) {
	h, err := create()
	if err == nil {
		err = h.Start()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("watcher", name).Msg("watcher unavailable, caches need manual invalidation")
		return
	}

	c.watchersMu.Lock()
	c.watchers = append(c.watchers, namedHandle{name: name, handle: h})
	c.watchersMu.Unlock()
}

func (c *Controller) configChanged() {
	c.bus.Publish(notify.TopicConfigChanged, nil)
}

func (c *Controller) workspaceChanged(paths []string) {
	c.InvalidateIndex()
	c.bus.Publish(notify.TopicWorkspaceChanged, func(ev *notify.Event) { ev.Paths = paths })
}

func (c *Controller) repositoryChanged(change watcher.RepoChange) {
	switch change {
	case watcher.HeadChanged:
		c.ClearCachedBranch()
		c.InvalidateIndex()
		c.bus.Publish(notify.TopicHeadChanged, nil)
		c.scheduleBranchRefresh()
	case watcher.IndexChanged:
		c.InvalidateIndex()
		c.bus.Publish(notify.TopicIndexChanged, nil)
	case watcher.RefsChanged:
		c.ResetBranches()
		c.bus.Publish(notify.TopicRefsChanged, nil)
	case watcher.RefLogChanged:
		c.bus.Publish(notify.TopicRefLogChanged, nil)
	case watcher.StashChanged:
		c.bus.Publish(notify.TopicStashChanged, nil)
	}
}

// scheduleBranchRefresh queues a branch recompute so branch.changed fires
// without waiting for the next CurrentBranch call. The callback itself
// never reads the repository.
func (c *Controller) scheduleBranchRefresh() {
	if c.closed.Load() {
		return
	}
	_, err := c.queue.Submit(c.ctx, func() error {
		if c.closed.Load() {
			return nil
		}
		_, err := c.refreshBranch()
		return err
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("scheduling branch refresh")
	}
}
