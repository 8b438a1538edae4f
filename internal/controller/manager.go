package controller

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stagehand/internal/git"
	"github.com/dshills/stagehand/internal/git/backend"
	"github.com/dshills/stagehand/internal/taskqueue"
)

// Manager keeps one controller per open repository. Controllers it opens
// share its task queue registry.
type Manager struct {
	mu          sync.Mutex
	controllers map[string]*Controller
	registry    *taskqueue.Registry
	opts        []Option
	logger      zerolog.Logger
	closed      atomic.Bool
}

// NewManager creates a manager. opts apply to every controller it opens.
func NewManager(opts ...Option) *Manager {
	o := buildOptions(opts)
	registry := taskqueue.NewRegistry()
	return &Manager{
		controllers: make(map[string]*Controller),
		registry:    registry,
		opts:        append(append([]Option(nil), opts...), WithRegistry(registry)),
		logger:      o.logger.With().Str("component", "manager").Logger(),
	}
}

// Open returns the controller for the repository containing path,
// searching parent directories for it. Opening the same repository twice
// returns the same controller.
func (m *Manager) Open(path string) (*Controller, error) {
	if m.closed.Load() {
		return nil, git.ErrClosed
	}

	b, err := backend.Open(path, backend.WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	key := taskqueue.Key(b.Workdir())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return nil, git.ErrClosed
	}
	if c, ok := m.controllers[key]; ok {
		return c, nil
	}

	c, err := New(b, m.opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	m.controllers[key] = c
	m.logger.Debug().Str("repo", key).Msg("repository opened")
	return c, nil
}

// Get returns the controller already open for the repository rooted at
// workdir.
func (m *Manager) Get(workdir string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[taskqueue.Key(workdir)]
	return c, ok
}

// Len returns the number of open repositories.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

// CloseRepository closes and forgets the controller for workdir.
func (m *Manager) CloseRepository(workdir string) error {
	key := taskqueue.Key(workdir)

	m.mu.Lock()
	c, ok := m.controllers[key]
	delete(m.controllers, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Close()
}

// Close closes every controller concurrently, then the queue registry.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	controllers := m.controllers
	m.controllers = make(map[string]*Controller)
	m.mu.Unlock()

	var g errgroup.Group
	for _, c := range controllers {
		g.Go(c.Close)
	}
	err := g.Wait()
	m.registry.Close()
	return err
}
