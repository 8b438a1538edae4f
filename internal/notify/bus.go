// Package notify is the publish-subscribe channel a repository controller
// uses to tell clients about changes.
//
// The bus supports:
//   - Multiple subscribers per topic
//   - Wildcard subscriptions ("ref.*" matches "ref.head", "ref.stash")
//   - FIFO delivery per subscription
//   - Subscription cleanup
//
// Each subscription owns a mailbox drained by its own goroutine, so a slow
// handler delays only its own later events. Publish never blocks.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topics published by the repository controller.
const (
	TopicConfigChanged    = "config.changed"
	TopicHeadChanged      = "head.changed"
	TopicIndexChanged     = "index.changed"
	TopicRefsChanged      = "refs.changed"
	TopicRefLogChanged    = "reflog.changed"
	TopicStashChanged     = "stash.changed"
	TopicWorkspaceChanged = "workspace.changed"
	TopicBranchChanged    = "branch.changed"
)

// Event is one notification.
type Event struct {
	// ID uniquely identifies the event.
	ID string

	// Topic is the dot separated event name.
	Topic string

	// Repo is the working tree root the event concerns.
	Repo string

	// Time is when the event was published.
	Time time.Time

	// Paths lists changed working tree paths for workspace.changed.
	Paths []string

	// Branch is the new branch name for branch.changed.
	Branch string
}

// Handler receives events.
type Handler func(Event)

// Bus is a thread-safe topic based event bus.
type Bus struct {
	mu sync.RWMutex

	// Subscribers by exact topic.
	subscribers map[string]map[string]*subscription

	// Wildcard subscribers by pattern.
	wildcards map[string]map[string]*subscription

	// All subscriptions by id.
	byID map[string]*subscription

	repo   string
	logger zerolog.Logger
	closed atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithRepo sets the repository path stamped on every event.
func WithRepo(path string) Option {
	return func(b *Bus) {
		b.repo = path
	}
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = l.With().Str("component", "notify").Logger()
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]map[string]*subscription),
		wildcards:   make(map[string]map[string]*subscription),
		byID:        make(map[string]*subscription),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic, an exact name or a pattern ending
// in ".*". It returns the subscription id, or "" once the bus is closed.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	if b.closed.Load() {
		return ""
	}

	sub := newSubscription(uuid.NewString(), topic, handler, b.logger)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return ""
	}

	b.byID[sub.id] = sub
	index := b.subscribers
	if sub.isPattern {
		index = b.wildcards
	}
	if index[topic] == nil {
		index[topic] = make(map[string]*subscription)
	}
	index[topic][sub.id] = sub

	go sub.run()
	return sub.id
}

// Unsubscribe cancels a subscription. Events already queued for it are
// dropped. It reports whether the subscription existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	sub, ok := b.byID[id]
	if ok {
		delete(b.byID, id)
		index := b.subscribers
		if sub.isPattern {
			index = b.wildcards
		}
		if subs := index[sub.topic]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(index, sub.topic)
			}
		}
	}
	b.mu.Unlock()

	if ok {
		sub.stop()
	}
	return ok
}

// Publish queues an event for every matching subscription and returns it.
// Nothing is delivered after Close.
func (b *Bus) Publish(topic string, fill func(*Event)) Event {
	ev := Event{
		ID:    uuid.NewString(),
		Topic: topic,
		Repo:  b.repo,
		Time:  time.Now(),
	}
	if fill != nil {
		fill(&ev)
	}
	if b.closed.Load() {
		return ev
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[topic] {
		sub.push(ev)
	}
	for pattern, subs := range b.wildcards {
		if !matchPattern(pattern, topic) {
			continue
		}
		for _, sub := range subs {
			sub.push(ev)
		}
	}
	return ev
}

// Close drops every subscription. Later Subscribe and Publish calls are
// no-ops.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}

	b.mu.Lock()
	subs := b.byID
	b.subscribers = make(map[string]map[string]*subscription)
	b.wildcards = make(map[string]map[string]*subscription)
	b.byID = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// isWildcard checks if the topic is a wildcard pattern.
func isWildcard(topic string) bool {
	return len(topic) >= 2 && topic[len(topic)-2:] == ".*"
}

// matchPattern checks if a topic matches a wildcard pattern.
func matchPattern(pattern, topic string) bool {
	if !isWildcard(pattern) {
		return pattern == topic
	}
	prefix := pattern[:len(pattern)-2]
	if len(topic) <= len(prefix) {
		return false
	}
	return topic[:len(prefix)] == prefix && topic[len(prefix)] == '.'
}
