package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestPublishStampsEvent(t *testing.T) {
	b := New(WithRepo("/repo"))
	defer b.Close()

	var c collector
	b.Subscribe(TopicWorkspaceChanged, c.handle)

	ev := b.Publish(TopicWorkspaceChanged, func(e *Event) { e.Paths = []string{"a.txt"} })
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "/repo", ev.Repo)
	assert.False(t, ev.Time.IsZero())

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	got := c.snapshot()[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, []string{"a.txt"}, got.Paths)
}

func TestDeliveryIsFIFOPerSubscription(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	b.Subscribe(TopicIndexChanged, func(ev Event) {
		// A slow handler must not reorder its own events.
		time.Sleep(time.Millisecond)
		c.handle(ev)
	})

	const n = 50
	ids := make([]string, n)
	for i := range ids {
		ids[i] = b.Publish(TopicIndexChanged, nil).ID
	}

	require.Eventually(t, func() bool { return c.count() == n }, 5*time.Second, 5*time.Millisecond)
	for i, ev := range c.snapshot() {
		assert.Equal(t, ids[i], ev.ID)
	}
}

func TestWildcardAndExactMatching(t *testing.T) {
	b := New()
	defer b.Close()

	var all, head collector
	b.Subscribe("head.*", all.handle)
	b.Subscribe(TopicHeadChanged, head.handle)

	b.Publish(TopicHeadChanged, nil)
	b.Publish(TopicIndexChanged, nil)

	require.Eventually(t, func() bool { return all.count() == 1 && head.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, all.count())

	assert.True(t, matchPattern("ref.*", "ref.head"))
	assert.False(t, matchPattern("ref.*", "ref"))
	assert.False(t, matchPattern("ref.*", "refs.head"))
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	id := b.Subscribe(TopicRefsChanged, c.handle)
	assert.Equal(t, 1, b.SubscriptionCount())

	assert.True(t, b.Unsubscribe(id))
	assert.False(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionCount())

	b.Publish(TopicRefsChanged, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.count())
}

func TestPanickingHandlerKeepsMailbox(t *testing.T) {
	b := New()
	defer b.Close()

	var c collector
	first := true
	b.Subscribe(TopicStashChanged, func(ev Event) {
		if first {
			first = false
			panic("boom")
		}
		c.handle(ev)
	})

	b.Publish(TopicStashChanged, nil)
	b.Publish(TopicStashChanged, nil)
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	b := New()
	var c collector
	b.Subscribe(TopicConfigChanged, c.handle)

	b.Close()
	b.Close()

	assert.Equal(t, "", b.Subscribe(TopicConfigChanged, c.handle))
	b.Publish(TopicConfigChanged, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, c.count())
	assert.Equal(t, 0, b.SubscriptionCount())
}
