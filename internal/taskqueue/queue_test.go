package taskqueue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsTasksSerially(t *testing.T) {
	q := New("/repo")
	defer q.Close()

	var running, maxRunning atomic.Int32
	var order []int
	var mu sync.Mutex

	results := make([]<-chan error, 20)
	for i := range results {
		i := i
		ch, err := q.Submit(context.Background(), func() error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		results[i] = ch
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}

	assert.Equal(t, int32(1), maxRunning.Load())
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	processed, failed := q.Stats()
	assert.Equal(t, uint64(20), processed)
	assert.Zero(t, failed)
}

func TestDoReturnsValueAndError(t *testing.T) {
	q := New("/repo")
	defer q.Close()

	v, err := Do(context.Background(), q, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	v, err = Do(context.Background(), q, func() (int, error) { return 7, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, v)
}

func TestPanicBecomesError(t *testing.T) {
	q := New("/repo")
	defer q.Close()

	err := q.Run(context.Background(), func() error { panic("bad") })
	assert.ErrorIs(t, err, ErrPanic)

	// The worker survives.
	assert.NoError(t, q.Run(context.Background(), func() error { return nil }))
}

func TestCancelledWaitStillRunsTask(t *testing.T) {
	q := New("/repo")
	defer q.Close()

	release := make(chan struct{})
	ran := make(chan struct{})
	_, err := q.Submit(context.Background(), func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.Run(ctx, func() error {
		close(ran)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task was not run after its caller gave up")
	}
}

func TestCloseDrainsAndRejects(t *testing.T) {
	q := New("/repo")

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := q.Submit(context.Background(), func() error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	q.Close()
	q.Close()

	assert.Equal(t, int32(5), count.Load())
	_, err := q.Submit(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistrySharesQueuePerPath(t *testing.T) {
	r := NewRegistry(WithBufferSize(4))
	dir := t.TempDir()

	a, err := r.Acquire(dir)
	require.NoError(t, err)
	b, err := r.Acquire(filepath.Join(dir, "sub", ".."))
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := r.Acquire(filepath.Join(dir, "other"))
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, r.Len())

	r.Release(a)
	assert.NoError(t, b.Run(context.Background(), func() error { return nil }))
	r.Release(b)
	assert.Equal(t, 1, r.Len())
	_, err = b.Submit(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	r.Close()
	assert.Equal(t, 0, r.Len())
	_, err = other.Submit(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Acquire(dir)
	assert.ErrorIs(t, err, ErrClosed)
}
