package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// funcTask wraps a function as a Task for tests.
type funcTask struct {
	BaseTask
	fn func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newFuncTask(name, key string, kind TaskKind, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *funcTask {
	return &funcTask{BaseTask: NewBaseTask(name, key, kind), fn: fn}
}

func (t *funcTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx, enqueuer)
}

func TestQueue_ExecutesTask(t *testing.T) {
	q := New(zap.NewNop())

	var ran atomic.Bool
	ok := q.Enqueue(newFuncTask("noop", "", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
		ran.Store(true)
		return nil
	}))
	require.True(t, ok)

	require.NoError(t, q.Wait(context.Background()))
	assert.True(t, ran.Load())
	assert.True(t, q.IsComplete())
}

func TestQueue_DeduplicatesByKey(t *testing.T) {
	q := New(zap.NewNop())

	release := make(chan struct{})
	var runs atomic.Int32

	task := func() Task {
		return newFuncTask("refresh", "refresh:ds-1", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
			runs.Add(1)
			<-release
			return nil
		})
	}

	require.True(t, q.Enqueue(task()))
	// Same key while the first is in flight: dropped.
	assert.False(t, q.Enqueue(task()))
	assert.False(t, q.Enqueue(task()))

	close(release)
	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, int32(1), runs.Load())

	// Key is free again after completion.
	assert.True(t, q.Enqueue(newFuncTask("refresh", "refresh:ds-1", KindData, nil)))
	require.NoError(t, q.Wait(context.Background()))
}

func TestQueue_EmptyKeyNeverDeduplicates(t *testing.T) {
	q := New(zap.NewNop())

	var runs atomic.Int32
	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(newFuncTask("anon", "", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
			runs.Add(1)
			return nil
		})))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, int32(3), runs.Load())
}

func TestQueue_WaitReturnsTaskError(t *testing.T) {
	q := New(zap.NewNop())

	wantErr := errors.New("upstream exploded")
	q.Enqueue(newFuncTask("boom", "", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
		return wantErr
	}))

	err := q.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.True(t, q.HasFailures())

	// The failed task released its key.
	assert.True(t, q.Enqueue(newFuncTask("boom", "k", KindData, nil)))
}

func TestQueue_SerializedStrategy(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewSerializedStrategy()))

	var mu sync.Mutex
	var concurrent, maxConcurrent int

	for i := 0; i < 5; i++ {
		q.Enqueue(newFuncTask("serial", "", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
			mu.Lock()
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			concurrent--
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, 1, maxConcurrent, "data tasks must not overlap")
}

func TestQueue_ThrottledStrategy(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(0, 2)))

	var mu sync.Mutex
	var concurrent, maxConcurrent int

	for i := 0; i < 6; i++ {
		q.Enqueue(newFuncTask("reply", "", KindAssistant, func(ctx context.Context, _ TaskEnqueuer) error {
			mu.Lock()
			concurrent++
			if concurrent > maxConcurrent {
				maxConcurrent = concurrent
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			concurrent--
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.LessOrEqual(t, maxConcurrent, 2)
}

func TestQueue_FollowUpTasks(t *testing.T) {
	q := New(zap.NewNop())

	var followRan atomic.Bool
	q.Enqueue(newFuncTask("parent", "", KindData, func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newFuncTask("child", "", KindAssistant, func(ctx context.Context, _ TaskEnqueuer) error {
			followRan.Store(true)
			return nil
		}))
		return nil
	}))

	require.NoError(t, q.Wait(context.Background()))
	assert.True(t, followRan.Load())
}

func TestQueue_Cancel(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewSerializedStrategy()))

	started := make(chan struct{})
	q.Enqueue(newFuncTask("long", "", KindData, func(ctx context.Context, _ TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	// Blocked behind the running data task.
	q.Enqueue(newFuncTask("queued", "", KindData, nil))

	<-started
	q.Cancel()

	require.NoError(t, waitComplete(q, time.Second))

	snapshots := q.GetTasks()
	require.Len(t, snapshots, 2)
	for _, s := range snapshots {
		assert.Equal(t, TaskStatusCancelled, s.Status)
	}

	assert.False(t, q.Enqueue(newFuncTask("late", "", KindData, nil)))
}

func waitComplete(q *Queue, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if q.IsComplete() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return errors.New("queue did not complete in time")
}
