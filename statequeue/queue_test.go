package statequeue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stamped struct {
	Value int
	Gen   uint64
}

func (s *stamped) SetGeneration(gen uint64) { s.Gen = gen }

func newTestQueue[T any](t *testing.T, opts ...Option) *Queue[T] {
	t.Helper()
	q, err := New[T](opts...)
	require.NoError(t, err)
	return q
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "Async", Async.String())
	assert.Equal(t, "Sync", Sync.String())
	assert.Equal(t, "Unknown", Mode(9).String())
}

func TestNew_options(t *testing.T) {
	q := newTestQueue[int](t)
	assert.Equal(t, DefaultPoolSize, q.PoolSize())

	q = newTestQueue[int](t, nil, WithPoolSize(8))
	assert.Equal(t, 8, q.PoolSize())

	_, err := New[int](WithPoolSize(2))
	assert.ErrorIs(t, err, ErrPoolSize)
	_, err = New[int](WithSyncTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New[int](WithWaitBackoff(-1, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = New[int](WithWaitBackoff(0, 0))
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestQueue_Poll_empty(t *testing.T) {
	q := newTestQueue[int](t)
	v, gen, ok := q.Poll()
	assert.Nil(t, v)
	assert.Zero(t, gen)
	assert.False(t, ok)
	q.Acknowledge()
	assert.Zero(t, q.Acknowledged())
}

func TestQueue_asyncPublishPoll(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue[stamped](t)

	q.Begin().Value = 1
	gen, err := q.Publish(ctx, Async)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	q.Begin().Value = 2
	gen, err = q.Publish(ctx, Async)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	// only the newest is returned
	v, gen, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, stamped{Value: 2, Gen: 2}, *v)

	_, _, ok = q.Poll()
	assert.False(t, ok)

	q.Acknowledge()
	assert.Equal(t, uint64(2), q.Acknowledged())
	assert.Equal(t, uint64(2), q.Published())
}

func TestQueue_scratchRetained(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue[stamped](t)
	q.Begin().Value = 41
	_, err := q.Publish(ctx, Async)
	require.NoError(t, err)
	s := q.Begin()
	assert.Equal(t, 41, s.Value)
	s.Value++
	_, err = q.Publish(ctx, Async)
	require.NoError(t, err)
	v, _, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, 42, v.Value)
}

func TestQueue_publishWithoutBegin(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue[int](t, WithSyncTimeout(50*time.Millisecond), WithWaitBackoff(0, time.Millisecond))

	// nothing published yet
	gen, err := q.Publish(ctx, Async)
	require.NoError(t, err)
	assert.Zero(t, gen)
	gen, err = q.Publish(ctx, Sync)
	require.NoError(t, err)
	assert.Zero(t, gen)

	*q.Begin() = 5
	gen, err = q.Publish(ctx, Async)
	require.NoError(t, err)
	require.Equal(t, uint64(1), gen)

	gen, err = q.Publish(ctx, Async)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, uint64(1), q.Published())

	// Sync without Begin waits on the existing generation
	_, err = q.Publish(ctx, Sync)
	var le *LivenessError
	require.True(t, errors.As(err, &le))
	assert.True(t, le.Sync)
	assert.Equal(t, uint64(1), le.Generation)

	_, _, ok := q.Poll()
	require.True(t, ok)
	q.Acknowledge()
	gen, err = q.Publish(ctx, Sync)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestQueue_syncWaitsForAcknowledge(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue[int](t)

	var acked atomic.Uint64
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.BindReader()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, gen, ok := q.Poll(); ok {
				// simulate a slow switch-over
				time.Sleep(time.Millisecond)
				acked.Store(gen)
				q.Acknowledge()
			}
			runtime.Gosched()
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	for i := 1; i <= 20; i++ {
		*q.Begin() = i
		gen, err := q.Publish(ctx, Sync)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, acked.Load(), gen)
		assert.GreaterOrEqual(t, q.Acknowledged(), gen)
	}
}

func TestQueue_syncLiveness(t *testing.T) {
	q := newTestQueue[int](t, WithSyncTimeout(20*time.Millisecond), WithWaitBackoff(10, time.Millisecond))
	*q.Begin() = 1
	start := time.Now()
	gen, err := q.Publish(context.Background(), Sync)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, uint64(1), gen)
	assert.ErrorIs(t, err, ErrLiveness)
	// the state was still published
	v, pgen, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(1), pgen)
	assert.Equal(t, 1, *v)
}

func TestQueue_asyncSlotExhaustion(t *testing.T) {
	q := newTestQueue[int](t, WithPoolSize(3), WithSyncTimeout(20*time.Millisecond), WithWaitBackoff(0, time.Millisecond))
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		*q.Begin() = i
		_, err := q.Publish(ctx, Async)
		require.NoError(t, err)
	}
	*q.Begin() = 4
	gen, err := q.Publish(ctx, Async)
	assert.Zero(t, gen)
	var le *LivenessError
	require.True(t, errors.As(err, &le))
	assert.False(t, le.Sync)
	assert.Equal(t, uint64(4), le.Generation)
	assert.Equal(t, uint64(3), q.Published())

	// scratch is still dirty, so the same state goes out once there is room
	v, gen, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(3), gen)
	assert.Equal(t, 3, *v)
	q.Acknowledge()
	gen, err = q.Publish(ctx, Async)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), gen)
}

func TestQueue_contextCanceled(t *testing.T) {
	q := newTestQueue[int](t)
	ctx, cancel := context.WithCancel(context.Background())
	*q.Begin() = 1
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	gen, err := q.Publish(ctx, Sync)
	assert.Equal(t, uint64(1), gen)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_publishFromReader(t *testing.T) {
	q := newTestQueue[int](t)
	q.BindReader()
	*q.Begin() = 1
	_, err := q.Publish(context.Background(), Async)
	assert.ErrorIs(t, err, ErrPublishFromReader)
	assert.Zero(t, q.Published())

	q.UnbindReader()
	gen, err := q.Publish(context.Background(), Async)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	// other goroutines are unaffected
	q.BindReader()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		*q.Begin() = 2
		_, err := q.Publish(context.Background(), Async)
		assert.NoError(t, err)
	}()
	wg.Wait()
	assert.Equal(t, uint64(2), q.Published())
}

func TestQueue_SyncPending(t *testing.T) {
	q := newTestQueue[int](t)
	assert.False(t, q.SyncPending())

	published := make(chan error, 1)
	go func() {
		*q.Begin() = 1
		_, err := q.Publish(context.Background(), Sync)
		published <- err
	}()

	require.Eventually(t, q.SyncPending, time.Second, time.Millisecond)
	_, _, ok := q.Poll()
	require.True(t, ok)
	assert.True(t, q.SyncPending())
	q.Acknowledge()
	assert.False(t, q.SyncPending())
	require.NoError(t, <-published)
}

type checksummed struct {
	Data [32]uint64
	Sum  uint64
	Gen  uint64
}

func (c *checksummed) SetGeneration(gen uint64) { c.Gen = gen }

func (c *checksummed) sum() (s uint64) {
	for _, v := range c.Data {
		s = s*31 + v
	}
	return s
}

// Every state the reader observes must be internally consistent, strictly
// newer than the last, and must not change while the reader references it.
func TestQueue_stress(t *testing.T) {
	iterations := 200_000
	if testing.Short() {
		iterations = 10_000
	}
	for _, size := range []int{3, 4, 7} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			q := newTestQueue[checksummed](t, WithPoolSize(size), WithSyncTimeout(10*time.Second))

			var (
				wg      sync.WaitGroup
				stop    atomic.Bool
				applied atomic.Uint64
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.BindReader()
				var last uint64
				var current *checksummed
				for !stop.Load() || last < q.Published() {
					if current != nil && current.sum() != current.Sum {
						t.Errorf("state %d modified while referenced", current.Gen)
						return
					}
					v, gen, ok := q.Poll()
					if !ok {
						runtime.Gosched()
						continue
					}
					if gen <= last {
						t.Errorf("generation %d after %d", gen, last)
						return
					}
					if v.Gen != gen {
						t.Errorf("stamped generation %d, polled %d", v.Gen, gen)
						return
					}
					if v.sum() != v.Sum {
						t.Errorf("torn state at generation %d", gen)
						return
					}
					// both old and new are referenced until acknowledged
					if current != nil && current.sum() != current.Sum {
						t.Errorf("state %d modified before acknowledge", current.Gen)
						return
					}
					current, last = v, gen
					q.Acknowledge()
					applied.Add(1)
				}
			}()

			defer stop.Store(true)
			ctx := context.Background()
			for i := 0; i < iterations; i++ {
				s := q.Begin()
				for j := range s.Data {
					s.Data[j] = uint64(i*131 + j)
				}
				s.Sum = s.sum()
				mode := Async
				if i%97 == 0 {
					mode = Sync
				}
				if _, err := q.Publish(ctx, mode); err != nil {
					t.Fatal(err)
				}
			}
			stop.Store(true)
			wg.Wait()
			assert.Equal(t, uint64(iterations), q.Published())
			assert.Equal(t, q.Published(), q.Acknowledged())
			assert.NotZero(t, applied.Load())
		})
	}
}
