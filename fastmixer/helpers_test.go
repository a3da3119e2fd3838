package fastmixer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-fastmixer/statequeue"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// newTestLogger logs at trace level into io.Discard, so every log call in
// the render thread is exercised.
func newTestLogger() *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(io.Discard)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()
}

// fakeClock is a manually advanced monotonic clock. It starts at one second,
// as zero means "no previous cycle" to the render thread.
type fakeClock struct {
	now atomic.Int64
}

func newFakeClock() *fakeClock {
	c := new(fakeClock)
	c.now.Store(int64(time.Second))
	return c
}

func (c *fakeClock) Now() time.Duration { return time.Duration(c.now.Load()) }

func (c *fakeClock) Advance(d time.Duration) {
	if d > 0 {
		c.now.Add(int64(d))
	}
}

// withClock replaces the thread's time source and precise sleep.
func withClock(now func() time.Duration, sleep func(time.Duration)) Option {
	return &optionImpl{func(opts *threadOptions) error {
		opts.now = now
		opts.sleep = sleep
		return nil
	}}
}

func withFakeClock(c *fakeClock) Option {
	return withClock(c.Now, c.Advance)
}

// withoutSleep runs on the real clock, but never sleeps when pacing.
func withoutSleep() Option {
	return withClock(monotonicNow, func(time.Duration) {})
}

func newTestQueue(t *testing.T) *statequeue.Queue[RenderState] {
	t.Helper()
	q, err := statequeue.New[RenderState](statequeue.WithSyncTimeout(10 * time.Second))
	require.NoError(t, err)
	return q
}

func newTestThread(t *testing.T, opts ...Option) (*statequeue.Queue[RenderState], *RenderThread) {
	t.Helper()
	q := newTestQueue(t)
	th, err := NewRenderThread(q, append([]Option{WithLogger(newTestLogger())}, opts...)...)
	require.NoError(t, err)
	return q, th
}

// startThread runs th on a new goroutine, stopping it via c at cleanup.
func startThread(t *testing.T, c *Controller, th *RenderThread) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- th.Run() }()
	t.Cleanup(func() {
		if th.State() != ThreadStateExited {
			_ = c.Exit(context.Background())
		}
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Errorf("render thread did not exit")
		}
	})
}

// constProvider fills every sample with v. If limit is non-negative, at
// most limit frames are supplied per call.
type constProvider struct {
	freed    atomic.Bool
	calls    atomic.Int64
	t        *testing.T
	v        float32
	channels int
	limit    int
}

func newConstProvider(t *testing.T, v float32, channels int) *constProvider {
	return &constProvider{t: t, v: v, channels: channels, limit: -1}
}

func (p *constProvider) Fill(dst []float32, frames int) int {
	if p.freed.Load() {
		p.t.Errorf("fill of a freed provider")
	}
	p.calls.Add(1)
	n := frames
	if p.limit >= 0 && p.limit < n {
		n = p.limit
	}
	for i := range dst[:n*p.channels] {
		dst[i] = p.v
	}
	return n
}

// recordingSink keeps a copy of every write, optionally advancing a fake
// clock to simulate a blocking device.
type recordingSink struct {
	mu     sync.Mutex
	writes [][]int16
	frames []int
	clock  *fakeClock
	block  time.Duration
	result func(frames int) (int, error)
}

func (s *recordingSink) Write(buf []int16, frames int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]int16(nil), buf...))
	s.frames = append(s.frames, frames)
	if s.clock != nil {
		s.clock.Advance(s.block)
	}
	if s.result != nil {
		return s.result(frames)
	}
	return frames, nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *recordingSink) last() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[len(s.writes)-1]
}

// publish sets up a state on the test goroutine, outside any controller.
func publish(t *testing.T, q *statequeue.Queue[RenderState], fn func(s *RenderState)) uint64 {
	t.Helper()
	fn(q.Begin())
	gen, err := q.Publish(t.Context(), statequeue.Async)
	require.NoError(t, err)
	return gen
}
