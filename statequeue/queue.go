// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statequeue

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Mode selects how long [Queue.Publish] waits.
type Mode uint8

const (
	// Async returns once the state is visible to the next Poll.
	Async Mode = iota
	// Sync returns once the reader has acknowledged the state.
	Sync
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case Async:
		return "Async"
	case Sync:
		return "Sync"
	default:
		return "Unknown"
	}
}

// GenerationSetter may be implemented by *T, in which case each published
// copy is stamped with its generation before it becomes visible.
type GenerationSetter interface {
	SetGeneration(gen uint64)
}

// Queue hands immutable snapshots of T from one writer goroutine to one
// reader goroutine. See the package documentation for the model.
type Queue[T any] struct { // betteralign:ignore
	pool *Pool[T]
	opts *queueOptions

	// reader is the goroutine ID registered by BindReader, or 0.
	reader atomic.Uint64

	// writer only
	scratch T
	dirty   bool

	// reader only
	polled uint64
	acked  uint64
}

// New creates a Queue. The scratch state starts as the zero T.
func New[T any](opts ...Option) (*Queue[T], error) {
	cfg, err := resolveQueueOptions(opts)
	if err != nil {
		return nil, err
	}
	pool, err := NewPool[T](cfg.poolSize)
	if err != nil {
		return nil, err
	}
	return &Queue[T]{pool: pool, opts: cfg}, nil
}

// Begin returns the writer's private scratch state, for modification before
// the next Publish. The scratch state retains whatever was last published,
// so callers modify rather than rebuild it. Writer only.
func (q *Queue[T]) Begin() *T {
	q.dirty = true
	return &q.scratch
}

// Pending returns the scratch state for inspection, without marking it for
// publishing. Writer only.
func (q *Queue[T]) Pending() *T {
	return &q.scratch
}

// Publish makes the scratch state visible to the reader and returns its
// generation. If Begin has not been called since the last Publish, nothing
// new is published: Async returns the current generation immediately, and
// Sync waits until that generation is acknowledged.
//
// Both modes wait, bounded by the sync timeout and ctx, if every slot may
// still be referenced by the reader. Sync then waits, with the same bound,
// for the reader to acknowledge. An expired bound returns a *LivenessError;
// a done ctx returns ctx.Err(). In either case an Async state may still have
// been published, which is reflected by a non-zero generation. Writer only.
func (q *Queue[T]) Publish(ctx context.Context, mode Mode) (uint64, error) {
	if id := q.reader.Load(); id != 0 && id == goroutineID() {
		return 0, ErrPublishFromReader
	}

	var gen uint64
	if q.dirty {
		slot, ok := q.pool.AcquireForWrite()
		if !ok {
			next := q.pool.Published() + 1
			err := q.wait(ctx, next, false, func() bool {
				slot, ok = q.pool.AcquireForWrite()
				return ok
			})
			if err != nil {
				return 0, err
			}
		}
		*slot.v = q.scratch
		if s, ok := any(slot.v).(GenerationSetter); ok {
			s.SetGeneration(slot.gen)
		}
		q.pool.Commit(slot)
		q.dirty = false
		gen = slot.gen
	} else {
		gen = q.pool.Published()
	}

	if mode != Sync || gen == 0 {
		return gen, nil
	}

	q.pool.c.syncTarget.Store(gen)
	if q.pool.Acknowledged() >= gen {
		return gen, nil
	}
	err := q.wait(ctx, gen, true, func() bool {
		return q.pool.Acknowledged() >= gen
	})
	return gen, err
}

// wait polls done until it returns true, spinning with runtime.Gosched
// before falling back to fixed sleeps. It gives up after the sync timeout.
func (q *Queue[T]) wait(ctx context.Context, gen uint64, sync bool, done func() bool) error {
	start := time.Now()
	deadline := start.Add(q.opts.syncTimeout)
	for i := 0; ; i++ {
		if done() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if i < q.opts.spinLimit {
			runtime.Gosched()
			continue
		}
		now := time.Now()
		if !now.Before(deadline) {
			return &LivenessError{
				Generation:   gen,
				Acknowledged: q.pool.Acknowledged(),
				Waited:       now.Sub(start),
				Sync:         sync,
			}
		}
		time.Sleep(q.opts.sleepInterval)
	}
}

// Poll returns the newest published state if it is newer than the last one
// returned by Poll. The state must be treated as read-only, and may be
// referenced until some later generation is acknowledged. Reader only.
func (q *Queue[T]) Poll() (*T, uint64, bool) {
	slot, ok := q.pool.CurrentForRead()
	if !ok || slot.gen <= q.polled {
		return nil, 0, false
	}
	q.polled = slot.gen
	return slot.v, slot.gen, true
}

// Acknowledge tells the writer that the reader no longer references any
// state older than the last one returned by Poll. Reader only.
func (q *Queue[T]) Acknowledge() {
	if q.polled == q.acked {
		return
	}
	q.acked = q.polled
	q.pool.Release(q.acked)
}

// SyncPending reports whether a Sync Publish is waiting on a generation the
// reader has not acknowledged. Reader only.
func (q *Queue[T]) SyncPending() bool {
	return q.pool.c.syncTarget.Load() > q.acked
}

// BindReader registers the calling goroutine as the reader, causing Publish
// to fail on it rather than deadlock. It should be called on the reader
// goroutine before the first Poll.
func (q *Queue[T]) BindReader() {
	q.reader.Store(goroutineID())
}

// UnbindReader clears the registration made by BindReader.
func (q *Queue[T]) UnbindReader() {
	q.reader.Store(0)
}

// Published returns the newest published generation. Safe for concurrent use.
func (q *Queue[T]) Published() uint64 { return q.pool.Published() }

// Acknowledged returns the newest acknowledged generation. Safe for
// concurrent use.
func (q *Queue[T]) Acknowledged() uint64 { return q.pool.Acknowledged() }

// PoolSize returns the number of state slots.
func (q *Queue[T]) PoolSize() int { return q.pool.Size() }
