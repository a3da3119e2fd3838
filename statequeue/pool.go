package statequeue

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// cursors are the only words shared between writer and reader. Each sits on
// its own cache line, the writer stores published, the reader stores ack.
type cursors struct { // betteralign:ignore
	_          cpu.CacheLinePad
	published  atomic.Uint64 // newest committed generation, 0 = none
	_          [cacheLinePad - cursorSize]byte
	ack        atomic.Uint64 // newest generation the reader released its predecessors for
	_          [cacheLinePad - cursorSize]byte
	syncTarget atomic.Uint64 // generation a Sync writer is waiting on
	_          [cacheLinePad - cursorSize]byte
}

// Slot is a reference to one pool entry, tagged with the generation it holds
// (or will hold, for a slot acquired for writing).
type Slot[T any] struct {
	v   *T
	gen uint64
}

// Value returns the slot's state. It is nil for the zero Slot.
func (s Slot[T]) Value() *T { return s.v }

// Generation returns the generation stored in the slot.
func (s Slot[T]) Generation() uint64 { return s.gen }

// Pool is a fixed set of state buffers, shared by one writer and one reader.
// Generation g is stored in slot g%Size(). Generation numbering starts at 1.
//
// Writer methods: AcquireForWrite, Commit. Reader methods: CurrentForRead,
// Release. Published, Acknowledged and Size may be called from anywhere.
type Pool[T any] struct { // betteralign:ignore
	c     cursors
	slots []T
	next  uint64 // writer only
}

// NewPool allocates a pool of size slots. The size must be at least
// MinPoolSize.
func NewPool[T any](size int) (*Pool[T], error) {
	if size < MinPoolSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrPoolSize, size, MinPoolSize)
	}
	return &Pool[T]{
		slots: make([]T, size),
		next:  1,
	}, nil
}

// Size returns the number of slots.
func (p *Pool[T]) Size() int { return len(p.slots) }

// Published returns the newest committed generation, or 0.
func (p *Pool[T]) Published() uint64 { return p.c.published.Load() }

// Acknowledged returns the newest generation released by the reader, or 0.
func (p *Pool[T]) Acknowledged() uint64 { return p.c.ack.Load() }

// AcquireForWrite returns the slot for the next generation, or false if it
// could still be referenced by the reader. The previous occupant of the slot
// (generation g-N) must be strictly older than the acknowledged generation.
// It never blocks.
//
// The returned slot must be filled and passed to Commit before the next
// call. Calling AcquireForWrite again without committing returns the same
// slot.
func (p *Pool[T]) AcquireForWrite() (Slot[T], bool) {
	gen := p.next
	size := uint64(len(p.slots))
	if gen > size && gen-size >= p.c.ack.Load() {
		return Slot[T]{}, false
	}
	return Slot[T]{v: &p.slots[gen%size], gen: gen}, true
}

// Commit publishes a slot previously returned by AcquireForWrite, making it
// the newest state. This is a single atomic store.
func (p *Pool[T]) Commit(s Slot[T]) {
	if s.v == nil || s.gen != p.next {
		panic(fmt.Sprintf("statequeue: commit of generation %d, expected %d", s.gen, p.next))
	}
	p.c.published.Store(s.gen)
	p.next++
}

// CurrentForRead returns the newest committed slot without blocking. It
// returns false if nothing has been committed yet.
func (p *Pool[T]) CurrentForRead() (Slot[T], bool) {
	gen := p.c.published.Load()
	if gen == 0 {
		return Slot[T]{}, false
	}
	return Slot[T]{v: &p.slots[gen%uint64(len(p.slots))], gen: gen}, true
}

// Release records that the reader references nothing older than gen. The
// generation must not decrease.
func (p *Pool[T]) Release(gen uint64) {
	p.c.ack.Store(gen)
}
