package statequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_tooSmall(t *testing.T) {
	for _, n := range []int{-1, 0, 1, 2} {
		p, err := NewPool[int](n)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, ErrPoolSize)
	}
	p, err := NewPool[int](MinPoolSize)
	require.NoError(t, err)
	assert.Equal(t, MinPoolSize, p.Size())
}

func TestPool_CurrentForRead_empty(t *testing.T) {
	p, err := NewPool[int](3)
	require.NoError(t, err)
	s, ok := p.CurrentForRead()
	assert.False(t, ok)
	assert.Nil(t, s.Value())
	assert.Zero(t, s.Generation())
}

func TestPool_maxLead(t *testing.T) {
	for _, size := range []int{3, 4, 8} {
		p, err := NewPool[int](size)
		require.NoError(t, err)
		p.Release(1)
		for {
			s, ok := p.AcquireForWrite()
			if !ok {
				break
			}
			p.Commit(s)
		}
		assert.Equal(t, uint64(size-1), p.Published()-p.Acknowledged(), "size %d", size)
		p.Release(2)
		s, ok := p.AcquireForWrite()
		require.True(t, ok, "size %d", size)
		assert.Equal(t, uint64(size+1), s.Generation())
	}
}

func TestPool_slotReuse(t *testing.T) {
	const size = 4
	p, err := NewPool[int](size)
	require.NoError(t, err)

	// the first size generations never wait
	for gen := uint64(1); gen <= size; gen++ {
		s, ok := p.AcquireForWrite()
		require.True(t, ok, gen)
		require.Equal(t, gen, s.Generation())
		*s.Value() = int(gen)
		p.Commit(s)
		assert.Equal(t, gen, p.Published())
	}

	// generation 5 reuses the slot of generation 1, which requires ack >= 2
	_, ok := p.AcquireForWrite()
	assert.False(t, ok)
	p.Release(1)
	_, ok = p.AcquireForWrite()
	assert.False(t, ok)

	r, ok := p.CurrentForRead()
	require.True(t, ok)
	assert.Equal(t, uint64(size), r.Generation())
	assert.Equal(t, size, *r.Value())

	p.Release(2)
	s, ok := p.AcquireForWrite()
	require.True(t, ok)
	assert.Equal(t, uint64(5), s.Generation())
	// distinct from every generation in [ack, published]
	for gen := uint64(2); gen <= size; gen++ {
		assert.NotSame(t, &p.slots[gen%size], s.Value(), gen)
	}
	assert.Equal(t, uint64(2), p.Acknowledged())
}

func TestPool_AcquireForWrite_idempotent(t *testing.T) {
	p, err := NewPool[int](3)
	require.NoError(t, err)
	a, ok := p.AcquireForWrite()
	require.True(t, ok)
	b, ok := p.AcquireForWrite()
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestPool_Commit_outOfOrder(t *testing.T) {
	p, err := NewPool[int](3)
	require.NoError(t, err)
	s, ok := p.AcquireForWrite()
	require.True(t, ok)
	p.Commit(s)
	assert.Panics(t, func() { p.Commit(s) })
	assert.Panics(t, func() { p.Commit(Slot[int]{}) })
}
