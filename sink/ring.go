package sink

import (
	"errors"

	"github.com/smallnest/ringbuffer"
)

// Ring writes PCM into a byte ring buffer, for a device goroutine (for
// example an audio callback) to Drain. Only whole frames are written; a
// frame that does not fit is left for the next cycle, as a short write.
//
// The ring is guarded by a mutex shared with Drain, so a Write can wait
// for a concurrent Drain to finish. Use FD where that matters.
type Ring struct {
	ring *ringbuffer.RingBuffer
	enc  encoder
}

// NewRing returns a sink with a ring of the given size in bytes, for
// frames of channels interleaved samples, up to maxFrames per write.
func NewRing(size, channels, maxFrames int) *Ring {
	return &Ring{
		ring: ringbuffer.New(size),
		enc:  newEncoder(channels, maxFrames),
	}
}

// Write implements fastmixer.Sink.
func (r *Ring) Write(buf []int16, frames int) (int, error) {
	if n := r.ring.Free() / r.enc.frameBytes; n < frames {
		frames = n
	}
	if frames <= 0 {
		return 0, nil
	}
	b, err := r.enc.encode(buf, frames)
	if err != nil {
		return 0, err
	}
	n, err := r.ring.Write(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n / r.enc.frameBytes, err
	}
	return n / r.enc.frameBytes, nil
}

// Nonblocking implements fastmixer.NonblockingSink.
func (r *Ring) Nonblocking() bool { return true }

// Drain reads up to len(p) buffered bytes without blocking, returning 0 if
// the ring is empty.
func (r *Ring) Drain(p []byte) int {
	n, err := r.ring.TryRead(p)
	if err != nil {
		return 0
	}
	return n
}

// Buffered returns the number of bytes waiting to be drained.
func (r *Ring) Buffered() int { return r.ring.Length() }

// FrameBytes returns the size of one encoded frame.
func (r *Ring) FrameBytes() int { return r.enc.frameBytes }
