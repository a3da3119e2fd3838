package sink

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
)

// ErrTooManyFrames is returned when a write exceeds the capacity a sink was
// constructed with.
var ErrTooManyFrames = errors.New("sink: frame count exceeds capacity")

// Discard accepts every frame. The zero value is ready to use.
type Discard struct {
	frames atomic.Uint64
	writes atomic.Uint64
}

// Write implements fastmixer.Sink.
func (d *Discard) Write(buf []int16, frames int) (int, error) {
	d.frames.Add(uint64(frames))
	d.writes.Add(1)
	return frames, nil
}

// Nonblocking implements fastmixer.NonblockingSink.
func (d *Discard) Nonblocking() bool { return true }

// Frames returns the total frames accepted. Safe for concurrent use.
func (d *Discard) Frames() uint64 { return d.frames.Load() }

// Writes returns the number of Write calls. Safe for concurrent use.
func (d *Discard) Writes() uint64 { return d.writes.Load() }

// Func adapts a function to fastmixer.Sink.
type Func func(buf []int16, frames int) (int, error)

// Write implements fastmixer.Sink.
func (f Func) Write(buf []int16, frames int) (int, error) {
	return f(buf, frames)
}

// encoder converts frames to little-endian PCM bytes.
type encoder struct {
	buf        []byte
	channels   int
	frameBytes int
	maxFrames  int
}

func newEncoder(channels, maxFrames int) encoder {
	return encoder{
		buf:        make([]byte, maxFrames*channels*2),
		channels:   channels,
		frameBytes: channels * 2,
		maxFrames:  maxFrames,
	}
}

// encode returns the bytes of the first frames frames of buf.
func (e *encoder) encode(buf []int16, frames int) ([]byte, error) {
	if frames > e.maxFrames || frames*e.channels > len(buf) {
		return nil, ErrTooManyFrames
	}
	out := e.buf[:frames*e.frameBytes]
	for i, v := range buf[:frames*e.channels] {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}
