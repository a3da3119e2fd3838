//go:build unix

package sink

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// FD writes PCM to a file descriptor, normally a nonblocking pipe or
// socket. EAGAIN is reported as a short write of zero frames. Bytes of a
// partially written frame are kept, and completed before any new frame.
type FD struct {
	enc     encoder
	pending []byte
	tail    []byte
	fd      int
}

// NewFD returns a sink writing to fd, for frames of channels interleaved
// samples, up to maxFrames per write. The caller owns fd.
func NewFD(fd, channels, maxFrames int) *FD {
	return &FD{
		enc:  newEncoder(channels, maxFrames),
		tail: make([]byte, 0, channels*2),
		fd:   fd,
	}
}

// SetNonblock puts fd into nonblocking mode.
func SetNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("sink: set nonblock: %w", err)
	}
	return nil
}

// Nonblocking implements fastmixer.NonblockingSink. It assumes the fd was
// put into nonblocking mode, see SetNonblock.
func (f *FD) Nonblocking() bool { return true }

// Write implements fastmixer.Sink.
func (f *FD) Write(buf []int16, frames int) (int, error) {
	if len(f.pending) != 0 {
		n, err := f.write(f.pending)
		f.pending = f.pending[n:]
		if err != nil || len(f.pending) != 0 {
			return 0, err
		}
	}
	b, err := f.enc.encode(buf, frames)
	if err != nil {
		return 0, err
	}
	n, err := f.write(b)
	if rem := n % f.enc.frameBytes; rem != 0 {
		f.tail = append(f.tail[:0], b[n-rem:n-rem+f.enc.frameBytes]...)
		f.pending = f.tail[rem:]
		// the partial frame counts as written
		n += f.enc.frameBytes - rem
	}
	return n / f.enc.frameBytes, err
}

// write writes b, retrying on EINTR, treating EAGAIN as nothing written.
func (f *FD) write(b []byte) (int, error) {
	for {
		n, err := unix.Write(f.fd, b)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		default:
			return 0, fmt.Errorf("sink: write fd %d: %w", f.fd, err)
		}
	}
}
