package fastmixer

import (
	"fmt"
	"time"
)

const (
	// MaxSources is the number of source slots in a RenderState.
	MaxSources = 8

	// MaxChannels is the largest channel count of a source or the output.
	MaxChannels = 2

	// MinSampleRate and MaxSampleRate bound the output sample rate.
	MinSampleRate = 4000
	MaxSampleRate = 192000

	// MaxFrameCount bounds the frames per cycle accepted by WithMaxFrameCount.
	MaxFrameCount = 65536
)

// Provider supplies source audio to the render goroutine. Fill writes up to
// frames interleaved frames, in the source's channel count, into dst, and
// returns how many it wrote. It must not block; returning fewer than frames
// is an underrun, and the remainder is mixed as silence.
type Provider interface {
	Fill(dst []float32, frames int) int
}

// Sink consumes mixed output. Write is given frames interleaved frames of
// 16-bit PCM in the output channel count and returns how many it accepted.
// A short write (n < frames with a nil error) and an error are counted
// separately; in either case the next cycle carries on with new audio.
type Sink interface {
	Write(buf []int16, frames int) (int, error)
}

// NonblockingSink is a Sink whose Write returns without waiting for the
// device, when Nonblocking reports true. The render thread paces such a sink
// itself, and its fast writes are not counted as overruns.
type NonblockingSink interface {
	Sink
	Nonblocking() bool
}

func isNonblocking(s Sink) bool {
	n, ok := s.(NonblockingSink)
	return ok && n.Nonblocking()
}

// Source is one slot of the mix. A slot with a nil Provider is free.
type Source struct {
	// Provider supplies audio. The render goroutine may call it until a
	// state without it has been acknowledged.
	Provider Provider
	// Gain scales every sample of the source.
	Gain float32
	// Channels is the source's interleaved channel count, 1 or 2.
	Channels int
	// Enabled sources are mixed; disabled ones keep their slot.
	Enabled bool
}

func (s *Source) active() bool {
	return s.Enabled && s.Provider != nil
}

// RenderState is one complete configuration of the render goroutine. Once
// published it must never be modified. It is copied by value, so everything
// in it is either a value or a reference owned elsewhere.
type RenderState struct {
	// Sources is ordered by slot id.
	Sources [MaxSources]Source

	// Sink receives the mix. A nil sink means the mix is computed and
	// discarded.
	Sink Sink

	// Dump receives diagnostics. Nil selects a block private to the render
	// thread.
	Dump *DumpState

	// Generation is stamped when the state is published.
	Generation uint64

	// SinkGeneration changes whenever Sink does, and causes the sink to be
	// warmed up again before rendering.
	SinkGeneration uint64

	// ColdGeneration changes on each transition into CommandColdIdle.
	ColdGeneration uint64

	// FrameCount, SampleRate and Channels are the output geometry.
	FrameCount int
	SampleRate int
	Channels   int

	Command Command
}

// SetGeneration implements statequeue.GenerationSetter.
func (s *RenderState) SetGeneration(gen uint64) { s.Generation = gen }

// ActiveSources returns the number of enabled sources.
func (s *RenderState) ActiveSources() (n int) {
	for i := range s.Sources {
		if s.Sources[i].active() {
			n++
		}
	}
	return n
}

// Period returns the duration of one cycle at the state's geometry, or 0 if
// the geometry is unset.
func (s *RenderState) Period() time.Duration {
	return period(s.FrameCount, s.SampleRate)
}

func period(frames, rate int) time.Duration {
	if frames <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// ValidateGeometry checks an output geometry against a render thread's
// capacity of maxFrames frames per cycle.
func ValidateGeometry(frames, rate, channels, maxFrames int) error {
	switch {
	case frames <= 0 || frames > maxFrames:
		return fmt.Errorf("%w: frame count %d outside [1, %d]", ErrInvalidGeometry, frames, maxFrames)
	case rate < MinSampleRate || rate > MaxSampleRate:
		return fmt.Errorf("%w: sample rate %d outside [%d, %d]", ErrInvalidGeometry, rate, MinSampleRate, MaxSampleRate)
	case channels < 1 || channels > MaxChannels:
		return fmt.Errorf("%w: channel count %d outside [1, %d]", ErrInvalidGeometry, channels, MaxChannels)
	}
	return nil
}
