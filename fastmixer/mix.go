package fastmixer

import "math"

// mixer holds the preallocated buffers of the render goroutine.
type mixer struct {
	acc []float32 // output accumulator, maxFrames*MaxChannels
	src []float32 // one source's samples, maxFrames*MaxChannels
	out []int16   // converted output, maxFrames*MaxChannels
}

func newMixer(maxFrames int) mixer {
	return mixer{
		acc: make([]float32, maxFrames*MaxChannels),
		src: make([]float32, maxFrames*MaxChannels),
		out: make([]int16, maxFrames*MaxChannels),
	}
}

// silence returns a zeroed output buffer of frames frames.
func (m *mixer) silence(frames, channels int) []int16 {
	out := m.out[:frames*channels]
	clear(out)
	return out
}

// mix sums every active source of st into the output buffer, recording each
// source's underrun outcome in tracks. The geometry of st must already have
// been validated against the buffer capacity.
func (m *mixer) mix(st *RenderState, tracks *[MaxSources]TrackDump) []int16 {
	frames, channels := st.FrameCount, st.Channels
	acc := m.acc[:frames*channels]
	clear(acc)

	for i := range st.Sources {
		s := &st.Sources[i]
		if !s.active() || s.Channels < 1 || s.Channels > MaxChannels {
			continue
		}
		src := m.src[:frames*s.Channels]
		n := s.Provider.Fill(src, frames)
		if n < 0 {
			n = 0
		} else if n > frames {
			n = frames
		}
		tracks[i].update(n < frames)
		accumulate(acc, src[:n*s.Channels], channels, s.Channels, s.Gain)
	}

	out := m.out[:len(acc)]
	for i, v := range acc {
		out[i] = toInt16(v)
	}
	return out
}

// accumulate adds gain-scaled src, in srcCh channels, into acc, in dstCh
// channels. Mono is duplicated to every output channel; stereo into mono is
// averaged.
func accumulate(acc, src []float32, dstCh, srcCh int, gain float32) {
	switch {
	case srcCh == dstCh:
		for i, v := range src {
			acc[i] += v * gain
		}
	case srcCh == 1:
		for f, v := range src {
			v *= gain
			for c := 0; c < dstCh; c++ {
				acc[f*dstCh+c] += v
			}
		}
	default:
		// stereo into mono
		g := gain / float32(srcCh)
		for f := 0; f*srcCh < len(src); f++ {
			var sum float32
			for c := 0; c < srcCh; c++ {
				sum += src[f*srcCh+c]
			}
			acc[f] += sum * g
		}
	}
}

// toInt16 converts a nominal [-1, 1] sample to 16-bit PCM, saturating.
func toInt16(v float32) int16 {
	v *= 32767
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	case math.IsNaN(float64(v)):
		return 0
	}
	return int16(v)
}
