package main

import "math"

// sine is a test tone provider. It never underruns.
type sine struct {
	phase    float64
	step     float64
	channels int
}

func newSine(frequency float64, sampleRate, channels int) *sine {
	return &sine{
		step:     2 * math.Pi * frequency / float64(sampleRate),
		channels: channels,
	}
}

// Fill implements fastmixer.Provider.
func (s *sine) Fill(dst []float32, frames int) int {
	for f := 0; f < frames; f++ {
		v := float32(math.Sin(s.phase))
		for c := 0; c < s.channels; c++ {
			dst[f*s.channels+c] = v
		}
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return frames
}
