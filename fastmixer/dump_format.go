package fastmixer

import (
	"fmt"
	"io"
)

// WriteTo writes a human-readable dump to w. Fields that fail Validate are
// omitted rather than printed.
func (s *DumpSnapshot) WriteTo(w io.Writer) (int64, error) {
	bad := make(map[string]bool)
	for _, err := range s.check() {
		bad[err.Field] = true
	}
	p := &printer{w: w}

	if !bad[fieldCommand] {
		p.printf("  command=%s writeSequence=%d generation=%d\n", s.Command, s.WriteSequence, s.Generation)
	} else {
		p.printf("  writeSequence=%d generation=%d\n", s.WriteSequence, s.Generation)
	}
	p.printf("  framesWritten=%d writeErrors=%d shortWrites=%d\n", s.FramesWritten, s.WriteErrors, s.ShortWrites)
	p.printf("  underruns=%d overruns=%d\n", s.Underruns, s.Overruns)
	if !bad[fieldSampleRate] && !bad[fieldFrameCount] && s.SampleRate != 0 && s.FrameCount != 0 {
		p.printf("  sampleRate=%d frameCount=%d period=%s\n", s.SampleRate, s.FrameCount, period(int(s.FrameCount), int(s.SampleRate)))
	}
	if !bad[fieldMeasuredWarmup] {
		p.printf("  measuredWarmup=%s warmupCycles=%d\n", s.MeasuredWarmup, s.WarmupCycles)
	}

	if st := s.Stats; st.Cycles != 0 {
		p.printf("  cycles=%d", st.Cycles)
		for _, f := range [...]struct {
			field string
			name  string
			value any
		}{
			{fieldStatsMean, "mean", st.Mean},
			{fieldStatsMin, "min", st.Min},
			{"", "max", st.Max},
			{fieldStatsStdDev, "stddev", st.StdDev},
			{fieldStatsP50, "p50", st.P50},
			{fieldStatsP99, "p99", st.P99},
		} {
			if !bad[f.field] {
				p.printf(" %s=%v", f.name, f.value)
			}
		}
		if !bad[fieldStatsLoad] {
			p.printf(" load=%.1f%%", st.Load*100)
		}
		p.printf("\n")
	}

	if !bad[fieldNumSources] {
		p.printf("  numSources=%d\n", s.NumSources)
	}
	p.printf("  Index Underrunning Underruns\n")
	for i, t := range s.Tracks {
		if t == 0 {
			continue
		}
		p.printf("  %5d %12t %9d\n", i, t.Underrunning(), t.Count())
	}
	return p.n, p.err
}

// printer accumulates the byte count and first error of a series of writes.
type printer struct {
	w   io.Writer
	err error
	n   int64
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	n, err := fmt.Fprintf(p.w, format, args...)
	p.n += int64(n)
	p.err = err
}
