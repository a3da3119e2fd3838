package fastmixer

import (
	"errors"
	"math"
	"runtime"
	"sync/atomic"
	"time"
)

// TrackUnderruns is a packed per-source underrun record: bit 0 is set while
// the source is underrunning, bits 1..31 count the transitions into
// underrun over the lifetime of the slot.
type TrackUnderruns uint32

// Underrunning reports whether the source underran on its last mixed cycle.
func (u TrackUnderruns) Underrunning() bool { return u&1 != 0 }

// Count returns the number of times the source started underrunning.
func (u TrackUnderruns) Count() uint32 { return uint32(u) >> 1 }

// TrackDump holds the TrackUnderruns of one source slot. It is updated with
// a single atomic store and never reset.
type TrackDump struct {
	v atomic.Uint32
}

// Load returns the current record.
func (t *TrackDump) Load() TrackUnderruns {
	return TrackUnderruns(t.v.Load())
}

// update records the outcome of one mixed cycle. Render goroutine only.
func (t *TrackDump) update(underrun bool) {
	old := t.v.Load()
	v := old &^ 1
	if underrun {
		if old&1 == 0 {
			v += 2
		}
		v |= 1
	}
	if v != old {
		t.v.Store(v)
	}
}

// DumpState is the diagnostics block written by the render goroutine. Each
// field is independently atomic; no two fields are guaranteed to be from the
// same cycle. Create it with NewDumpState and hand it to the render goroutine
// via RenderState.Dump, or Controller.SetDump.
//
// The write sequence is incremented immediately before and after each sink
// write. It is odd while a write is in progress, and the frames written,
// write errors and short writes counters only change while it is odd.
type DumpState struct { // betteralign:ignore
	tracks [MaxSources]TrackDump

	generation    atomic.Uint64
	framesWritten atomic.Uint64
	cycles        atomic.Uint64
	warmupNanos   atomic.Int64
	meanNanos     atomic.Int64
	minNanos      atomic.Int64
	maxNanos      atomic.Int64
	stddevNanos   atomic.Int64
	p50Nanos      atomic.Int64
	p99Nanos      atomic.Int64
	loadBits      atomic.Uint64

	command       atomic.Uint32
	writeSequence atomic.Uint32
	numSources    atomic.Uint32
	writeErrors   atomic.Uint32
	shortWrites   atomic.Uint32
	underruns     atomic.Uint32
	overruns      atomic.Uint32
	sampleRate    atomic.Uint32
	frameCount    atomic.Uint32
	warmupCycles  atomic.Uint32
}

// NewDumpState returns an empty diagnostics block, reporting
// CommandColdIdle.
func NewDumpState() *DumpState {
	d := new(DumpState)
	d.command.Store(uint32(CommandColdIdle))
	return d
}

// CycleStats summarises the render cycle period, measured start to start
// over warm render cycles.
type CycleStats struct {
	Cycles uint64
	Mean   time.Duration
	Min    time.Duration
	Max    time.Duration
	StdDev time.Duration
	P50    time.Duration
	P99    time.Duration
	// Load is the mean fraction of the period spent mixing and writing.
	Load float64
}

// DumpSnapshot is a plain copy of a DumpState.
type DumpSnapshot struct {
	Tracks         [MaxSources]TrackUnderruns
	Stats          CycleStats
	Generation     uint64
	FramesWritten  uint64
	MeasuredWarmup time.Duration
	Command        Command
	WriteSequence  uint32
	NumSources     uint32
	WriteErrors    uint32
	ShortWrites    uint32
	Underruns      uint32
	Overruns       uint32
	SampleRate     uint32
	FrameCount     uint32
	WarmupCycles   uint32
}

// Read copies every field without any coordination with the writer. Safe
// for concurrent use.
func (d *DumpState) Read() (s DumpSnapshot) {
	s.WriteSequence = d.writeSequence.Load()
	s.Command = Command(d.command.Load())
	s.Generation = d.generation.Load()
	s.FramesWritten = d.framesWritten.Load()
	s.NumSources = d.numSources.Load()
	s.WriteErrors = d.writeErrors.Load()
	s.ShortWrites = d.shortWrites.Load()
	s.Underruns = d.underruns.Load()
	s.Overruns = d.overruns.Load()
	s.SampleRate = d.sampleRate.Load()
	s.FrameCount = d.frameCount.Load()
	s.MeasuredWarmup = time.Duration(d.warmupNanos.Load())
	s.WarmupCycles = d.warmupCycles.Load()
	for i := range d.tracks {
		s.Tracks[i] = d.tracks[i].Load()
	}
	s.Stats = CycleStats{
		Cycles: d.cycles.Load(),
		Mean:   time.Duration(d.meanNanos.Load()),
		Min:    time.Duration(d.minNanos.Load()),
		Max:    time.Duration(d.maxNanos.Load()),
		StdDev: time.Duration(d.stddevNanos.Load()),
		P50:    time.Duration(d.p50Nanos.Load()),
		P99:    time.Duration(d.p99Nanos.Load()),
		Load:   math.Float64frombits(d.loadBits.Load()),
	}
	return s
}

// ReadConsistent reads until it observes the same even write sequence
// before and after the copy, giving up after attempts tries. The write
// related counters of a consistent snapshot are from between two writes;
// the remaining fields are still best-effort.
func (d *DumpState) ReadConsistent(attempts int) (DumpSnapshot, bool) {
	var s DumpSnapshot
	for i := 0; i < attempts; i++ {
		s = d.Read()
		if s.WriteSequence&1 == 0 && d.writeSequence.Load() == s.WriteSequence {
			return s, true
		}
		runtime.Gosched()
	}
	return s, false
}

// Validate range checks the snapshot, returning every failure joined, each a
// *RangeError. Zero geometry is accepted as not yet configured.
func (s *DumpSnapshot) Validate() error {
	var errs []error
	for _, err := range s.check() {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *DumpSnapshot) check() (errs []*RangeError) {
	add := func(field string, value, lo, hi int64) {
		if value < lo || value > hi {
			errs = append(errs, &RangeError{Field: field, Value: value, Min: lo, Max: hi})
		}
	}
	add(fieldCommand, int64(s.Command), int64(CommandInitialize), int64(CommandExit))
	add(fieldNumSources, int64(s.NumSources), 0, MaxSources)
	if s.SampleRate != 0 {
		add(fieldSampleRate, int64(s.SampleRate), MinSampleRate, MaxSampleRate)
	}
	if s.FrameCount != 0 {
		add(fieldFrameCount, int64(s.FrameCount), 1, MaxFrameCount)
	}
	add(fieldMeasuredWarmup, int64(s.MeasuredWarmup), 0, math.MaxInt64)
	if st := s.Stats; st.Cycles != 0 {
		add(fieldStatsMin, int64(st.Min), 0, int64(st.Max))
		add(fieldStatsMean, int64(st.Mean), int64(st.Min), int64(st.Max))
		add(fieldStatsP50, int64(st.P50), int64(st.Min), int64(st.Max))
		add(fieldStatsP99, int64(st.P99), int64(st.Min), int64(st.Max))
		add(fieldStatsStdDev, int64(st.StdDev), 0, int64(st.Max-st.Min))
		if math.IsNaN(st.Load) || st.Load < 0 {
			errs = append(errs, &RangeError{Field: fieldStatsLoad, Value: int64(st.Load), Min: 0, Max: math.MaxInt64})
		}
	}
	return errs
}

const (
	fieldCommand        = "command"
	fieldNumSources     = "num_sources"
	fieldSampleRate     = "sample_rate"
	fieldFrameCount     = "frame_count"
	fieldMeasuredWarmup = "measured_warmup"
	fieldStatsMin       = "stats.min"
	fieldStatsMean      = "stats.mean"
	fieldStatsP50       = "stats.p50"
	fieldStatsP99       = "stats.p99"
	fieldStatsStdDev    = "stats.stddev"
	fieldStatsLoad      = "stats.load"
)

// The methods below are for the render goroutine only.

func (d *DumpState) setGeometry(frames, rate int) {
	d.frameCount.Store(uint32(frames))
	d.sampleRate.Store(uint32(rate))
}

func (d *DumpState) setStats(st *cycleStats) {
	d.cycles.Store(st.count)
	d.meanNanos.Store(int64(st.mean))
	d.minNanos.Store(int64(st.min))
	d.maxNanos.Store(int64(st.max))
	d.stddevNanos.Store(int64(st.stddev()))
	d.p50Nanos.Store(int64(st.p50.Quantile()))
	d.p99Nanos.Store(int64(st.p99.Quantile()))
	d.loadBits.Store(math.Float64bits(st.load))
}
