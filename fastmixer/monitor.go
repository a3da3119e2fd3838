package fastmixer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

const (
	// DefaultMonitorInterval is how often a Monitor samples its dump.
	DefaultMonitorInterval = time.Second

	// DefaultReadAttempts bounds ReadConsistent retries per sample.
	DefaultReadAttempts = 16
)

// DefaultMonitorRates limits each warning category to 1 per 5 seconds, and
// 6 per minute.
func DefaultMonitorRates() map[time.Duration]int {
	return map[time.Duration]int{
		5 * time.Second: 1,
		time.Minute:     6,
	}
}

// warning categories, for rate limiting
const (
	categoryImplausible  = "implausible"
	categoryInconsistent = "inconsistent"
	categoryWriteErrors  = "write_errors"
	categoryShortWrites  = "short_writes"
	categoryUnderruns    = "underruns"
	categoryOverruns     = "overruns"
	categoryStalled      = "stalled"
)

// Report is the outcome of one Monitor sample: the snapshot, and what
// changed since the previous consistent one.
type Report struct {
	Snapshot DumpSnapshot
	// Elapsed is the time since the previous report.
	Elapsed time.Duration
	// TrackUnderruns counts new per-source underruns by slot.
	TrackUnderruns [MaxSources]uint32
	// Frames written since the previous report.
	Frames uint64
	// Deltas of the global counters.
	WriteErrors uint32
	ShortWrites uint32
	Underruns   uint32
	Overruns    uint32
	// Consistent is false if ReadConsistent gave up.
	Consistent bool
	// Stalled is true if the write sequence did not move while rendering.
	Stalled bool
	// Err is the Validate result.
	Err error
}

// monitorOptions holds configuration options for Monitor creation.
type monitorOptions struct {
	logger       *logiface.Logger[logiface.Event]
	rates        map[time.Duration]int
	interval     time.Duration
	readAttempts int
}

// MonitorOption configures a Monitor instance.
type MonitorOption interface {
	applyMonitor(*monitorOptions) error
}

// monitorOptionImpl implements MonitorOption.
type monitorOptionImpl struct {
	applyMonitorFunc func(*monitorOptions) error
}

func (o *monitorOptionImpl) applyMonitor(opts *monitorOptions) error {
	return o.applyMonitorFunc(opts)
}

// WithMonitorLogger sets the logger warnings are written to.
func WithMonitorLogger(logger *logiface.Logger[logiface.Event]) MonitorOption {
	return &monitorOptionImpl{func(opts *monitorOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMonitorInterval sets the sampling interval.
func WithMonitorInterval(d time.Duration) MonitorOption {
	return &monitorOptionImpl{func(opts *monitorOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: monitor interval %s", ErrInvalidOption, d)
		}
		opts.interval = d
		return nil
	}}
}

// WithMonitorRates sets the per category warning rate limits, in the form
// accepted by catrate.NewLimiter. A nil map disables rate limiting.
func WithMonitorRates(rates map[time.Duration]int) MonitorOption {
	return &monitorOptionImpl{func(opts *monitorOptions) error {
		opts.rates = rates
		return nil
	}}
}

// Monitor periodically samples a DumpState, on its own goroutine, and logs
// errors, underruns, overruns, and stalls.
type Monitor struct {
	dump    *DumpState
	opts    *monitorOptions
	limiter *catrate.Limiter

	mu      sync.Mutex
	last    Report
	hasLast bool
	prevAt  time.Time
}

// NewMonitor creates a monitor of dump.
func NewMonitor(dump *DumpState, opts ...MonitorOption) (m *Monitor, err error) {
	cfg := &monitorOptions{
		rates:        DefaultMonitorRates(),
		interval:     DefaultMonitorInterval,
		readAttempts: DefaultReadAttempts,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyMonitor(cfg); err != nil {
			return nil, err
		}
	}
	m = &Monitor{dump: dump, opts: cfg}
	if cfg.rates != nil {
		defer func() {
			if r := recover(); r != nil {
				m, err = nil, fmt.Errorf("%w: %v", ErrInvalidOption, r)
			}
		}()
		m.limiter = catrate.NewLimiter(cfg.rates)
	}
	return m, nil
}

// Run samples every interval until ctx is done, returning ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Last returns the newest report, if any.
func (m *Monitor) Last() (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// Sample takes one report, logging anything notable. Deltas are computed
// against the previous consistent report. Safe for concurrent use.
func (m *Monitor) Sample() Report {
	snap, consistent := m.dump.ReadConsistent(m.opts.readAttempts)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Snapshot:   snap,
		Consistent: consistent,
		Err:        snap.Validate(),
	}
	if !consistent {
		m.warn(categoryInconsistent).
			Uint64("write_sequence", uint64(snap.WriteSequence)).
			Log("dump changed during every read attempt")
	}
	if r.Err != nil {
		m.warn(categoryImplausible).
			Err(r.Err).
			Log("implausible dump")
	}

	if consistent && r.Err == nil {
		if m.hasLast && m.last.Consistent && m.last.Err == nil {
			m.delta(&r, &m.last.Snapshot, now.Sub(m.prevAt))
		}
		m.last, m.hasLast, m.prevAt = r, true, now
	} else if !m.hasLast {
		m.last, m.hasLast, m.prevAt = r, true, now
	}
	return r
}

func (m *Monitor) delta(r *Report, prev *DumpSnapshot, elapsed time.Duration) {
	cur := &r.Snapshot
	r.Elapsed = elapsed
	r.Frames = cur.FramesWritten - prev.FramesWritten
	r.WriteErrors = cur.WriteErrors - prev.WriteErrors
	r.ShortWrites = cur.ShortWrites - prev.ShortWrites
	r.Underruns = cur.Underruns - prev.Underruns
	r.Overruns = cur.Overruns - prev.Overruns
	var tracks uint32
	for i := range cur.Tracks {
		r.TrackUnderruns[i] = cur.Tracks[i].Count() - prev.Tracks[i].Count()
		tracks += r.TrackUnderruns[i]
	}
	r.Stalled = cur.Command == CommandRender &&
		prev.Command == CommandRender &&
		cur.WriteSequence == prev.WriteSequence

	if r.WriteErrors != 0 {
		m.warn(categoryWriteErrors).
			Int64("count", int64(r.WriteErrors)).
			Dur("elapsed", elapsed).
			Log("sink write errors")
	}
	if r.ShortWrites != 0 {
		m.warn(categoryShortWrites).
			Int64("count", int64(r.ShortWrites)).
			Dur("elapsed", elapsed).
			Log("sink short writes")
	}
	if r.Underruns != 0 || tracks != 0 {
		m.warn(categoryUnderruns).
			Int64("cycles", int64(r.Underruns)).
			Int64("sources", int64(tracks)).
			Dur("elapsed", elapsed).
			Log("underruns")
	}
	if r.Overruns != 0 {
		m.warn(categoryOverruns).
			Int64("count", int64(r.Overruns)).
			Dur("elapsed", elapsed).
			Log("overruns")
	}
	if r.Stalled {
		m.warn(categoryStalled).
			Uint64("write_sequence", uint64(cur.WriteSequence)).
			Dur("elapsed", elapsed).
			Log("render stalled")
	}
}

// warn returns a warning builder, or nil if the category is rate limited.
func (m *Monitor) warn(category string) *logiface.Builder[logiface.Event] {
	if m.limiter != nil {
		if _, ok := m.limiter.Allow(category); !ok {
			return nil
		}
	}
	return m.opts.logger.Warning().Str("category", category)
}
