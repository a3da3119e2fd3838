package fastmixer

import (
	"runtime"
	"time"

	"github.com/joeycumines/go-fastmixer/statequeue"
	"github.com/joeycumines/logiface"
)

// RenderThread is the reader side of a RenderState queue: a periodic
// goroutine that applies each new state and executes its command. Construct
// it with NewRenderThread and call Run on a dedicated goroutine.
//
// Besides Run, only Wake, Done, State and MaxFrameCount may be called from
// other goroutines.
type RenderThread struct { // betteralign:ignore
	state  threadState
	queue  *statequeue.Queue[RenderState]
	opts   *threadOptions
	logger *logiface.Logger[logiface.Event]
	wake   chan struct{}
	done   chan struct{}

	// Everything below is owned by the render goroutine.

	cur       *RenderState
	dump      *DumpState
	private   DumpState
	mixer     mixer
	stats     cycleStats
	coldTimer *time.Timer

	period      time.Duration
	lastCycle   time.Duration // start of the previous timed cycle, 0 if none
	lastBusy    time.Duration
	warmupStart time.Duration

	sinkGen      uint64
	coldGen      uint64
	warmupCycles int
	writeErrors  int // consecutive

	warm              bool
	nonblocking       bool // the sink never blocks, see NonblockingSink
	paced             bool // the previous warmup cycle slept to pace the sink
	failed            bool // write error limit reached
	invalid           bool // geometry outside capacity
	ignoreNextOverrun bool
}

// NewRenderThread creates a render thread reading from q. Every buffer the
// thread needs is allocated here.
func NewRenderThread(q *statequeue.Queue[RenderState], opts ...Option) (*RenderThread, error) {
	cfg, err := resolveThreadOptions(opts)
	if err != nil {
		return nil, err
	}
	t := &RenderThread{
		queue:     q,
		opts:      cfg,
		logger:    cfg.logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		mixer:     newMixer(cfg.maxFrameCount),
		stats:     makeCycleStats(),
		coldTimer: time.NewTimer(time.Hour),
	}
	t.coldTimer.Stop()
	t.private.command.Store(uint32(CommandColdIdle))
	t.dump = &t.private
	return t, nil
}

// Run executes render cycles on the calling goroutine, which is locked to
// its OS thread, until a state with CommandExit is applied. It returns
// ErrAlreadyRunning or ErrExited if called more than once.
func (t *RenderThread) Run() error {
	if !t.state.TryTransition(ThreadStateNew, ThreadStateRunning) {
		if t.state.Load() == ThreadStateExited {
			return ErrExited
		}
		return ErrAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(t.done)
	defer t.state.Store(ThreadStateExited)

	t.queue.BindReader()
	defer t.queue.UnbindReader()

	t.logger.Info().
		Int("max_frame_count", t.opts.maxFrameCount).
		Int("pool_size", t.queue.PoolSize()).
		Log("render thread started")

	for t.cycle() {
	}

	t.logger.Info().
		Uint64("generation", t.cur.Generation).
		Log("render thread exited")
	return nil
}

// Done returns a channel closed when Run returns.
func (t *RenderThread) Done() <-chan struct{} { return t.done }

// State returns the lifecycle state.
func (t *RenderThread) State() ThreadState { return t.state.Load() }

// MaxFrameCount returns the frame capacity per cycle.
func (t *RenderThread) MaxFrameCount() int { return t.opts.maxFrameCount }

// Wake ends the current CommandColdIdle sleep early. At most one wake is
// buffered; it is discarded when the next cold idle period starts.
func (t *RenderThread) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// cycle runs one iteration and reports whether to continue.
func (t *RenderThread) cycle() bool {
	now := t.opts.now()
	if st, _, ok := t.queue.Poll(); ok {
		t.apply(st, now)
		// the previous state is no longer referenced
		t.queue.Acknowledge()
	}

	st := t.cur
	switch {
	case st == nil:
		t.coldIdle()
	case st.Command == CommandExit:
		t.dump.command.Store(uint32(CommandExit))
		return false
	case st.Command == CommandHotIdle:
		t.lastCycle = 0
		t.dump.command.Store(uint32(CommandHotIdle))
		t.opts.sleep(t.opts.hotIdleSleep)
	case st.Command == CommandColdIdle || t.failed || t.invalid:
		t.coldIdle()
	case !t.warm:
		t.warmup(st, now)
	case st.Command == CommandRender:
		t.render(st, now)
	default:
		// initialize, and warm
		t.coldIdle()
	}
	return true
}

// apply switches to a newly polled state.
func (t *RenderThread) apply(st *RenderState, now time.Duration) {
	prev := t.cur
	t.cur = st

	if st.Dump != nil {
		t.dump = st.Dump
	} else {
		t.dump = &t.private
	}
	t.dump.generation.Store(st.Generation)
	t.dump.numSources.Store(uint32(st.ActiveSources()))
	t.dump.setGeometry(st.FrameCount, st.SampleRate)

	t.failed = false
	t.writeErrors = 0

	geometry := prev == nil ||
		prev.FrameCount != st.FrameCount ||
		prev.SampleRate != st.SampleRate ||
		prev.Channels != st.Channels

	wasInvalid := t.invalid
	t.invalid = false
	if st.Command == CommandInitialize || st.Command == CommandRender {
		if err := ValidateGeometry(st.FrameCount, st.SampleRate, st.Channels, t.opts.maxFrameCount); err != nil {
			t.invalid = true
			if !wasInvalid {
				t.logger.Warning().
					Err(err).
					Uint64("generation", st.Generation).
					Log("render thread idling on unusable geometry")
			}
		}
	}
	t.period = st.Period()

	if geometry || prev.SinkGeneration != st.SinkGeneration {
		t.sinkGen = st.SinkGeneration
		t.warm = st.Sink == nil
		t.nonblocking = isNonblocking(st.Sink)
		t.paced = false
		t.warmupStart = now
		t.warmupCycles = 0
		t.lastCycle = 0
	}

	if prev == nil || prev.Command != st.Command {
		t.lastCycle = 0
		t.ignoreNextOverrun = true
	}

	if st.ColdGeneration != t.coldGen {
		t.coldGen = st.ColdGeneration
		// discard a wake meant for the previous cold period
		select {
		case <-t.wake:
		default:
		}
	}
}

// coldIdle sleeps until woken or the cold idle period ends, or returns at
// once if a Sync publish is waiting to be acknowledged.
func (t *RenderThread) coldIdle() {
	t.lastCycle = 0
	t.dump.command.Store(uint32(CommandColdIdle))
	if t.queue.SyncPending() {
		runtime.Gosched()
		return
	}
	t.coldTimer.Reset(t.opts.coldIdleSleep)
	select {
	case <-t.wake:
	case <-t.coldTimer.C:
	}
	t.coldTimer.Stop()
}

// warmup writes one silent buffer, paced like render. The sink is warm once
// a cycle the thread did not pace takes between half and one and a half
// periods, meaning writes have started to block, or after the maximum number
// of warmup cycles.
func (t *RenderThread) warmup(st *RenderState, now time.Duration) {
	t.dump.command.Store(uint32(st.Command))
	if t.lastCycle != 0 && !t.paced {
		sec := now - t.lastCycle
		if sec >= t.period/2 && sec <= 3*t.period/2 {
			t.warm = true
		}
	}
	timedOut := !t.warm && t.warmupCycles >= t.opts.maxWarmupCycles
	if t.warm || timedOut {
		t.warm = true
		measured := now - t.warmupStart
		t.dump.warmupNanos.Store(int64(measured))
		t.dump.warmupCycles.Store(uint32(t.warmupCycles))
		t.lastCycle = 0
		t.ignoreNextOverrun = true
		t.logger.Info().
			Dur("measured_warmup", measured).
			Int("warmup_cycles", t.warmupCycles).
			Bool("timed_out", timedOut).
			Log("sink warm")
		return
	}
	t.lastCycle = now
	t.warmupCycles++
	t.write(st.Sink, t.mixer.silence(st.FrameCount, st.Channels), st.FrameCount)
	_, t.paced = t.pace(now)
}

// render mixes and writes one period. Cycle timing is measured start to
// start: longer than 7/4 of a period is an underrun. A cycle whose mix and
// write finish within 1/4 of a period is paced, and is an overrun unless
// the sink is a NonblockingSink.
func (t *RenderThread) render(st *RenderState, now time.Duration) {
	t.dump.command.Store(uint32(CommandRender))
	if t.lastCycle != 0 {
		sec := now - t.lastCycle
		if sec > t.period*7/4 {
			t.dump.underruns.Add(1)
			t.ignoreNextOverrun = true
		}
		t.stats.add(sec, t.lastBusy, t.period)
		t.dump.setStats(&t.stats)
	}
	t.lastCycle = now

	out := t.mixer.mix(st, &t.dump.tracks)
	if st.Sink != nil {
		t.write(st.Sink, out, st.FrameCount)
	}

	busy, paced := t.pace(now)
	t.lastBusy = busy
	switch {
	case !paced || st.Sink == nil || t.nonblocking:
		t.ignoreNextOverrun = false
	case t.ignoreNextOverrun:
		t.ignoreNextOverrun = false
	default:
		t.dump.overruns.Add(1)
	}
}

// pace sleeps until 19/20 of the period has passed since start, if the
// cycle's work took less than 1/4 of it.
func (t *RenderThread) pace(start time.Duration) (busy time.Duration, paced bool) {
	busy = t.opts.now() - start
	if busy >= t.period/4 {
		return busy, false
	}
	t.opts.sleep(t.period*19/20 - busy)
	return busy, true
}

// write performs one sink write, bracketed by write sequence increments.
func (t *RenderThread) write(sink Sink, buf []int16, frames int) {
	if sink == nil {
		return
	}
	d := t.dump
	d.writeSequence.Add(1)
	n, err := sink.Write(buf, frames)
	if err != nil {
		d.writeErrors.Add(1)
		t.writeErrors++
	} else {
		t.writeErrors = 0
		if n < 0 {
			n = 0
		} else if n > frames {
			n = frames
		}
		if n < frames {
			d.shortWrites.Add(1)
		}
		d.framesWritten.Add(uint64(n))
	}
	d.writeSequence.Add(1)

	if err != nil && t.writeErrors >= t.opts.writeErrorLimit && !t.failed {
		t.failed = true
		t.logger.Err().
			Err(err).
			Int("consecutive_errors", t.writeErrors).
			Uint64("generation", t.cur.Generation).
			Log("render thread idling after sink errors")
	}
}
