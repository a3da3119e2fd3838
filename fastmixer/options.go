// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fastmixer

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultMaxFrameCount is the default capacity, in frames per cycle.
	DefaultMaxFrameCount = 4096

	// DefaultHotIdleSleep is the default sleep of a CommandHotIdle cycle.
	DefaultHotIdleSleep = time.Millisecond

	// DefaultColdIdleSleep is the default sleep of a CommandColdIdle cycle,
	// unless woken.
	DefaultColdIdleSleep = 50 * time.Millisecond

	// DefaultWriteErrorLimit is the default number of consecutive sink
	// errors tolerated before the render goroutine stops writing.
	DefaultWriteErrorLimit = 8

	// DefaultMaxWarmupCycles is the default bound on warmup writes.
	DefaultMaxWarmupCycles = 10
)

// threadOptions holds configuration options for RenderThread creation.
type threadOptions struct {
	logger          *logiface.Logger[logiface.Event]
	now             func() time.Duration
	sleep           func(time.Duration)
	maxFrameCount   int
	writeErrorLimit int
	maxWarmupCycles int
	hotIdleSleep    time.Duration
	coldIdleSleep   time.Duration
}

// Option configures a RenderThread instance.
type Option interface {
	applyThread(*threadOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyThreadFunc func(*threadOptions) error
}

func (o *optionImpl) applyThread(opts *threadOptions) error {
	return o.applyThreadFunc(opts)
}

// WithLogger sets the structured logger. The render goroutine only logs on
// lifecycle edges: start, exit, warmup, and rejected states. A nil logger
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *threadOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMaxFrameCount sets the largest frame count per cycle. Every buffer the
// render goroutine uses is allocated up front from this.
func WithMaxFrameCount(n int) Option {
	return &optionImpl{func(opts *threadOptions) error {
		if n <= 0 || n > MaxFrameCount {
			return fmt.Errorf("%w: max frame count %d", ErrInvalidOption, n)
		}
		opts.maxFrameCount = n
		return nil
	}}
}

// WithIdleSleep sets the per-cycle sleeps of CommandHotIdle and
// CommandColdIdle.
func WithIdleSleep(hot, cold time.Duration) Option {
	return &optionImpl{func(opts *threadOptions) error {
		if hot <= 0 || cold <= 0 {
			return fmt.Errorf("%w: idle sleep %s/%s", ErrInvalidOption, hot, cold)
		}
		opts.hotIdleSleep = hot
		opts.coldIdleSleep = cold
		return nil
	}}
}

// WithWriteErrorLimit sets how many consecutive sink errors are tolerated
// before the render goroutine idles until the next state.
func WithWriteErrorLimit(n int) Option {
	return &optionImpl{func(opts *threadOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: write error limit %d", ErrInvalidOption, n)
		}
		opts.writeErrorLimit = n
		return nil
	}}
}

// WithMaxWarmupCycles bounds how many silent writes warmup may take before
// the sink is assumed warm.
func WithMaxWarmupCycles(n int) Option {
	return &optionImpl{func(opts *threadOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: max warmup cycles %d", ErrInvalidOption, n)
		}
		opts.maxWarmupCycles = n
		return nil
	}}
}

// resolveThreadOptions applies Option instances to threadOptions.
func resolveThreadOptions(opts []Option) (*threadOptions, error) {
	cfg := &threadOptions{
		now:             monotonicNow,
		sleep:           sleepPrecise,
		maxFrameCount:   DefaultMaxFrameCount,
		writeErrorLimit: DefaultWriteErrorLimit,
		maxWarmupCycles: DefaultMaxWarmupCycles,
		hotIdleSleep:    DefaultHotIdleSleep,
		coldIdleSleep:   DefaultColdIdleSleep,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyThread(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

var epoch = time.Now()

// monotonicNow returns the monotonic time since process start.
func monotonicNow() time.Duration {
	return time.Since(epoch)
}
