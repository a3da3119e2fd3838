// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statequeue

import (
	"fmt"
	"time"
)

const (
	// MinPoolSize is the smallest pool for which slot reuse is safe.
	MinPoolSize = 3

	// DefaultPoolSize lets the writer run three generations ahead of the reader.
	DefaultPoolSize = 4

	// DefaultSyncTimeout bounds every writer-side wait.
	DefaultSyncTimeout = 2 * time.Second

	// DefaultSpinLimit is the number of runtime.Gosched iterations before
	// the writer starts sleeping.
	DefaultSpinLimit = 1000

	// DefaultSleepInterval is the sleep between checks once spinning stops.
	DefaultSleepInterval = 100 * time.Microsecond
)

// queueOptions holds configuration options for Queue creation.
type queueOptions struct {
	poolSize      int
	spinLimit     int
	syncTimeout   time.Duration
	sleepInterval time.Duration
}

// Option configures a Queue instance.
type Option interface {
	applyQueue(*queueOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyQueueFunc func(*queueOptions) error
}

func (o *optionImpl) applyQueue(opts *queueOptions) error {
	return o.applyQueueFunc(opts)
}

// WithPoolSize sets the number of state slots. It must be at least
// MinPoolSize. Larger pools let Async publishes run further ahead of a slow
// reader before blocking.
func WithPoolSize(n int) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if n < MinPoolSize {
			return fmt.Errorf("%w: %d < %d", ErrPoolSize, n, MinPoolSize)
		}
		opts.poolSize = n
		return nil
	}}
}

// WithSyncTimeout bounds how long Publish waits on the reader, either for a
// free slot or for a Sync acknowledgement.
func WithSyncTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: sync timeout %s", ErrInvalidOption, d)
		}
		opts.syncTimeout = d
		return nil
	}}
}

// WithWaitBackoff configures the writer's wait loop: spinLimit iterations of
// runtime.Gosched, then sleeps of sleepInterval.
func WithWaitBackoff(spinLimit int, sleepInterval time.Duration) Option {
	return &optionImpl{func(opts *queueOptions) error {
		if spinLimit < 0 || sleepInterval <= 0 {
			return fmt.Errorf("%w: backoff %d/%s", ErrInvalidOption, spinLimit, sleepInterval)
		}
		opts.spinLimit = spinLimit
		opts.sleepInterval = sleepInterval
		return nil
	}}
}

// resolveQueueOptions applies Option instances to queueOptions.
func resolveQueueOptions(opts []Option) (*queueOptions, error) {
	cfg := &queueOptions{
		poolSize:      DefaultPoolSize,
		spinLimit:     DefaultSpinLimit,
		syncTimeout:   DefaultSyncTimeout,
		sleepInterval: DefaultSleepInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyQueue(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
