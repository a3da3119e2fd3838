package fastmixer

import (
	"context"
	"fmt"
	"sync"

	"github.com/joeycumines/go-fastmixer/statequeue"
	"github.com/joeycumines/logiface"
)

// Controller is the writer side of a RenderThread's queue. Its methods are
// safe for concurrent use, but must not be called from the render goroutine.
//
// Each method modifies the pending state and publishes it. If publishing
// fails, the modification stays pending and is published along with the
// next successful call.
type Controller struct {
	mu     sync.Mutex
	thread *RenderThread
	queue  *statequeue.Queue[RenderState]
	logger *logiface.Logger[logiface.Event]

	// published is the command of the last published state.
	published Command
}

// NewController returns a controller for thread, using the same logger. The
// pending state starts in CommandColdIdle with no geometry; nothing is
// published until the first call.
func NewController(thread *RenderThread) *Controller {
	c := &Controller{
		thread:    thread,
		queue:     thread.queue,
		logger:    thread.logger,
		published: CommandColdIdle,
	}
	c.queue.Begin().Command = CommandColdIdle
	return c
}

// Start publishes CommandInitialize, warming up the sink. Geometry must
// already have been set.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.queue.Pending()
	if err := ValidateGeometry(s.FrameCount, s.SampleRate, s.Channels, c.thread.MaxFrameCount()); err != nil {
		return err
	}
	_, err := c.setCommand(ctx, CommandInitialize, statequeue.Async)
	return err
}

// SetCommand publishes cmd with the given mode, returning the published
// generation.
func (c *Controller) SetCommand(ctx context.Context, cmd Command, mode statequeue.Mode) (uint64, error) {
	if !cmd.valid() {
		return 0, fmt.Errorf("fastmixer: unknown command %d", cmd)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCommand(ctx, cmd, mode)
}

func (c *Controller) setCommand(ctx context.Context, cmd Command, mode statequeue.Mode) (uint64, error) {
	s := c.queue.Begin()
	if cmd == CommandColdIdle && s.Command != CommandColdIdle {
		s.ColdGeneration++
	}
	s.Command = cmd
	return c.publish(ctx, mode)
}

// SetGeometry changes the output geometry.
func (c *Controller) SetGeometry(ctx context.Context, frames, rate, channels int) error {
	if err := ValidateGeometry(frames, rate, channels, c.thread.MaxFrameCount()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.queue.Begin()
	s.FrameCount, s.SampleRate, s.Channels = frames, rate, channels
	_, err := c.publish(ctx, statequeue.Async)
	return err
}

// SetSink replaces the sink, which is warmed up before rendering resumes.
// It waits for the render goroutine to switch, so on success the previous
// sink is no longer in use and may be closed.
func (c *Controller) SetSink(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.queue.Begin()
	s.Sink = sink
	s.SinkGeneration++
	_, err := c.publish(ctx, statequeue.Sync)
	return err
}

// SetDump redirects diagnostics to d, or to a block private to the render
// thread if d is nil. It waits for the render goroutine to switch, so on
// success the previous block is no longer written.
func (c *Controller) SetDump(ctx context.Context, d *DumpState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Begin().Dump = d
	_, err := c.publish(ctx, statequeue.Sync)
	return err
}

// AddSource places src, enabled, in the lowest free slot and returns the
// slot id.
func (c *Controller) AddSource(ctx context.Context, src Source) (int, error) {
	if src.Provider == nil || src.Channels < 1 || src.Channels > MaxChannels {
		return -1, fmt.Errorf("%w: provider %T with %d channels", ErrInvalidSource, src.Provider, src.Channels)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.queue.Begin()
	for id := range s.Sources {
		if s.Sources[id].Provider != nil {
			continue
		}
		src.Enabled = true
		s.Sources[id] = src
		_, err := c.publish(ctx, statequeue.Async)
		return id, err
	}
	return -1, ErrNoFreeSlot
}

// UpdateSource applies fn to a copy of the source in slot id, for example to
// change its gain or disable it. The provider cannot be changed this way.
func (c *Controller) UpdateSource(ctx context.Context, id int, fn func(*Source)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := checkSourceID(c.queue.Pending(), id); err != nil {
		return err
	}
	src := c.queue.Pending().Sources[id]
	fn(&src)
	if src.Provider != c.queue.Pending().Sources[id].Provider || src.Channels < 1 || src.Channels > MaxChannels {
		return fmt.Errorf("%w: update of slot %d changed its provider or channels", ErrInvalidSource, id)
	}
	c.queue.Begin().Sources[id] = src
	_, err := c.publish(ctx, statequeue.Async)
	return err
}

// RemoveSource frees slot id. It waits for the render goroutine to switch,
// so on success the returned provider is no longer referenced by it and may
// be released immediately. On error the provider must not be released.
func (c *Controller) RemoveSource(ctx context.Context, id int) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := checkSourceID(c.queue.Pending(), id); err != nil {
		return nil, err
	}
	s := c.queue.Begin()
	p := s.Sources[id].Provider
	s.Sources[id] = Source{}
	if _, err := c.publish(ctx, statequeue.Sync); err != nil {
		return nil, err
	}
	return p, nil
}

// Exit publishes CommandExit and waits for the render goroutine to apply
// it. Run returns shortly after.
func (c *Controller) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.setCommand(ctx, CommandExit, statequeue.Sync)
	return err
}

// Sources returns a copy of the pending source table.
func (c *Controller) Sources() [MaxSources]Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Pending().Sources
}

// publish publishes the pending state. The render goroutine is woken after
// a Sync publish, or when leaving CommandColdIdle, so it need not wait out a
// cold sleep.
func (c *Controller) publish(ctx context.Context, mode statequeue.Mode) (uint64, error) {
	cmd := c.queue.Pending().Command
	gen, err := c.queue.Publish(ctx, statequeue.Async)
	if err != nil {
		c.logger.Warning().
			Err(err).
			Stringer("command", cmd).
			Log("publish failed")
		return gen, err
	}
	if mode == statequeue.Sync || (c.published == CommandColdIdle && cmd != CommandColdIdle) {
		c.thread.Wake()
	}
	c.published = cmd
	if mode == statequeue.Sync {
		// nothing pending, so this waits on gen
		gen, err = c.queue.Publish(ctx, statequeue.Sync)
		if err != nil {
			c.logger.Warning().
				Err(err).
				Stringer("command", cmd).
				Uint64("generation", gen).
				Log("render thread did not acknowledge")
		}
	}
	return gen, err
}

func checkSourceID(s *RenderState, id int) error {
	if id < 0 || id >= MaxSources {
		return fmt.Errorf("%w: slot %d outside [0, %d)", ErrInvalidSource, id, MaxSources)
	}
	if s.Sources[id].Provider == nil {
		return fmt.Errorf("%w: slot %d is free", ErrInvalidSource, id)
	}
	return nil
}
