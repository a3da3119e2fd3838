// Command fastmixerd runs a fastmixer render thread mixing test tones into a
// sink, logging its diagnostics. It exits on SIGINT or SIGTERM, and writes
// the diagnostics dump on SIGUSR1 and at exit.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/joeycumines/go-fastmixer/fastmixer"
	"github.com/joeycumines/go-fastmixer/sink"
	"github.com/joeycumines/go-fastmixer/statequeue"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
)

var exitFunc = os.Exit
var stderr io.Writer = os.Stderr

// exitTimeout bounds the wait for the render thread to apply CommandExit.
const exitTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "TOML configuration file (default: one 440Hz tone into a ring sink)")
	dumpPath := flag.String("dump", "", "File the diagnostics dump is written to (default: stderr)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "fastmixerd: %v\n", err)
		exitFunc(2)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	dumpNow := make(chan os.Signal, 1)
	notifyDump(dumpNow)
	defer signal.Stop(dumpNow)

	if err := run(ctx, cfg, *dumpPath, dumpNow); err != nil {
		fmt.Fprintf(stderr, "fastmixerd: %v\n", err)
		exitFunc(1)
		return
	}
}

// daemon is one run of the mixer.
type daemon struct {
	cfg      *Config
	logger   *logiface.Logger[logiface.Event]
	session  uuid.UUID
	dumpPath string

	thread  *fastmixer.RenderThread
	ctrl    *fastmixer.Controller
	dump    *fastmixer.DumpState
	monitor *fastmixer.Monitor
	out     fastmixer.Sink
	ring    *sink.Ring
}

// run mixes until ctx is done, then stops the render thread and writes the
// final dump.
func run(ctx context.Context, cfg *Config, dumpPath string, dumpNow <-chan os.Signal) error {
	d, undo, err := newDaemon(cfg, dumpPath)
	if err != nil {
		return err
	}
	defer undo()

	// helpers outlive ctx, until the render thread exits
	helpers, stopHelpers := context.WithCancel(context.Background())
	defer stopHelpers()

	var g errgroup.Group
	g.Go(func() error {
		defer stopHelpers()
		return d.thread.Run()
	})
	g.Go(func() error {
		if err := d.monitor.Run(helpers); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if d.ring != nil {
		g.Go(func() error {
			d.drain(helpers)
			return nil
		})
	}

	err = d.start(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		// stopped during startup
		err = nil
	case err == nil:
		d.logger.Info().
			Int("sources", len(cfg.Sources)).
			Str("sink", cfg.Output.Sink).
			Log("rendering")
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-helpers.Done():
				err = errors.New("render thread exited unexpectedly")
				break loop
			case <-dumpNow:
				if err := d.writeDump(); err != nil {
					d.logger.Err().Err(err).Log("dump failed")
				}
			}
		}
	}

	exitCtx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()
	if exitErr := d.ctrl.Exit(exitCtx); exitErr != nil {
		// render thread wedged
		stopHelpers()
		return errors.Join(err, exitErr, d.writeDump())
	}
	return errors.Join(err, g.Wait(), d.writeDump())
}

func newDaemon(cfg *Config, dumpPath string) (d *daemon, undo func(), err error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	session := uuid.New()
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Clone().
		Str("session", session.String()).
		Logger().
		Logger()

	undo, err = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Log(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warning().Err(err).Log("GOMAXPROCS unchanged")
	}
	if undo == nil {
		undo = func() {}
	}
	if limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	); err != nil {
		logger.Debug().Err(err).Log("memory limit unchanged")
	} else {
		logger.Debug().Int64("limit", limit).Log("memory limit set")
	}
	defer func() {
		if err != nil {
			undo()
		}
	}()

	q, err := statequeue.New[fastmixer.RenderState](cfg.queueOptions()...)
	if err != nil {
		return nil, nil, err
	}
	thread, err := fastmixer.NewRenderThread(q, cfg.threadOptions(logger)...)
	if err != nil {
		return nil, nil, err
	}
	dump := fastmixer.NewDumpState()
	monitor, err := fastmixer.NewMonitor(dump,
		fastmixer.WithMonitorLogger(logger),
		fastmixer.WithMonitorInterval(cfg.Monitor.Interval),
	)
	if err != nil {
		return nil, nil, err
	}

	d = &daemon{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		dumpPath: dumpPath,
		thread:   thread,
		ctrl:     fastmixer.NewController(thread),
		dump:     dump,
		monitor:  monitor,
	}
	switch cfg.Output.Sink {
	case sinkRing:
		d.ring = sink.NewRing(cfg.Output.RingBytes, cfg.Output.Channels, cfg.Thread.MaxFrameCount)
		d.out = d.ring
	case sinkStdout:
		if d.out, err = newStdoutSink(cfg.Output.Channels, cfg.Thread.MaxFrameCount); err != nil {
			return nil, nil, err
		}
	default:
		d.out = new(sink.Discard)
	}
	return d, undo, nil
}

// start configures the render thread, adds every source, and begins
// rendering.
func (d *daemon) start(ctx context.Context) error {
	o := d.cfg.Output
	if err := d.ctrl.SetDump(ctx, d.dump); err != nil {
		return err
	}
	if err := d.ctrl.SetGeometry(ctx, o.FrameCount, o.SampleRate, o.Channels); err != nil {
		return err
	}
	if err := d.ctrl.SetSink(ctx, d.out); err != nil {
		return err
	}
	if err := d.ctrl.Start(ctx); err != nil {
		return err
	}
	for _, s := range d.cfg.Sources {
		_, err := d.ctrl.AddSource(ctx, fastmixer.Source{
			Provider: newSine(s.Frequency, o.SampleRate, s.Channels),
			Gain:     s.Gain,
			Channels: s.Channels,
		})
		if err != nil {
			return err
		}
	}
	_, err := d.ctrl.SetCommand(ctx, fastmixer.CommandRender, statequeue.Sync)
	return err
}

// drain consumes the ring at the output rate, standing in for a device
// callback.
func (d *daemon) drain(ctx context.Context) {
	o := d.cfg.Output
	period := time.Duration(int64(o.FrameCount) * int64(time.Second) / int64(o.SampleRate))
	buf := make([]byte, o.FrameCount*d.ring.FrameBytes())
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	var total uint64
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().
				Uint64("bytes", total).
				Log("device stopped")
			return
		case <-ticker.C:
			total += uint64(d.ring.Drain(buf))
		}
	}
}

// writeDump writes a consistent dump, if one can be read, atomically
// replacing the dump file.
func (d *daemon) writeDump() error {
	snap, consistent := d.dump.ReadConsistent(fastmixer.DefaultReadAttempts)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "fastmixerd session=%s at=%s consistent=%t\n",
		d.session, time.Now().UTC().Format(time.RFC3339Nano), consistent)
	if _, err := snap.WriteTo(&buf); err != nil {
		return err
	}
	if d.dumpPath == "" {
		_, err := stderr.Write(buf.Bytes())
		return err
	}
	if err := renameio.WriteFile(d.dumpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	d.logger.Info().
		Str("path", d.dumpPath).
		Uint64("frames_written", snap.FramesWritten).
		Log("dump written")
	return nil
}
