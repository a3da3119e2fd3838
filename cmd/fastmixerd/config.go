package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/go-fastmixer/fastmixer"
	"github.com/joeycumines/go-fastmixer/statequeue"
	"github.com/joeycumines/logiface"
)

// Sink kinds.
const (
	sinkDiscard = "discard"
	sinkRing    = "ring"
	sinkStdout  = "stdout"
)

// Config is the TOML configuration of fastmixerd.
type Config struct {
	LogLevel string        `toml:"log_level"`
	Output   OutputConfig  `toml:"output"`
	Thread   ThreadConfig  `toml:"thread"`
	Queue    QueueConfig   `toml:"queue"`
	Monitor  MonitorConfig `toml:"monitor"`
	Sources  []SineConfig  `toml:"source"`
}

// OutputConfig selects the output geometry and sink.
type OutputConfig struct {
	Sink       string `toml:"sink"`
	FrameCount int    `toml:"frame_count"`
	SampleRate int    `toml:"sample_rate"`
	Channels   int    `toml:"channels"`
	// RingBytes is the capacity of the ring sink.
	RingBytes int `toml:"ring_bytes"`
}

// ThreadConfig tunes the render thread.
type ThreadConfig struct {
	MaxFrameCount   int           `toml:"max_frame_count"`
	HotIdle         time.Duration `toml:"hot_idle"`
	ColdIdle        time.Duration `toml:"cold_idle"`
	WriteErrorLimit int           `toml:"write_error_limit"`
	MaxWarmupCycles int           `toml:"max_warmup_cycles"`
}

// QueueConfig tunes the state queue.
type QueueConfig struct {
	PoolSize    int           `toml:"pool_size"`
	SyncTimeout time.Duration `toml:"sync_timeout"`
}

// MonitorConfig tunes the diagnostics monitor.
type MonitorConfig struct {
	Interval time.Duration `toml:"interval"`
}

// SineConfig is one test tone source.
type SineConfig struct {
	Frequency float64 `toml:"frequency"`
	Gain      float32 `toml:"gain"`
	Channels  int     `toml:"channels"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Output: OutputConfig{
			Sink:       sinkRing,
			FrameCount: 480,
			SampleRate: 48000,
			Channels:   2,
			RingBytes:  4 * 480 * 2 * 2,
		},
		Thread: ThreadConfig{
			MaxFrameCount:   fastmixer.DefaultMaxFrameCount,
			HotIdle:         fastmixer.DefaultHotIdleSleep,
			ColdIdle:        fastmixer.DefaultColdIdleSleep,
			WriteErrorLimit: fastmixer.DefaultWriteErrorLimit,
			MaxWarmupCycles: fastmixer.DefaultMaxWarmupCycles,
		},
		Queue: QueueConfig{
			PoolSize:    statequeue.DefaultPoolSize,
			SyncTimeout: statequeue.DefaultSyncTimeout,
		},
		Monitor: MonitorConfig{
			Interval: fastmixer.DefaultMonitorInterval,
		},
	}
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults with a single 440Hz tone.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		cfg.Sources = []SineConfig{{Frequency: 440, Gain: 0.25, Channels: 1}}
	} else {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if keys := md.Undecoded(); len(keys) != 0 {
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(names, ", "))
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Output.Sink {
	case sinkDiscard, sinkStdout:
	case sinkRing:
		if c.Output.RingBytes < c.Output.FrameCount*c.Output.Channels*2 {
			errs = append(errs, fmt.Errorf("config: ring_bytes %d cannot hold one cycle", c.Output.RingBytes))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown sink %q", c.Output.Sink))
	}
	if err := fastmixer.ValidateGeometry(c.Output.FrameCount, c.Output.SampleRate, c.Output.Channels, c.Thread.MaxFrameCount); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if len(c.Sources) > fastmixer.MaxSources {
		errs = append(errs, fmt.Errorf("config: %d sources, at most %d", len(c.Sources), fastmixer.MaxSources))
	}
	for i, s := range c.Sources {
		if s.Frequency <= 0 || s.Frequency >= float64(c.Output.SampleRate)/2 {
			errs = append(errs, fmt.Errorf("config: source %d: frequency %g outside (0, %d)", i, s.Frequency, c.Output.SampleRate/2))
		}
		if s.Channels < 1 || s.Channels > fastmixer.MaxChannels {
			errs = append(errs, fmt.Errorf("config: source %d: %d channels", i, s.Channels))
		}
	}
	return errors.Join(errs...)
}

// threadOptions converts the config to render thread options.
func (c *Config) threadOptions(logger *logiface.Logger[logiface.Event]) []fastmixer.Option {
	return []fastmixer.Option{
		fastmixer.WithLogger(logger),
		fastmixer.WithMaxFrameCount(c.Thread.MaxFrameCount),
		fastmixer.WithIdleSleep(c.Thread.HotIdle, c.Thread.ColdIdle),
		fastmixer.WithWriteErrorLimit(c.Thread.WriteErrorLimit),
		fastmixer.WithMaxWarmupCycles(c.Thread.MaxWarmupCycles),
	}
}

func (c *Config) queueOptions() []statequeue.Option {
	return []statequeue.Option{
		statequeue.WithPoolSize(c.Queue.PoolSize),
		statequeue.WithSyncTimeout(c.Queue.SyncTimeout),
	}
}

// parseLevel maps a syslog level keyword, as printed by logiface, to its
// level.
func parseLevel(s string) (logiface.Level, error) {
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("config: unknown log level %q", s)
}
