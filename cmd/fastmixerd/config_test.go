package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-fastmixer/fastmixer"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fastmixerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestLoadConfig_default(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, sinkRing, cfg.Output.Sink)
	assert.Equal(t, fastmixer.DefaultMaxFrameCount, cfg.Thread.MaxFrameCount)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, 440.0, cfg.Sources[0].Frequency)
}

func TestLoadConfig_file(t *testing.T) {
	path := writeTempConfig(t, `
log_level = "debug"

[output]
sink = "discard"
frame_count = 256
sample_rate = 44100
channels = 1

[thread]
max_frame_count = 512
hot_idle = "2ms"
cold_idle = "100ms"

[queue]
pool_size = 6
sync_timeout = "1s"

[monitor]
interval = "250ms"

[[source]]
frequency = 220
gain = 0.5
channels = 2

[[source]]
frequency = 1000
gain = 0.125
channels = 1
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, OutputConfig{Sink: sinkDiscard, FrameCount: 256, SampleRate: 44100, Channels: 1, RingBytes: 4 * 480 * 2 * 2}, cfg.Output)
	assert.Equal(t, 512, cfg.Thread.MaxFrameCount)
	assert.Equal(t, 2*time.Millisecond, cfg.Thread.HotIdle)
	assert.Equal(t, 100*time.Millisecond, cfg.Thread.ColdIdle)
	assert.Equal(t, fastmixer.DefaultWriteErrorLimit, cfg.Thread.WriteErrorLimit)
	assert.Equal(t, QueueConfig{PoolSize: 6, SyncTimeout: time.Second}, cfg.Queue)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, []SineConfig{
		{Frequency: 220, Gain: 0.5, Channels: 2},
		{Frequency: 1000, Gain: 0.125, Channels: 1},
	}, cfg.Sources)

	assert.Len(t, cfg.threadOptions(nil), 5)
	assert.Len(t, cfg.queueOptions(), 2)
}

func TestLoadConfig_errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		msg  string
	}{
		{"syntax", `log_level = `, "config: "},
		{"unknown key", "[output]\nsinks = \"ring\"", "unknown keys: output.sinks"},
		{"level", `log_level = "loud"`, `unknown log level "loud"`},
		{"sink", "[output]\nsink = \"alsa\"", `unknown sink "alsa"`},
		{"geometry", "[output]\nframe_count = 8192", "invalid geometry"},
		{"ring", "[output]\nring_bytes = 16", "cannot hold one cycle"},
		{"frequency", "[[source]]\nfrequency = 30000\nchannels = 1", "source 0: frequency 30000"},
		{"channels", "[[source]]\nfrequency = 100\nchannels = 3", "source 0: 3 channels"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig(writeTempConfig(t, tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	for _, l := range []logiface.Level{
		logiface.LevelDisabled,
		logiface.LevelError,
		logiface.LevelWarning,
		logiface.LevelInformational,
		logiface.LevelTrace,
	} {
		got, err := parseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := parseLevel("information")
	assert.Error(t, err)
}
