package voxscope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: file
  file: take1.wav
  loop: true
buffer:
  capacity: 2048
  mode: drain
  precision: float64
meter:
  level_count: 20
  peak_hold_times: 5
render: lights
record:
  dir: recordings
  bit_depth: 24
feed:
  listen: ":8090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Source.Kind)
	assert.Equal(t, "take1.wav", cfg.Source.File)
	assert.True(t, cfg.Source.Loop)
	assert.Equal(t, 2048, cfg.Buffer.Capacity)
	assert.Equal(t, Drain, cfg.SnapshotMode())
	assert.Equal(t, "float64", cfg.Buffer.Precision)
	assert.Equal(t, 20, cfg.Meter.LevelCount)
	assert.Equal(t, 5, cfg.Meter.PeakHoldTimes)
	assert.Equal(t, "lights", cfg.Render)
	assert.Equal(t, 24, cfg.Record.BitDepth)
	assert.Equal(t, ":8090", cfg.Feed.Listen)

	// unset keys keep their defaults
	assert.Equal(t, 512, cfg.Buffer.BlockSize)
	assert.Equal(t, 30, cfg.PollHz)
	assert.Equal(t, -54.0, cfg.Meter.MinDb)
	assert.Equal(t, -144.0, cfg.Meter.FloorDb)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VOXSCOPE_CAPACITY", "1024")
	t.Setenv("VOXSCOPE_RENDER", "none")

	cfg, err := Load(writeConfig(t, "buffer:\n  capacity: 2048\n"))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Buffer.Capacity)
	assert.Equal(t, "none", cfg.Render)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "device", cfg.Source.Kind)
	assert.Equal(t, Peek, cfg.SnapshotMode())
	assert.Equal(t, DefaultMeterConfig(), cfg.Meter)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "buffer: [1, 2"))
	assert.ErrorContains(t, err, "parse yaml")

	_, err = Load(writeConfig(t, "buffer:\n  mode: skim\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	env, err := godotenv.Unmarshal(`
VOXSCOPE_SOURCE=remote
VOXSCOPE_REMOTE_URL=https://example.com/whep
VOXSCOPE_REMOTE_TOKEN=secret
VOXSCOPE_PREFER_LOOPBACK=true
VOXSCOPE_POLL_HZ=60
VOXSCOPE_MODE=drain
`)
	require.NoError(t, err)
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "remote", cfg.Source.Kind)
	assert.Equal(t, "https://example.com/whep", cfg.Remote.SignalingURL)
	assert.Equal(t, "secret", cfg.Remote.Token)
	assert.True(t, cfg.Source.PreferLoopback)
	assert.Equal(t, 60, cfg.PollHz)
	assert.Equal(t, "drain", cfg.Buffer.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvBadValues(t *testing.T) {
	env := map[string]string{
		"VOXSCOPE_CAPACITY": "lots",
		"VOXSCOPE_HEADLESS": "maybe",
	}
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "VOXSCOPE_CAPACITY")
	assert.ErrorContains(t, err, "VOXSCOPE_HEADLESS")
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "tape" }},
		{"file without path", func(c *Config) { c.Source.Kind = "file" }},
		{"remote without url", func(c *Config) { c.Source.Kind = "remote" }},
		{"remote surround", func(c *Config) {
			c.Source.Kind = "remote"
			c.Remote.SignalingURL = "http://localhost/offer"
			c.Remote.Channels = 6
		}},
		{"zero capacity", func(c *Config) { c.Buffer.Capacity = 0 }},
		{"zero block size", func(c *Config) { c.Buffer.BlockSize = 0 }},
		{"unknown mode", func(c *Config) { c.Buffer.Mode = "skim" }},
		{"unknown precision", func(c *Config) { c.Buffer.Precision = "float16" }},
		{"no lights", func(c *Config) { c.Meter.LevelCount = 0 }},
		{"inverted range", func(c *Config) { c.Meter.MaxDb = -60 }},
		{"floor above range", func(c *Config) { c.Meter.FloorDb = -20 }},
		{"negative hold", func(c *Config) { c.Meter.PeakHoldTimes = -1 }},
		{"zero poll rate", func(c *Config) { c.PollHz = 0 }},
		{"poll rate too high", func(c *Config) { c.PollHz = 5000 }},
		{"unknown renderer", func(c *Config) { c.Render = "scope" }},
		{"record bit depth", func(c *Config) {
			c.Record.Dir = "out"
			c.Record.BitDepth = 8
			c.Buffer.Mode = "drain"
		}},
		{"record in peek mode", func(c *Config) { c.Record.Dir = "out" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	cfg.Record.Dir = "out"
	cfg.Buffer.Mode = "drain"
	assert.NoError(t, cfg.Validate())
}

func TestCheckRecordWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer.Mode = "drain"
	cfg.PollHz = 10
	assert.NoError(t, cfg.CheckRecordWindow(48000), "not recording")

	cfg.Record.Dir = "out"
	require.NoError(t, cfg.Validate())
	// 4800 samples per poll plus a 512 block does not fit in 4096
	assert.ErrorIs(t, cfg.CheckRecordWindow(48000), ErrInvalidConfig)

	cfg.Buffer.Capacity = 4800 + 512
	assert.NoError(t, cfg.CheckRecordWindow(48000))
	assert.ErrorIs(t, cfg.CheckRecordWindow(96000), ErrInvalidConfig)

	cfg.Source.Kind = "remote"
	cfg.Remote.SignalingURL = "http://localhost/offer"
	assert.ErrorIs(t, cfg.CheckRecordWindow(48000), ErrInvalidConfig, "opus frames are up to 5760 samples")
	cfg.Buffer.Capacity = 4800 + maxOpusFrame
	assert.NoError(t, cfg.CheckRecordWindow(48000))
}
