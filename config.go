package voxscope

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the voxscope configuration file.
type Config struct {
	Source SourceConfig `yaml:"source"`
	Buffer BufferConfig `yaml:"buffer"`
	Meter  MeterConfig  `yaml:"meter"`
	PollHz int          `yaml:"poll_hz"`
	// Render is "bar", "lights" or "none".
	Render string       `yaml:"render"`
	Record RecordConfig `yaml:"record"`
	Feed   FeedConfig   `yaml:"feed"`
	Remote RemoteConfig `yaml:"remote"`
}

type SourceConfig struct {
	// Kind is "device", "file" or "remote".
	Kind           string `yaml:"kind"`
	Device         string `yaml:"device"`
	PreferLoopback bool   `yaml:"prefer_loopback"`
	Channels       int    `yaml:"channels"`
	HighLatency    bool   `yaml:"high_latency"`
	File           string `yaml:"file"`
	Loop           bool   `yaml:"loop"`
	Headless       bool   `yaml:"headless"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity"`
	// Mode is "peek" or "drain".
	Mode string `yaml:"mode"`
	// Precision is "float32" or "float64".
	Precision string `yaml:"precision"`
	BlockSize int    `yaml:"block_size"`
}

type RecordConfig struct {
	// Dir enables recording when set.
	Dir      string `yaml:"dir"`
	BitDepth int    `yaml:"bit_depth"`
}

type FeedConfig struct {
	// Listen enables the websocket feed when set, e.g. ":8090".
	Listen string `yaml:"listen"`
	Token  string `yaml:"token"`
}

// DefaultConfig returns a configuration metering the default input device.
func DefaultConfig() Config {
	return Config{
		Source: SourceConfig{Kind: "device"},
		Buffer: BufferConfig{
			Capacity:  4096,
			Mode:      "peek",
			Precision: "float32",
			BlockSize: 512,
		},
		Meter:  DefaultMeterConfig(),
		PollHz: 30,
		Render: "bar",
		Record: RecordConfig{BitDepth: 16},
		Remote: RemoteConfig{Channels: 2},
	}
}

// Load reads the YAML file at path over the defaults, then applies VOXSCOPE_*
// environment overrides, including those from a .env file in the working
// directory. An empty path uses the defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from VOXSCOPE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
		}
		*dst = b
		return nil
	}

	str("VOXSCOPE_SOURCE", &c.Source.Kind)
	str("VOXSCOPE_DEVICE", &c.Source.Device)
	str("VOXSCOPE_FILE", &c.Source.File)
	str("VOXSCOPE_MODE", &c.Buffer.Mode)
	str("VOXSCOPE_PRECISION", &c.Buffer.Precision)
	str("VOXSCOPE_RENDER", &c.Render)
	str("VOXSCOPE_RECORD_DIR", &c.Record.Dir)
	str("VOXSCOPE_FEED_LISTEN", &c.Feed.Listen)
	str("VOXSCOPE_FEED_TOKEN", &c.Feed.Token)
	str("VOXSCOPE_REMOTE_URL", &c.Remote.SignalingURL)
	str("VOXSCOPE_REMOTE_TOKEN", &c.Remote.Token)

	return errors.Join(
		flag("VOXSCOPE_PREFER_LOOPBACK", &c.Source.PreferLoopback),
		flag("VOXSCOPE_HEADLESS", &c.Source.Headless),
		num("VOXSCOPE_CAPACITY", &c.Buffer.Capacity),
		num("VOXSCOPE_BLOCK_SIZE", &c.Buffer.BlockSize),
		num("VOXSCOPE_POLL_HZ", &c.PollHz),
	)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "device":
	case "file":
		if c.Source.File == "" {
			return fmt.Errorf("%w: source.file is required for a file source", ErrInvalidConfig)
		}
	case "remote":
		if c.Remote.SignalingURL == "" {
			return fmt.Errorf("%w: remote.signaling_url is required for a remote source", ErrInvalidConfig)
		}
		if c.Remote.Channels != 1 && c.Remote.Channels != 2 {
			return fmt.Errorf("%w: remote.channels must be 1 or 2", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: source.kind %q", ErrInvalidConfig, c.Source.Kind)
	}

	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("%w: buffer.capacity must be positive", ErrInvalidConfig)
	}
	if c.Buffer.BlockSize <= 0 {
		return fmt.Errorf("%w: buffer.block_size must be positive", ErrInvalidConfig)
	}
	mode, err := ParseSnapshotMode(c.Buffer.Mode)
	if err != nil {
		return err
	}
	if c.Buffer.Precision != "float32" && c.Buffer.Precision != "float64" {
		return fmt.Errorf("%w: buffer.precision %q", ErrInvalidConfig, c.Buffer.Precision)
	}

	m := c.Meter
	if m.LevelCount <= 0 {
		return fmt.Errorf("%w: meter.level_count must be positive", ErrInvalidConfig)
	}
	if m.MaxDb <= m.MinDb {
		return fmt.Errorf("%w: meter.max_db must be above meter.min_db", ErrInvalidConfig)
	}
	if m.FloorDb > m.MinDb {
		return fmt.Errorf("%w: meter.floor_db must not be above meter.min_db", ErrInvalidConfig)
	}
	if m.PeakHoldTimes < 0 {
		return fmt.Errorf("%w: meter.peak_hold_times must not be negative", ErrInvalidConfig)
	}

	if c.PollHz <= 0 || c.PollHz > 1000 {
		return fmt.Errorf("%w: poll_hz %d out of range 1..1000", ErrInvalidConfig, c.PollHz)
	}
	switch c.Render {
	case "bar", "lights", "none":
	default:
		return fmt.Errorf("%w: render %q", ErrInvalidConfig, c.Render)
	}

	if c.Record.Dir != "" {
		switch c.Record.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("%w: record.bit_depth %d", ErrInvalidConfig, c.Record.BitDepth)
		}
		// peek snapshots overlap and would record the same samples twice
		if mode != Drain {
			return fmt.Errorf("%w: recording needs buffer.mode drain", ErrInvalidConfig)
		}
	}
	return nil
}

// CheckRecordWindow reports ErrInvalidConfig when recording is on and the ring
// cannot hold one poll interval of audio at sampleRate plus one producer
// block. A smaller ring overwrites samples before the drain reaches them.
func (c *Config) CheckRecordWindow(sampleRate float64) error {
	if c.Record.Dir == "" || c.PollHz <= 0 {
		return nil
	}
	block := c.Buffer.BlockSize
	if c.Source.Kind == "remote" {
		block = maxOpusFrame
	}
	need := int(math.Ceil(sampleRate/float64(c.PollHz))) + block
	if c.Buffer.Capacity < need {
		return fmt.Errorf("%w: recording at %.0f Hz polled %d times a second needs buffer.capacity >= %d, have %d",
			ErrInvalidConfig, sampleRate, c.PollHz, need, c.Buffer.Capacity)
	}
	return nil
}

// SnapshotMode returns the parsed buffer mode. Call after Validate.
func (c *Config) SnapshotMode() SnapshotMode {
	mode, _ := ParseSnapshotMode(c.Buffer.Mode)
	return mode
}
