// config.go defines the TOML configuration of the skinning engine. Values missing from a file
// fall back to Default(), command-line flags registered by BindFlags override both, and Watch
// reloads the file whenever it changes on disk.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("config: invalid value")

// BackendAll runs every skinning backend side by side.
const BackendAll = "all"

var validBackends = []string{"sequential", "parallel", "gpu", BackendAll}

// SkinningConfig configures the skinning backends.
type SkinningConfig struct {
	// Backend is "sequential", "parallel", "gpu" or "all".
	Backend string `toml:"backend"`

	// BatchSize is the number of vertices per parallel task.
	BatchSize int `toml:"batch_size"`

	// Workers is the maximum worker count of the shared pool. 0 means NumCPU-1.
	Workers int `toml:"workers"`

	// QueueSize is the task queue capacity of the shared pool.
	QueueSize int `toml:"queue_size"`
}

// GPUConfig configures the compute device.
type GPUConfig struct {
	ForceFallbackAdapter bool `toml:"force_fallback_adapter"`

	// Software selects the in-process software device instead of WebGPU.
	Software bool `toml:"software"`

	// Validate compiles every kernel variant with naga at startup.
	Validate bool `toml:"validate"`
}

// EngineConfig configures the frame loop.
type EngineConfig struct {
	TickRate          int  `toml:"tick_rate"`
	Frames            int  `toml:"frames"`
	Profiling         bool `toml:"profiling"`
	ProfileIntervalMS int  `toml:"profile_interval_ms"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the complete engine configuration.
type Config struct {
	Skinning SkinningConfig `toml:"skinning"`
	GPU      GPUConfig      `toml:"gpu"`
	Engine   EngineConfig   `toml:"engine"`
	Log      LogConfig      `toml:"log"`
}

// Default returns the built-in configuration.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		Skinning: SkinningConfig{
			Backend:   "parallel",
			BatchSize: 64,
			QueueSize: 256,
		},
		GPU: GPUConfig{
			Software: true,
		},
		Engine: EngineConfig{
			TickRate:          60,
			Frames:            120,
			ProfileIntervalMS: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Parse decodes TOML data and fills every unset numeric or string field from Default().
// Booleans are taken from the data as written.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the merged configuration
//   - error: a decode error or ErrInvalidConfig
func Parse(data []byte) (Config, error) {
	def := Default()
	cfg := Config{GPU: def.GPU}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Skinning.Backend = common.Coalesce(strings.ToLower(strings.TrimSpace(cfg.Skinning.Backend)), def.Skinning.Backend)
	cfg.Skinning.BatchSize = common.Coalesce(cfg.Skinning.BatchSize, def.Skinning.BatchSize)
	cfg.Skinning.Workers = common.Coalesce(cfg.Skinning.Workers, def.Skinning.Workers)
	cfg.Skinning.QueueSize = common.Coalesce(cfg.Skinning.QueueSize, def.Skinning.QueueSize)
	cfg.Engine.TickRate = common.Coalesce(cfg.Engine.TickRate, def.Engine.TickRate)
	cfg.Engine.Frames = common.Coalesce(cfg.Engine.Frames, def.Engine.Frames)
	cfg.Engine.ProfileIntervalMS = common.Coalesce(cfg.Engine.ProfileIntervalMS, def.Engine.ProfileIntervalMS)
	cfg.Log.Level = common.Coalesce(cfg.Log.Level, def.Log.Level)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Config: the merged configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every value is in range.
//
// Returns:
//   - error: ErrInvalidConfig describing the first bad value
func (c Config) Validate() error {
	switch {
	case !slices.Contains(validBackends, c.Skinning.Backend):
		return fmt.Errorf("%w: skinning.backend %q", ErrInvalidConfig, c.Skinning.Backend)
	case c.Skinning.BatchSize < 1:
		return fmt.Errorf("%w: skinning.batch_size %d", ErrInvalidConfig, c.Skinning.BatchSize)
	case c.Skinning.Workers < 0:
		return fmt.Errorf("%w: skinning.workers %d", ErrInvalidConfig, c.Skinning.Workers)
	case c.Skinning.QueueSize < 1:
		return fmt.Errorf("%w: skinning.queue_size %d", ErrInvalidConfig, c.Skinning.QueueSize)
	case c.Engine.TickRate < 1:
		return fmt.Errorf("%w: engine.tick_rate %d", ErrInvalidConfig, c.Engine.TickRate)
	case c.Engine.Frames < 0:
		return fmt.Errorf("%w: engine.frames %d", ErrInvalidConfig, c.Engine.Frames)
	case c.Engine.ProfileIntervalMS < 1:
		return fmt.Errorf("%w: engine.profile_interval_ms %d", ErrInvalidConfig, c.Engine.ProfileIntervalMS)
	}
	return nil
}

// Marshal encodes the configuration as TOML.
//
// Returns:
//   - []byte: the TOML document
//   - error: an encode error
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// BindFlags registers command-line flags on fs that override the current values of c.
// Call it after loading the file and before fs.Parse.
//
// Parameters:
//   - fs: the flag set to register on
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Skinning.Backend, "backend", c.Skinning.Backend, "skinning backend: sequential, parallel, gpu or all")
	fs.IntVar(&c.Skinning.BatchSize, "batch-size", c.Skinning.BatchSize, "vertices per parallel task")
	fs.IntVar(&c.Skinning.Workers, "workers", c.Skinning.Workers, "worker pool size (0 = NumCPU-1)")
	fs.BoolVar(&c.GPU.Software, "soft-gpu", c.GPU.Software, "use the software compute device")
	fs.BoolVar(&c.GPU.ForceFallbackAdapter, "fallback-adapter", c.GPU.ForceFallbackAdapter, "force the WebGPU fallback adapter")
	fs.BoolVar(&c.GPU.Validate, "validate", c.GPU.Validate, "compile kernel variants with naga at startup")
	fs.IntVar(&c.Engine.Frames, "frames", c.Engine.Frames, "frames to evaluate")
	fs.IntVar(&c.Engine.TickRate, "tick-rate", c.Engine.TickRate, "ticks per second")
	fs.BoolVar(&c.Engine.Profiling, "profile", c.Engine.Profiling, "log profiler statistics")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn or error")
}
