// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/hwaccel"
	"github.com/user/remotevideo/pkg/ports"
)

// Config represents the full configuration for remotevideo.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Hardware HardwareConfig `yaml:"hardware"`
	Limits   LimitsConfig   `yaml:"limits"`
	Transfer TransferConfig `yaml:"transfer"`

	// FFmpegPath overrides the ffmpeg binary used for software decoding.
	FFmpegPath string `yaml:"ffmpeg_path"`
	// MetricsAddr serves Prometheus metrics from the decoder process when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

// HardwareConfig represents hardware acceleration settings.
type HardwareConfig struct {
	Enabled        bool   `yaml:"enabled"`
	AllowModern    bool   `yaml:"allow_modern"`
	AllowLegacy    bool   `yaml:"allow_legacy"`
	DenylistModern string `yaml:"denylist_modern"`
	DenylistLegacy string `yaml:"denylist_legacy"`
	DebugOverride  bool   `yaml:"debug_override"`
	MinWidth       int    `yaml:"min_width"`
	MinHeight      int    `yaml:"min_height"`
}

// LimitsConfig represents decoder retry bounds.
type LimitsConfig struct {
	MaxTypeChanges              int  `yaml:"max_type_changes"`
	MaxNullOutputs              int  `yaml:"max_null_outputs"`
	AllowUnsupportedResolutions bool `yaml:"allow_unsupported_resolutions"`
}

// TransferConfig represents frame transfer settings.
type TransferConfig struct {
	// ShmDir is where shared-memory regions are created. Empty picks
	// /dev/shm or the temp directory.
	ShmDir string `yaml:"shm_dir"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	hw := hwaccel.DefaultSettings()
	limits := decoder.DefaultLimits()
	return Config{
		LogLevel: "info",
		Hardware: HardwareConfig{
			Enabled:     hw.Enabled,
			AllowModern: hw.AllowModern,
			AllowLegacy: hw.AllowLegacy,
			MinWidth:    limits.MinHardwareWidth,
			MinHeight:   limits.MinHardwareHeight,
		},
		Limits: LimitsConfig{
			MaxTypeChanges: limits.MaxTypeChanges,
			MaxNullOutputs: limits.MaxNullOutputs,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error", "quiet":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log_level %q", c.LogLevel))
	}
	if c.Limits.MaxTypeChanges <= 0 {
		errs = append(errs, fmt.Errorf("config: limits.max_type_changes must be positive, got %d", c.Limits.MaxTypeChanges))
	}
	if c.Limits.MaxNullOutputs <= 0 {
		errs = append(errs, fmt.Errorf("config: limits.max_null_outputs must be positive, got %d", c.Limits.MaxNullOutputs))
	}
	if c.Hardware.MinWidth < 0 || c.Hardware.MinHeight < 0 {
		errs = append(errs, fmt.Errorf("config: hardware minimum size must not be negative"))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c Config) Level() ports.LogLevel {
	return ports.ParseLogLevel(c.LogLevel)
}

// ToEngineSettings converts the hardware section to hwaccel.Settings.
func (c Config) ToEngineSettings() hwaccel.Settings {
	return hwaccel.Settings{
		Enabled:        c.Hardware.Enabled,
		AllowModern:    c.Hardware.AllowModern,
		AllowLegacy:    c.Hardware.AllowLegacy,
		DenylistModern: c.Hardware.DenylistModern,
		DenylistLegacy: c.Hardware.DenylistLegacy,
		DebugOverride:  c.Hardware.DebugOverride,
	}
}

// ToLimits converts the limits section to decoder.Limits.
func (c Config) ToLimits() decoder.Limits {
	limits := decoder.DefaultLimits()
	limits.MaxTypeChanges = c.Limits.MaxTypeChanges
	limits.MaxNullOutputs = c.Limits.MaxNullOutputs
	limits.AllowUnsupportedResolutions = c.Limits.AllowUnsupportedResolutions
	limits.MinHardwareWidth = c.Hardware.MinWidth
	limits.MinHardwareHeight = c.Hardware.MinHeight
	return limits
}
