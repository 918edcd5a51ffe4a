package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/ports"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() invalid: %v", err)
	}
	if !cfg.Hardware.Enabled || !cfg.Hardware.AllowModern || !cfg.Hardware.AllowLegacy {
		t.Errorf("hardware = %+v", cfg.Hardware)
	}
	limits := cfg.ToLimits()
	if limits.MaxTypeChanges != 100 || limits.MaxNullOutputs != 250 {
		t.Errorf("limits = %+v", limits)
	}
	if limits.MinHardwareWidth != decoder.DefaultMinHardwareSize || len(limits.HardwareOnlyCodecs) != 2 {
		t.Errorf("limits = %+v", limits)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotevideo.yaml")
	data := `
log_level: debug
hardware:
  allow_legacy: false
  denylist_modern: "libva.so.2: 2.14.0.0"
limits:
  max_null_outputs: 10
transfer:
  shm_dir: /tmp/frames
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Level() != ports.LevelDebug {
		t.Errorf("Level() = %v", cfg.Level())
	}
	s := cfg.ToEngineSettings()
	if !s.Enabled || !s.AllowModern || s.AllowLegacy || s.DenylistModern != "libva.so.2: 2.14.0.0" {
		t.Errorf("settings = %+v", s)
	}
	if cfg.Limits.MaxNullOutputs != 10 || cfg.Limits.MaxTypeChanges != 100 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.Transfer.ShmDir != "/tmp/frames" {
		t.Errorf("shm_dir = %q", cfg.Transfer.ShmDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero type changes", func(c *Config) { c.Limits.MaxTypeChanges = 0 }},
		{"negative null outputs", func(c *Config) { c.Limits.MaxNullOutputs = -1 }},
		{"negative min width", func(c *Config) { c.Hardware.MinWidth = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
