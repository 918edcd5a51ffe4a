package sysplatform

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

const sampleMaps = `55d0c0a00000-55d0c0a21000 r--p 00000000 103:02 1234 /usr/bin/remotevideo
7f1a2c000000-7f1a2c021000 rw-p 00000000 00:00 0
7f1a2d000000-7f1a2d1b0000 r-xp 00000000 103:02 5678 /usr/lib/x86_64-linux-gnu/libva.so.2.1400.0
7f1a2d1b0000-7f1a2d1c0000 r--p 001b0000 103:02 5678 /usr/lib/x86_64-linux-gnu/libva.so.2.1400.0
7f1a2e000000-7f1a2e100000 r-xp 00000000 103:02 9012 /usr/lib/x86_64-linux-gnu/libc.so.6
7f1a2f000000-7f1a2f010000 r-xp 00000000 103:02 3456 /opt/My Drivers/libnvcuvid.so
7ffd0e000000-7ffd0e021000 rw-p 00000000 00:00 0 [stack]
`

func TestParseMaps(t *testing.T) {
	mods, err := parseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}
	want := []ports.Module{
		{Name: "libva.so", Path: "/usr/lib/x86_64-linux-gnu/libva.so.2.1400.0", Version: ports.ModuleVersion{2, 1400, 0, 0}},
		{Name: "libc.so", Path: "/usr/lib/x86_64-linux-gnu/libc.so.6", Version: ports.ModuleVersion{6, 0, 0, 0}},
		{Name: "libnvcuvid.so", Path: "/opt/My Drivers/libnvcuvid.so"},
	}
	if len(mods) != len(want) {
		t.Fatalf("parseMaps() = %+v", mods)
	}
	for i := range want {
		if mods[i] != want[i] {
			t.Errorf("module %d = %+v, want %+v", i, mods[i], want[i])
		}
	}
}

func TestModuleFromPath(t *testing.T) {
	tests := []struct {
		path    string
		name    string
		version ports.ModuleVersion
		ok      bool
	}{
		{"/lib/libfoo.so", "libfoo.so", ports.ModuleVersion{}, true},
		{"/lib/libfoo.so.1.2.3.4", "libfoo.so", ports.ModuleVersion{1, 2, 3, 4}, true},
		{"/lib/libfoo.so.1.x", "libfoo.so", ports.ModuleVersion{1, 0, 0, 0}, true},
		{"/lib/libfoo.soname", "", ports.ModuleVersion{}, false},
		{"/usr/bin/remotevideo", "", ports.ModuleVersion{}, false},
	}
	for _, tt := range tests {
		m, ok := moduleFromPath(tt.path)
		if ok != tt.ok || m.Name != tt.name || m.Version != tt.version {
			t.Errorf("moduleFromPath(%q) = %+v, %v", tt.path, m, ok)
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadedModulesMissingMaps(t *testing.T) {
	p := New(Options{MapsPath: filepath.Join(t.TempDir(), "maps")})
	mods, err := p.LoadedModules()
	if err != nil || len(mods) != 0 {
		t.Errorf("LoadedModules() = %v, %v", mods, err)
	}
}

func TestLoadedModulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps")
	if err := os.WriteFile(path, []byte(sampleMaps), 0o644); err != nil {
		t.Fatal(err)
	}
	mods, err := New(Options{MapsPath: path}).LoadedModules()
	if err != nil || len(mods) != 3 {
		t.Errorf("LoadedModules() = %v, %v", mods, err)
	}
}

func TestSystemModulePicksHighestVersion(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a", "libva.so.2.1000.0"))
	touch(t, filepath.Join(dir, "b", "libva.so.2.1400.0"))
	touch(t, filepath.Join(dir, "b", "libva-drm.so.2"))

	p := New(Options{LibDirs: []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}})
	m, ok := p.SystemModule("libva.so")
	if !ok {
		t.Fatal("libva.so not found")
	}
	if m.Version != (ports.ModuleVersion{2, 1400, 0, 0}) {
		t.Errorf("version = %s", m.Version)
	}
	if _, ok := p.SystemModule("libmissing.so"); ok {
		t.Error("found a module that does not exist")
	}
}

func TestCreateAccelerator(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "renderD128"))

	p := New(Options{DevDir: dir})
	if !p.H264Supports4K() {
		t.Error("H264Supports4K() = false with a render node")
	}

	acc, err := p.CreateAccelerator(ports.APIModern, media.HardwareCapability{})
	if err != nil {
		t.Fatal(err)
	}
	if acc.API() != ports.APIModern || !strings.Contains(acc.Description(), "renderD128") {
		t.Errorf("accelerator %s %q", acc.API(), acc.Description())
	}

	tests := []struct {
		out  ports.OutputType
		want bool
	}{
		{ports.OutputType{Format: media.FormatNV12, Size: media.Size{Width: 1920, Height: 1088}}, true},
		{ports.OutputType{Format: media.FormatP010, Size: media.Size{Width: 3840, Height: 2160}}, true},
		{ports.OutputType{Format: media.FormatYV12, Size: media.Size{Width: 640, Height: 480}}, false},
		{ports.OutputType{Format: media.FormatNV12, Size: media.Size{Width: 8192, Height: 4320}}, false},
	}
	for _, tt := range tests {
		if got := acc.SupportsConfig(tt.out, 30); got != tt.want {
			t.Errorf("SupportsConfig(%s %dx%d) = %v", tt.out.Format, tt.out.Size.Width, tt.out.Size.Height, got)
		}
	}

	if err := acc.ConfigureForSize(tests[0].out, media.ColorSpaceBT709, 1920, 1080); err != nil {
		t.Errorf("ConfigureForSize: %v", err)
	}
	if err := acc.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := acc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := p.CreateAccelerator(ports.APILegacy, media.HardwareCapability{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("legacy without card node: got %v", err)
	}
}

func TestForce4K(t *testing.T) {
	off := false
	p := New(Options{DevDir: t.TempDir(), Force4K: &off})
	if p.H264Supports4K() {
		t.Error("Force4K=false ignored")
	}
}
