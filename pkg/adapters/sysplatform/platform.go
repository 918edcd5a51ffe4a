// Package sysplatform implements ports.Platform from what the operating
// system exposes: mapped shared libraries in /proc/self/maps, the system
// library directories and DRI device nodes.
package sysplatform

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/user/remotevideo/pkg/adapters/logger"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// ErrNoDevice is returned when no device node serves the requested API.
var ErrNoDevice = errors.New("sysplatform: no acceleration device")

// Options configures where the platform looks.
type Options struct {
	// MapsPath defaults to /proc/self/maps.
	MapsPath string
	// LibDirs defaults to the usual Linux library directories.
	LibDirs []string
	// DevDir defaults to /dev/dri.
	DevDir string
	// Force4K overrides the 4K probe when non-nil.
	Force4K *bool
	Logger  ports.Logger
}

// Platform implements ports.Platform.
type Platform struct {
	mapsPath string
	libDirs  []string
	devDir   string
	force4K  *bool
	log      ports.Logger
}

var _ ports.Platform = (*Platform)(nil)

// New returns a platform with defaults filled in.
func New(opts Options) *Platform {
	p := &Platform{
		mapsPath: opts.MapsPath,
		libDirs:  opts.LibDirs,
		devDir:   opts.DevDir,
		force4K:  opts.Force4K,
		log:      opts.Logger,
	}
	if p.mapsPath == "" {
		p.mapsPath = "/proc/self/maps"
	}
	if p.libDirs == nil {
		p.libDirs = []string{
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/lib64",
			"/usr/lib",
			"/lib",
		}
	}
	if p.devDir == "" {
		p.devDir = "/dev/dri"
	}
	if p.log == nil {
		p.log = logger.NewNoop()
	}
	p.log = p.log.WithComponent("platform")
	return p
}

// H264Supports4K reports whether a render node is present. Render nodes
// belong to drivers that decode H.264 level 5.1.
func (p *Platform) H264Supports4K() bool {
	if p.force4K != nil {
		return *p.force4K
	}
	return len(p.devices("renderD*")) > 0
}

// LoadedModules lists shared libraries mapped into the process. A missing
// maps file yields an empty list.
func (p *Platform) LoadedModules() ([]ports.Module, error) {
	f, err := os.Open(p.mapsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sysplatform: open maps: %w", err)
	}
	defer f.Close()
	return parseMaps(f)
}

func parseMaps(r io.Reader) ([]ports.Module, error) {
	seen := make(map[string]bool)
	var mods []ports.Module
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if !strings.HasPrefix(path, "/") || seen[path] {
			continue
		}
		seen[path] = true
		if m, ok := moduleFromPath(path); ok {
			mods = append(mods, m)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sysplatform: read maps: %w", err)
	}
	return mods, nil
}

// SystemModule finds name, or name with a version suffix, in the library
// directories. The highest version wins.
func (p *Platform) SystemModule(name string) (ports.Module, bool) {
	var found []ports.Module
	for _, dir := range p.libDirs {
		matches, _ := filepath.Glob(filepath.Join(dir, name+"*"))
		for _, path := range matches {
			m, ok := moduleFromPath(path)
			if ok && strings.EqualFold(m.Name, name) {
				found = append(found, m)
			}
		}
	}
	if len(found) == 0 {
		return ports.Module{}, false
	}
	sort.Slice(found, func(i, j int) bool { return versionLess(found[j].Version, found[i].Version) })
	return found[0], true
}

// CreateAccelerator opens the device node for api. Render nodes serve the
// modern API and primary nodes the legacy one.
func (p *Platform) CreateAccelerator(api ports.AccelAPI, capability media.HardwareCapability) (ports.Accelerator, error) {
	pattern := "renderD*"
	if api == ports.APILegacy {
		pattern = "card*"
	}
	for _, dev := range p.devices(pattern) {
		f, err := os.OpenFile(dev, os.O_RDWR, 0)
		if err != nil {
			p.log.Debug("Cannot open %s: %v", dev, err)
			continue
		}
		return &deviceAccelerator{api: api, file: f, capability: capability}, nil
	}
	return nil, fmt.Errorf("%w for %s API in %s", ErrNoDevice, api, p.devDir)
}

func (p *Platform) devices(pattern string) []string {
	matches, _ := filepath.Glob(filepath.Join(p.devDir, pattern))
	sort.Strings(matches)
	return matches
}

// moduleFromPath splits "libfoo.so.1.2.3" into name "libfoo.so" and
// version 1.2.3.0. Paths without ".so" are not modules.
func moduleFromPath(path string) (ports.Module, bool) {
	base := filepath.Base(path)
	i := strings.Index(base, ".so")
	if i < 0 {
		return ports.Module{}, false
	}
	rest := base[i+3:]
	if rest != "" && rest[0] != '.' {
		return ports.Module{}, false
	}
	m := ports.Module{Name: base[:i+3], Path: path}
	m.Version = parseVersion(strings.TrimPrefix(rest, "."))
	return m, true
}

func parseVersion(s string) ports.ModuleVersion {
	var v ports.ModuleVersion
	if s == "" {
		return v
	}
	for i, part := range strings.SplitN(s, ".", 4) {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			break
		}
		v[i] = uint16(n)
	}
	return v
}

func versionLess(a, b ports.ModuleVersion) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
