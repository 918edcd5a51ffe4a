package ports

import (
	"fmt"

	"github.com/user/remotevideo/pkg/media"
)

// AccelAPI names a hardware acceleration interface. Engines try the modern
// API before the legacy one.
type AccelAPI string

const (
	APIModern AccelAPI = "modern"
	APILegacy AccelAPI = "legacy"
)

// Accelerator is a hardware decode device bound to one decoder.
// It must be created and closed on the control queue.
type Accelerator interface {
	API() AccelAPI
	Description() string
	SupportsConfig(out OutputType, frameRate float64) bool
	ConfigureForSize(out OutputType, cs media.ColorSpace, width, height int) error
	Close() error
}

// ModuleVersion is a four-part a.b.c.d version.
type ModuleVersion [4]uint16

func (v ModuleVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Module is a shared library known to the platform.
type Module struct {
	Name    string
	Path    string
	Version ModuleVersion
}

// Platform exposes process-global platform state. Calls must happen on the
// control queue.
type Platform interface {
	// H264Supports4K reports whether the platform decoder handles H.264 above 1080p.
	H264Supports4K() bool

	// LoadedModules lists shared libraries mapped into the process.
	LoadedModules() ([]Module, error)

	// SystemModule looks a module up in the system library directories.
	SystemModule(name string) (Module, bool)

	CreateAccelerator(api AccelAPI, capability media.HardwareCapability) (Accelerator, error)
}

// GPUBridge turns native surfaces into textures the compositor can use.
type GPUBridge interface {
	ID() string

	// WrapAsTexture takes ownership of s on success.
	WrapAsTexture(s Surface) (*media.TextureHandle, error)

	// TextureForwarderAvailable is false once the compositor link is gone.
	TextureForwarderAvailable() bool
}
