package sysplatform

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// deviceAccelerator holds a DRI device open for one decoder.
type deviceAccelerator struct {
	api        ports.AccelAPI
	file       *os.File
	capability media.HardwareCapability

	mu         sync.Mutex
	configured media.Size
	closed     bool
}

func (a *deviceAccelerator) API() ports.AccelAPI { return a.api }

func (a *deviceAccelerator) Description() string {
	return fmt.Sprintf("%s accelerator on %s", a.api, filepath.Base(a.file.Name()))
}

// SupportsConfig accepts semi-planar output within the device's limits.
func (a *deviceAccelerator) SupportsConfig(out ports.OutputType, frameRate float64) bool {
	if out.Format.Layout() != media.LayoutSemiPlanar {
		return false
	}
	if out.Format.BytesPerSample() == 2 && a.api == ports.APILegacy {
		return false
	}
	return out.Size.Width <= 4096 && out.Size.Height <= 2304
}

func (a *deviceAccelerator) ConfigureForSize(out ports.OutputType, cs media.ColorSpace, width, height int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return os.ErrClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("sysplatform: invalid size %dx%d", width, height)
	}
	a.configured = media.Size{Width: width, Height: height}
	return nil
}

func (a *deviceAccelerator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.file.Close()
}
