// Package hwaccel decides whether a decoder gets a hardware accelerator.
// All platform probing and denylist checks run on the control queue.
package hwaccel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/remotevideo/pkg/denylist"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/taskqueue"
)

// H.264 pixel limits of platform decoders.
const (
	MaxH264Pixels1080p = 1920 * 1088
	MaxH264Pixels4K    = 4096 * 2304
)

// Settings control negotiation. They may change at runtime; each TryAcquire
// uses a snapshot.
type Settings struct {
	Enabled        bool
	AllowModern    bool
	AllowLegacy    bool
	DenylistModern string
	DenylistLegacy string
	// DebugOverride ignores denylist matches. Matches are still reported.
	DebugOverride bool
}

// DefaultSettings enables both APIs with empty denylists.
func DefaultSettings() Settings {
	return Settings{
		Enabled:     true,
		AllowModern: true,
		AllowLegacy: true,
	}
}

// Caches holds one denylist cache per acceleration API.
type Caches struct {
	Modern *denylist.Cache
	Legacy *denylist.Cache
}

// Stream describes the stream hardware is requested for.
type Stream struct {
	Codec     media.Codec
	Picture   media.Rect
	FrameRate float64
}

// Result of a negotiation. Accelerator is nil when hardware is not used.
type Result struct {
	Accelerator   ports.Accelerator
	FailureReason string
	DeniedModern  string
	DeniedLegacy  string
}

// Acquired reports whether an accelerator was created.
func (r Result) Acquired() bool {
	return r.Accelerator != nil
}

// Engine is the hardware negotiation engine of one process.
type Engine struct {
	control   *taskqueue.Queue
	platform  ports.Platform
	caches    Caches
	telemetry ports.Telemetry
	log       ports.Logger

	mu       sync.Mutex
	settings Settings
	probed   bool
	fourK    bool
}

// NewEngine creates an engine bound to the control queue.
func NewEngine(control *taskqueue.Queue, platform ports.Platform, caches Caches, telemetry ports.Telemetry, log ports.Logger, settings Settings) *Engine {
	return &Engine{
		control:   control,
		platform:  platform,
		caches:    caches,
		telemetry: telemetry,
		log:       log.WithComponent("hwaccel"),
		settings:  settings,
	}
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSettings replaces the settings used by later negotiations.
func (e *Engine) SetSettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
}

// SetDenylist changes the denylist of one API. The cache rescans on the next
// negotiation.
func (e *Engine) SetDenylist(api ports.AccelAPI, config string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch api {
	case ports.APIModern:
		e.settings.DenylistModern = config
	case ports.APILegacy:
		e.settings.DenylistLegacy = config
	}
}

// TryAcquire negotiates an accelerator for stream. It blocks until the
// control queue has run the negotiation. When ctx ends first, an
// accelerator created by the negotiation afterwards is closed on the
// control queue.
func (e *Engine) TryAcquire(ctx context.Context, capability media.HardwareCapability, stream Stream) (Result, error) {
	var h handoff
	res, err := taskqueue.Call(ctx, e.control, func(ctx context.Context) (Result, error) {
		res := e.negotiate(capability, stream)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.abandoned && res.Accelerator != nil {
			e.closeAbandoned(res.Accelerator)
			res.Accelerator = nil
		}
		h.acc = res.Accelerator
		return res, nil
	})
	if err == nil {
		return res, nil
	}

	h.mu.Lock()
	h.abandoned = true
	acc := h.acc
	h.acc = nil
	h.mu.Unlock()
	if acc != nil {
		// The negotiation finished between the cancellation and now.
		if err := e.control.Dispatch(func(context.Context) { e.closeAbandoned(acc) }); err != nil {
			e.closeAbandoned(acc)
		}
	}
	return Result{}, err
}

// handoff passes a negotiated accelerator to a caller that may have given
// up waiting for it.
type handoff struct {
	mu        sync.Mutex
	abandoned bool
	acc       ports.Accelerator
}

func (e *Engine) closeAbandoned(acc ports.Accelerator) {
	e.log.Debug("Closing %s negotiated after the caller left", acc.Description())
	if err := acc.Close(); err != nil {
		e.log.Warn("Releasing accelerator: %v", err)
	}
}

func (e *Engine) negotiate(capability media.HardwareCapability, stream Stream) Result {
	s := e.Settings()
	var res Result

	if !s.Enabled {
		res.FailureReason = "hardware acceleration disabled"
		return res
	}
	if !capability.SupportsSharedTexture {
		res.FailureReason = "compositor does not support shared textures"
		return res
	}

	var reasons []string
	if s.AllowModern {
		if !capability.SupportsRequiredAPIVersion {
			reasons = append(reasons, "modern API not supported by compositor")
		} else {
			acc, denied, err := e.attempt(ports.APIModern, e.caches.Modern, s.DenylistModern, s.DebugOverride, capability)
			res.DeniedModern = denied
			if err == nil {
				res.Accelerator = acc
				e.log.Debug("Acquired %s for %s %dx%d", acc.Description(), stream.Codec, stream.Picture.Width, stream.Picture.Height)
				return res
			}
			reasons = append(reasons, err.Error())
		}
	}
	if s.AllowLegacy {
		acc, denied, err := e.attempt(ports.APILegacy, e.caches.Legacy, s.DenylistLegacy, s.DebugOverride, capability)
		res.DeniedLegacy = denied
		if err == nil {
			res.Accelerator = acc
			e.log.Debug("Acquired %s for %s %dx%d", acc.Description(), stream.Codec, stream.Picture.Width, stream.Picture.Height)
			return res
		}
		reasons = append(reasons, err.Error())
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no acceleration API allowed")
	}
	res.FailureReason = strings.Join(reasons, "; ")
	return res
}

func (e *Engine) attempt(api ports.AccelAPI, cache *denylist.Cache, config string, override bool, capability media.HardwareCapability) (ports.Accelerator, string, error) {
	var denied string
	if cache != nil {
		denied = cache.Find(config)
	}
	if denied != "" {
		e.telemetry.RecordEvent(ports.EventDenylistMatched, 1)
		if !override {
			return nil, denied, fmt.Errorf("%s API denylisted with module %s", api, denied)
		}
		e.log.Warn("Ignoring denylisted module %s for %s API", denied, api)
	}
	acc, err := e.platform.CreateAccelerator(api, capability)
	if err != nil {
		return nil, denied, fmt.Errorf("%s API: %w", api, err)
	}
	if acc == nil {
		return nil, denied, fmt.Errorf("%s API: no device", api)
	}
	return acc, denied, nil
}

// MaxH264Pixels returns the largest H.264 picture the platform decodes.
// The platform probe runs once on the control queue.
func (e *Engine) MaxH264Pixels(ctx context.Context) (int64, error) {
	return taskqueue.Call(ctx, e.control, func(ctx context.Context) (int64, error) {
		e.mu.Lock()
		probed, fourK := e.probed, e.fourK
		e.mu.Unlock()
		if !probed {
			fourK = e.platform.H264Supports4K()
			e.mu.Lock()
			e.probed, e.fourK = true, fourK
			e.mu.Unlock()
		}
		if fourK {
			return MaxH264Pixels4K, nil
		}
		return MaxH264Pixels1080p, nil
	})
}

// SupportsConfig asks acc on the control queue whether it can decode out.
func (e *Engine) SupportsConfig(ctx context.Context, acc ports.Accelerator, out ports.OutputType, frameRate float64) bool {
	ok, err := taskqueue.Call(ctx, e.control, func(ctx context.Context) (bool, error) {
		return acc.SupportsConfig(out, frameRate), nil
	})
	return err == nil && ok
}

// Release closes acc on the control queue and waits for it. If the control
// queue is already gone the accelerator is closed on the caller's goroutine.
func (e *Engine) Release(ctx context.Context, acc ports.Accelerator) error {
	if acc == nil {
		return nil
	}
	err := taskqueue.Run(ctx, e.control, func(ctx context.Context) error {
		return acc.Close()
	})
	if errors.Is(err, taskqueue.ErrClosed) {
		e.log.Warn("Control queue closed, releasing %s in place", acc.Description())
		return acc.Close()
	}
	return err
}
