package decoder

import (
	"testing"
	"time"

	"github.com/user/remotevideo/pkg/denylist"
	"github.com/user/remotevideo/pkg/hwaccel"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/mocks"
	"github.com/user/remotevideo/pkg/taskqueue"
)

var hwCapability = media.HardwareCapability{
	CompositorID:               "compositor",
	SupportsSharedTexture:      true,
	SupportsRequiredAPIVersion: true,
}

type fixture struct {
	control   *taskqueue.Queue
	platform  *mocks.Platform
	transform *mocks.Transform
	factory   *mocks.TransformFactory
	bridge    *mocks.GPUBridge
	telemetry *mocks.Telemetry
	log       *mocks.Logger
	engine    *hwaccel.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		control:   taskqueue.New("control"),
		platform:  mocks.NewPlatform(),
		transform: mocks.NewTransform(),
		bridge:    mocks.NewGPUBridge("bridge-1"),
		telemetry: mocks.NewTelemetry(),
		log:       mocks.NewLogger(),
	}
	f.factory = mocks.NewTransformFactory(f.transform)
	caches := hwaccel.Caches{
		Modern: denylist.NewCache("modern", f.platform, f.log),
		Legacy: denylist.NewCache("legacy", f.platform, f.log),
	}
	f.engine = hwaccel.NewEngine(f.control, f.platform, caches, f.telemetry, f.log, hwaccel.DefaultSettings())
	t.Cleanup(f.control.Close)
	return f
}

func (f *fixture) manager(p Params, limits Limits) *Manager {
	return New(p, Deps{
		Engine:    f.engine,
		Factory:   f.factory,
		Bridge:    f.bridge,
		Telemetry: f.telemetry,
		Logger:    f.log,
		Limits:    limits,
	})
}

func streamParams(codec media.Codec, w, h int, capability media.HardwareCapability) Params {
	return Params{
		Config: media.DecoderConfig{
			Codec:       codec,
			CodedSize:   media.Size{Width: w, Height: h},
			DisplaySize: media.Size{Width: w, Height: h},
			Picture:     media.Rect{Width: w, Height: h},
		},
		FrameRate:  30,
		Capability: capability,
	}
}

func sampleAt(ms, durMs int) *media.CompressedSample {
	return &media.CompressedSample{
		Data:     []byte{0x00, 0x00, 0x01, 0x65},
		Time:     time.Duration(ms) * time.Millisecond,
		Duration: time.Duration(durMs) * time.Millisecond,
	}
}
