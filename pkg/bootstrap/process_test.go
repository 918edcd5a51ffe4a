package bootstrap

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/hwaccel"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/mocks"
	"github.com/user/remotevideo/pkg/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newProcess(settings hwaccel.Settings) (*Process, *mocks.Platform) {
	platform := mocks.NewPlatform()
	platform.Modules = []ports.Module{{Name: "libva.so.2", Version: ports.ModuleVersion{2, 14, 0, 0}}}
	return New(Options{
		Platform:  platform,
		Telemetry: mocks.NewTelemetry(),
		Logger:    mocks.NewLogger(),
		Settings:  settings,
		Limits:    decoder.DefaultLimits(),
	}), platform
}

func TestProcessLifecycle(t *testing.T) {
	ctx := context.Background()
	p, platform := newProcess(hwaccel.DefaultSettings())

	if _, err := p.Engine(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Engine() before Init error = %v", err)
	}
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := p.Init(ctx); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init() error = %v", err)
	}
	if platform.ProbeCalls() != 1 {
		t.Errorf("platform probed %d times during Init, want 1", platform.ProbeCalls())
	}

	deps, err := p.DecoderDeps(mocks.NewTransformFactory(mocks.NewTransform()), nil)
	if err != nil {
		t.Fatalf("DecoderDeps() error = %v", err)
	}
	if deps.Engine == nil || deps.Limits.MaxNullOutputs != decoder.DefaultMaxNullOutputs {
		t.Errorf("deps = %+v", deps)
	}

	p.Shutdown(ctx)
	p.Shutdown(ctx)
	if _, err := p.Engine(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Engine() after Shutdown error = %v", err)
	}
}

func TestShutdownClearsDenylistCaches(t *testing.T) {
	ctx := context.Background()
	s := hwaccel.DefaultSettings()
	s.DenylistModern = "libva.so.2: 2.14.0.0"
	p, _ := newProcess(s)
	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	engine, _ := p.Engine()
	capability := media.HardwareCapability{SupportsSharedTexture: true, SupportsRequiredAPIVersion: true}
	res, err := engine.TryAcquire(ctx, capability, hwaccel.Stream{Codec: media.CodecH264})
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if err := engine.Release(ctx, res.Accelerator); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	caches := p.Caches()
	if caches.Modern.Matched() == "" {
		t.Fatal("modern cache should hold the match before shutdown")
	}
	p.Shutdown(ctx)
	if caches.Modern.Matched() != "" || caches.Legacy.Matched() != "" {
		t.Error("caches should be cleared at shutdown")
	}
}
