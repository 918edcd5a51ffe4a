package hwaccel

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/user/remotevideo/pkg/denylist"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/mocks"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/taskqueue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fullCapability = media.HardwareCapability{
	CompositorID:               "compositor-1",
	SupportsSharedTexture:      true,
	SupportsRequiredAPIVersion: true,
}

type fixture struct {
	control   *taskqueue.Queue
	platform  *mocks.Platform
	telemetry *mocks.Telemetry
	engine    *Engine
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		control:   taskqueue.New("control"),
		platform:  mocks.NewPlatform(),
		telemetry: mocks.NewTelemetry(),
	}
	f.platform.Modules = []ports.Module{
		{Name: "libva.so.2", Version: ports.ModuleVersion{2, 14, 0, 0}},
	}
	log := mocks.NewLogger()
	caches := Caches{
		Modern: denylist.NewCache("modern", f.platform, log),
		Legacy: denylist.NewCache("legacy", f.platform, log),
	}
	f.engine = NewEngine(f.control, f.platform, caches, f.telemetry, log, settings)
	t.Cleanup(f.control.Close)
	return f
}

func TestTryAcquirePrefersModern(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	res, err := f.engine.TryAcquire(context.Background(), fullCapability, Stream{Codec: media.CodecH264})
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !res.Acquired() || res.Accelerator.API() != ports.APIModern {
		t.Fatalf("got %+v, want modern accelerator", res)
	}
	if len(f.platform.CreateCalls) != 1 {
		t.Errorf("CreateAccelerator called %d times, want 1", len(f.platform.CreateCalls))
	}
}

func TestTryAcquireFallsBackToLegacy(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	f.platform.FailAPIs = map[ports.AccelAPI]bool{ports.APIModern: true}

	res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{Codec: media.CodecH264})
	if !res.Acquired() || res.Accelerator.API() != ports.APILegacy {
		t.Fatalf("got %+v, want legacy accelerator", res)
	}
}

func TestTryAcquireDenylisted(t *testing.T) {
	s := DefaultSettings()
	s.DenylistModern = "libva.so.2: 2.14.0.0"
	s.DenylistLegacy = "libva.so.2: 2.14.0.0"
	f := newFixture(t, s)

	res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{Codec: media.CodecH264})
	if res.Acquired() {
		t.Fatal("denylisted module should block hardware")
	}
	if res.DeniedModern != "libva.so.2 (2.14.0.0)" || res.DeniedLegacy != "libva.so.2 (2.14.0.0)" {
		t.Errorf("denied = %q / %q", res.DeniedModern, res.DeniedLegacy)
	}
	if !strings.Contains(res.FailureReason, "libva.so.2 (2.14.0.0)") {
		t.Errorf("FailureReason = %q, want denylisted module named", res.FailureReason)
	}
	if len(f.platform.CreateCalls) != 0 {
		t.Errorf("no accelerator should be created, got %v", f.platform.CreateCalls)
	}
	if f.telemetry.Count(ports.EventDenylistMatched) != 2 {
		t.Errorf("denylist_matched recorded %d times", f.telemetry.Count(ports.EventDenylistMatched))
	}
}

func TestTryAcquireDebugOverride(t *testing.T) {
	s := DefaultSettings()
	s.DenylistModern = "libva.so.2: 2.14.0.0"
	s.DebugOverride = true
	f := newFixture(t, s)

	res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{Codec: media.CodecH264})
	if !res.Acquired() {
		t.Fatalf("override should allow hardware: %s", res.FailureReason)
	}
	if res.DeniedModern == "" {
		t.Error("denylist match should still be reported")
	}
}

func TestTryAcquireCapabilityChecks(t *testing.T) {
	tests := []struct {
		name     string
		settings func(*Settings)
		cap      media.HardwareCapability
		wantAPI  ports.AccelAPI
		acquired bool
	}{
		{"disabled", func(s *Settings) { s.Enabled = false }, fullCapability, "", false},
		{"no shared texture", nil, media.HardwareCapability{SupportsRequiredAPIVersion: true}, "", false},
		{"old api version", nil, media.HardwareCapability{SupportsSharedTexture: true}, ports.APILegacy, true},
		{"nothing allowed", func(s *Settings) { s.AllowModern, s.AllowLegacy = false, false }, fullCapability, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			if tt.settings != nil {
				tt.settings(&s)
			}
			f := newFixture(t, s)
			res, _ := f.engine.TryAcquire(context.Background(), tt.cap, Stream{})
			if res.Acquired() != tt.acquired {
				t.Fatalf("Acquired() = %v, want %v (%s)", res.Acquired(), tt.acquired, res.FailureReason)
			}
			if tt.acquired && res.Accelerator.API() != tt.wantAPI {
				t.Errorf("API = %v, want %v", res.Accelerator.API(), tt.wantAPI)
			}
			if !tt.acquired && res.FailureReason == "" {
				t.Error("FailureReason should be set")
			}
		})
	}
}

func TestDenylistVerdictIsCachedAcrossNegotiations(t *testing.T) {
	s := DefaultSettings()
	s.DenylistModern = "libfoo.so: 1.0.0.0"
	s.AllowLegacy = false
	f := newFixture(t, s)

	for i := 0; i < 3; i++ {
		res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{})
		_ = f.engine.Release(context.Background(), res.Accelerator)
	}
	if f.platform.LoadedModulesCalls() != 1 {
		t.Errorf("modules scanned %d times, want 1", f.platform.LoadedModulesCalls())
	}

	f.engine.SetDenylist(ports.APIModern, "libfoo.so: 1.0.0.1")
	_, _ = f.engine.TryAcquire(context.Background(), fullCapability, Stream{})
	if f.platform.LoadedModulesCalls() != 2 {
		t.Errorf("changed denylist should rescan, scans = %d", f.platform.LoadedModulesCalls())
	}
}

func TestTryAcquireRunsOnControlQueue(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	block := make(chan struct{})
	_ = f.control.Dispatch(func(ctx context.Context) { <-block })

	done := make(chan Result, 1)
	go func() {
		res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{})
		done <- res
	}()

	select {
	case <-done:
		t.Fatal("TryAcquire finished while the control queue was busy")
	case <-time.After(30 * time.Millisecond):
	}
	close(block)
	res := <-done
	if !res.Acquired() {
		t.Errorf("expected accelerator after control queue resumed: %s", res.FailureReason)
	}
}

func TestMaxH264PixelsProbesOnce(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	f.platform.FourK = true

	for i := 0; i < 3; i++ {
		n, err := f.engine.MaxH264Pixels(context.Background())
		if err != nil || n != MaxH264Pixels4K {
			t.Fatalf("MaxH264Pixels() = %d, %v", n, err)
		}
	}
	if f.platform.ProbeCalls() != 1 {
		t.Errorf("platform probed %d times, want 1", f.platform.ProbeCalls())
	}
}

func TestReleaseClosesOnControlQueue(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	res, _ := f.engine.TryAcquire(context.Background(), fullCapability, Stream{})
	acc := res.Accelerator.(*mocks.Accelerator)

	if err := f.engine.Release(context.Background(), acc); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if acc.Closed() != 1 {
		t.Errorf("Close called %d times", acc.Closed())
	}

	f.control.Close()
	acc2 := mocks.NewAccelerator(ports.APILegacy)
	if err := f.engine.Release(context.Background(), acc2); err != nil {
		t.Fatalf("Release() after control shutdown error = %v", err)
	}
	if acc2.Closed() != 1 {
		t.Error("accelerator should be closed in place after control shutdown")
	}
}

func TestTryAcquireCancelledWhileQueueBusyClosesAccelerator(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	release := make(chan struct{})
	if err := f.control.Dispatch(func(context.Context) { <-release }); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := f.engine.TryAcquire(ctx, fullCapability, Stream{Codec: media.CodecH264})
	if err != context.DeadlineExceeded {
		t.Fatalf("TryAcquire() error = %v, want deadline exceeded", err)
	}
	if res.Acquired() {
		t.Fatal("cancelled TryAcquire returned an accelerator")
	}

	close(release)
	if err := taskqueue.Run(context.Background(), f.control, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	created := f.platform.Created()
	if len(created) != 1 {
		t.Fatalf("created %d accelerators, want 1", len(created))
	}
	if n := created[0].Closed(); n != 1 {
		t.Errorf("abandoned accelerator closed %d times, want 1", n)
	}
}
