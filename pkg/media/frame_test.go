package media

import (
	"errors"
	"fmt"
	"testing"
)

func TestHeapMemoryReleaseOnce(t *testing.T) {
	calls := 0
	m := NewHeapMemory([]byte{1, 2, 3}, func() { calls++ })
	m.Release()
	m.Release()
	if calls != 1 {
		t.Errorf("release hook ran %d times, want 1", calls)
	}
	if !m.Released() {
		t.Error("Released() should be true")
	}
	if m.Bytes() != nil {
		t.Error("Bytes() should be nil after release")
	}
}

func TestTextureHandleRefcount(t *testing.T) {
	freed := 0
	tex := NewTextureHandle(7, "bridge-1", Size{Width: 64, Height: 64}, func() { freed++ })
	if err := tex.Retain(); err != nil {
		t.Fatalf("Retain() error = %v", err)
	}
	tex.Release()
	if tex.Freed() {
		t.Fatal("texture freed while a reference remains")
	}
	tex.Release()
	if !tex.Freed() || freed != 1 {
		t.Fatalf("freed=%v calls=%d, want freed once", tex.Freed(), freed)
	}
	tex.Release()
	if freed != 1 {
		t.Errorf("extra Release freed again")
	}
	if err := tex.Retain(); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("Retain() after free = %v, want ErrTextureReleased", err)
	}
}

func TestFramePayloadVariants(t *testing.T) {
	payloads := []FramePayload{
		&PlanarBuffer{Format: FormatYV12, Memory: NewHeapMemory(make([]byte, 8), nil)},
		NewTextureHandle(1, "b", Size{}, nil),
	}
	var planar, texture int
	for _, p := range payloads {
		switch p.(type) {
		case *PlanarBuffer:
			planar++
		case *TextureHandle:
			texture++
		}
		f := &DecodedFrame{Payload: p}
		f.Release()
	}
	if planar != 1 || texture != 1 {
		t.Errorf("planar=%d texture=%d", planar, texture)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := fmt.Errorf("construct: %w", Errorf(KindFatalConfig, "decoder.Init", "resolution %dx%d", 8192, 8192))
	if !errors.Is(err, ErrFatalConfig) {
		t.Error("errors.Is should match ErrFatalConfig")
	}
	if errors.Is(err, ErrFaulted) {
		t.Error("errors.Is should not match ErrFaulted")
	}
	if KindOf(err) != KindFatalConfig {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if !KindOf(err).Fatal() {
		t.Error("fatal-config should be fatal")
	}
	if KindOf(errors.New("x")) != KindUnknown {
		t.Error("plain error should be KindUnknown")
	}

	cause := errors.New("alloc")
	wrapped := Wrap(KindResourceExhaustion, "transfer.PackPlanar", cause)
	if !errors.Is(wrapped, ErrOutOfMemory) || !errors.Is(wrapped, cause) {
		t.Error("wrapped error should match kind and cause")
	}
	if KindResourceExhaustion.Fatal() {
		t.Error("resource exhaustion must not be fatal")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for k := KindFatalConfig; k <= KindShutDown; k++ {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("bogus"); got != KindUnknown {
		t.Errorf("ParseKind(bogus) = %v", got)
	}
}
