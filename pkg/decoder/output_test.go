package decoder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

func readyManager(t *testing.T, f *fixture, p Params) *Manager {
	t.Helper()
	m := f.manager(p, DefaultLimits())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestOutputRoundTripTiming(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}))

	if err := m.Input(context.Background(), sampleAt(40, 20)); err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if frame.Time != 40*time.Millisecond || frame.Duration != 20*time.Millisecond {
		t.Errorf("timing = %v/%v", frame.Time, frame.Duration)
	}
	if frame.Picture != (media.Rect{Width: 640, Height: 480}) {
		t.Errorf("Picture = %+v", frame.Picture)
	}
	if _, err := m.Output(context.Background()); !errors.Is(err, ports.ErrNeedMoreInput) {
		t.Errorf("second Output() = %v, want need more input", err)
	}
	frame.Release()
	if f.transform.FreedUnits() != 1 {
		t.Errorf("freed units = %d, want 1", f.transform.FreedUnits())
	}
}

func TestOutputNullTolerance(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}))

	calls := 0
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		calls++
		switch {
		case calls <= DefaultMaxNullOutputs:
			return nil, nil
		case calls == DefaultMaxNullOutputs+1:
			return f.transform.NewUnit(sampleAt(0, 33)), nil
		default:
			return nil, ports.ErrNeedMoreInput
		}
	}

	var frames int
	for {
		frame, err := m.Output(context.Background())
		if errors.Is(err, ports.ErrNeedMoreInput) {
			break
		}
		if err != nil {
			t.Fatalf("Output() error = %v", err)
		}
		frames++
		frame.Release()
	}
	if frames != 1 {
		t.Errorf("got %d frames, want 1", frames)
	}
	if !m.Stats().GotValidAfterNull {
		t.Error("GotValidAfterNull should be set")
	}
	if f.telemetry.Count(ports.EventNullOutputRecovered) != 1 {
		t.Errorf("null_output_recovered recorded %d times", f.telemetry.Count(ports.EventNullOutputRecovered))
	}
	if m.State() != StateReady {
		t.Errorf("State() = %v", m.State())
	}

	m.Shutdown(context.Background())
	if got := f.telemetry.Values(ports.EventNullOutputSamples); len(got) != 1 || got[0] != NullBucketRecovered {
		t.Errorf("null bucket = %v, want [%d]", got, NullBucketRecovered)
	}
}

func TestOutputExcessiveNullFaults(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}))

	calls := 0
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		calls++
		return nil, nil
	}
	_, err := m.Output(context.Background())
	if !errors.Is(err, media.ErrFaulted) {
		t.Fatalf("Output() error = %v, want faulted", err)
	}
	if calls != DefaultMaxNullOutputs+1 {
		t.Errorf("transform polled %d times, want %d", calls, DefaultMaxNullOutputs+1)
	}
	if m.State() != StateFaulted {
		t.Errorf("State() = %v", m.State())
	}
	if err := m.Input(context.Background(), sampleAt(0, 33)); !errors.Is(err, media.ErrFaulted) {
		t.Errorf("Input() after fault = %v", err)
	}

	m.Shutdown(context.Background())
	if got := f.telemetry.Values(ports.EventNullOutputSamples); len(got) != 1 || got[0] != NullBucketExcessive {
		t.Errorf("null bucket = %v, want [%d]", got, NullBucketExcessive)
	}
}

func TestNullOutputsCountOverLifetime(t *testing.T) {
	f := newFixture(t)
	limits := DefaultLimits()
	limits.MaxNullOutputs = 3
	m := f.manager(streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}), limits)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer m.Shutdown(context.Background())

	// Each Output call sees two nulls then runs out of input.
	calls := 0
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		calls++
		if calls%3 == 0 {
			return nil, ports.ErrNeedMoreInput
		}
		return nil, nil
	}
	if _, err := m.Output(context.Background()); !errors.Is(err, ports.ErrNeedMoreInput) {
		t.Fatalf("first Output() = %v", err)
	}
	if _, err := m.Output(context.Background()); !errors.Is(err, media.ErrFaulted) {
		t.Fatalf("second Output() = %v, want faulted", err)
	}
}

func TestOutputRenegotiatesOnStreamChange(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}))

	changed := false
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		if !changed {
			changed = true
			f.transform.Size = media.Size{Width: 1280, Height: 736}
			return nil, ports.ErrStreamChange
		}
		return f.transform.NewUnit(sampleAt(0, 33)), nil
	}

	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	defer frame.Release()
	buf, ok := frame.Payload.(*media.PlanarBuffer)
	if !ok {
		t.Fatalf("payload = %T", frame.Payload)
	}
	if buf.Planes[0].Stride != 1280 {
		t.Errorf("stride = %d, want 1280", buf.Planes[0].Stride)
	}
	if buf.Planes[2].Offset != 1280*736 {
		t.Errorf("Cr offset = %d, want %d", buf.Planes[2].Offset, 1280*736)
	}
	if m.State() != StateReady || m.Stats().TypeChanges != 1 {
		t.Errorf("state=%v typeChanges=%d", m.State(), m.Stats().TypeChanges)
	}
}

func TestOutputTypeChangeLimit(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 640, 480, media.HardwareCapability{}))

	calls := 0
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		calls++
		return nil, ports.ErrStreamChange
	}
	_, err := m.Output(context.Background())
	if !errors.Is(err, media.ErrFaulted) {
		t.Fatalf("Output() error = %v, want faulted", err)
	}
	if calls != DefaultMaxTypeChanges+1 {
		t.Errorf("transform polled %d times, want %d", calls, DefaultMaxTypeChanges+1)
	}
}

func TestOutputSeekThreshold(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 320, 240, media.HardwareCapability{}))

	m.SetSeekThreshold(100 * time.Millisecond)
	for _, ms := range []int{0, 40, 80, 120} {
		if err := m.Input(context.Background(), sampleAt(ms, 40)); err != nil {
			t.Fatalf("Input() error = %v", err)
		}
	}

	var got []time.Duration
	for {
		frame, err := m.Output(context.Background())
		if errors.Is(err, ports.ErrNeedMoreInput) {
			break
		}
		if err != nil {
			t.Fatalf("Output() error = %v", err)
		}
		got = append(got, frame.Time)
		frame.Release()
	}
	want := []time.Duration{80 * time.Millisecond, 120 * time.Millisecond}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("emitted %v, want %v", got, want)
	}
	if m.Stats().Dropped != 2 {
		t.Errorf("dropped = %d, want 2", m.Stats().Dropped)
	}
	if f.transform.FreedUnits() != 4 {
		t.Errorf("freed units = %d, want 4", f.transform.FreedUnits())
	}
}

func TestPlanarLayouts(t *testing.T) {
	const w, h = 64, 48
	tests := []struct {
		name    string
		formats []media.PixelFormat
		want    media.PixelFormat
		planes  [3]media.Plane
		depth   media.ColorDepth
	}{
		{
			name: "yv12",
			want: media.FormatYV12,
			planes: [3]media.Plane{
				{Offset: 0, Stride: w, Width: w, Height: h},
				{Offset: w*h + w*h/4, Stride: w / 2, Width: w / 2, Height: h / 2},
				{Offset: w * h, Stride: w / 2, Width: w / 2, Height: h / 2},
			},
			depth: media.ColorDepth8,
		},
		{
			name:    "i420",
			formats: []media.PixelFormat{media.FormatI420},
			want:    media.FormatI420,
			planes: [3]media.Plane{
				{Offset: 0, Stride: w, Width: w, Height: h},
				{Offset: w * h, Stride: w / 2, Width: w / 2, Height: h / 2},
				{Offset: w*h + w*h/4, Stride: w / 2, Width: w / 2, Height: h / 2},
			},
			depth: media.ColorDepth8,
		},
		{
			name:    "p010",
			formats: []media.PixelFormat{media.FormatP010},
			want:    media.FormatP010,
			planes: [3]media.Plane{
				{Offset: 0, Stride: 2 * w, Width: w, Height: h},
				{Offset: 2 * w * h, Stride: 2 * w, Width: w / 2, Height: h / 2, Skip: 1},
				{Offset: 2*w*h + 2, Stride: 2 * w, Width: w / 2, Height: h / 2, Skip: 1},
			},
			depth: media.ColorDepth16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.transform.Formats = tt.formats
			m := readyManager(t, f, streamParams(media.CodecH264, w, h, media.HardwareCapability{}))

			if err := m.Input(context.Background(), sampleAt(0, 33)); err != nil {
				t.Fatalf("Input() error = %v", err)
			}
			frame, err := m.Output(context.Background())
			if err != nil {
				t.Fatalf("Output() error = %v", err)
			}
			defer frame.Release()
			buf := frame.Payload.(*media.PlanarBuffer)
			if buf.Format != tt.want {
				t.Errorf("format = %v, want %v", buf.Format, tt.want)
			}
			if buf.Planes != tt.planes {
				t.Errorf("planes = %+v\nwant %+v", buf.Planes, tt.planes)
			}
			if buf.ColorDepth != tt.depth {
				t.Errorf("depth = %d, want %d", buf.ColorDepth, tt.depth)
			}
		})
	}
}

func TestOutputHardwareTexture(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 1280, 720, hwCapability))

	if err := m.Input(context.Background(), sampleAt(0, 33)); err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	tex, ok := frame.Payload.(*media.TextureHandle)
	if !ok {
		t.Fatalf("payload = %T, want texture", frame.Payload)
	}
	if tex.BridgeID != "bridge-1" {
		t.Errorf("BridgeID = %q", tex.BridgeID)
	}
	frame.Release()
	if !tex.Freed() || f.transform.FreedUnits() != 1 {
		t.Error("releasing the texture should free the surface")
	}
}

func TestOutputWrapFailureDropsOnlyThatSample(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 1280, 720, hwCapability))
	f.bridge.FailWrap = true

	_ = m.Input(context.Background(), sampleAt(0, 33))
	_, err := m.Output(context.Background())
	if !errors.Is(err, media.ErrFrameAssembly) {
		t.Fatalf("Output() error = %v, want frame assembly", err)
	}
	if m.State() != StateReady {
		t.Errorf("State() = %v, want ready", m.State())
	}
	if f.transform.FreedUnits() != 1 {
		t.Error("surface of the dropped sample should be released")
	}

	f.bridge.FailWrap = false
	_ = m.Input(context.Background(), sampleAt(33, 33))
	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() after a dropped sample = %v", err)
	}
	frame.Release()
}

func TestInputAdoptsColorSpaceHint(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 320, 240, media.HardwareCapability{}))

	s := sampleAt(0, 33)
	s.Meta = &media.SampleMeta{ColorSpace: media.ColorSpaceBT709}
	_ = m.Input(context.Background(), s)
	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	defer frame.Release()
	if cs := frame.Payload.(*media.PlanarBuffer).ColorSpace; cs != media.ColorSpaceBT709 {
		t.Errorf("ColorSpace = %v, want bt709", cs)
	}
}

func TestVP9ZeroDurationUsesLastInput(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecVP9, 1280, 720, hwCapability))

	s := sampleAt(0, 33)
	s.Data = []byte{0x80, 0x00}
	s.Keyframe = true
	_ = m.Input(context.Background(), s)
	f.transform.OutputFunc = func() (*ports.DecodedUnit, error) {
		f.transform.OutputFunc = nil
		u := f.transform.NewUnit(sampleAt(0, 0))
		return u, nil
	}
	frame, err := m.Output(context.Background())
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	defer frame.Release()
	if frame.Duration != 33*time.Millisecond {
		t.Errorf("Duration = %v, want 33ms", frame.Duration)
	}
}

func TestVP9UnsupportedProfileFaults(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecVP9, 1280, 720, hwCapability))

	s := sampleAt(0, 33)
	s.Data = []byte{0xA0, 0x00}
	s.Keyframe = true
	if err := m.Input(context.Background(), s); !errors.Is(err, media.ErrFaulted) {
		t.Fatalf("Input() = %v, want faulted", err)
	}
	// The fault is sticky: a supported profile-0 keyframe is refused too.
	next := sampleAt(33, 33)
	next.Data = []byte{0x82, 0x49, 0x83, 0x42, 0x00}
	next.Keyframe = true
	if err := m.Input(context.Background(), next); !errors.Is(err, media.ErrFaulted) {
		t.Fatalf("Input() after fault = %v, want faulted", err)
	}
}

func TestDrainAndFlush(t *testing.T) {
	f := newFixture(t)
	m := readyManager(t, f, streamParams(media.CodecH264, 320, 240, media.HardwareCapability{}))

	for i := 0; i < 3; i++ {
		_ = m.Input(context.Background(), sampleAt(i*33, 33))
	}
	m.SetSeekThreshold(time.Hour)
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if f.transform.FreedUnits() != 3 {
		t.Errorf("flush freed %d units, want 3", f.transform.FreedUnits())
	}

	_ = m.Input(context.Background(), sampleAt(100, 33))
	frames, err := m.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Drain() returned %d frames, want 1 (seek threshold should be cleared by flush)", len(frames))
	}
	frames[0].Release()
	if !f.transform.Drained {
		t.Error("transform was not drained")
	}
}
