package mp4source

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/remotevideo/pkg/adapters/ffmpegtransform"
	"github.com/user/remotevideo/pkg/media"
)

func TestAvccToAnnexB(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"empty", nil, []byte{}},
		{"one unit", []byte{0, 0, 0, 2, 0x65, 0x88}, []byte{0, 0, 0, 1, 0x65, 0x88}},
		{"two units", []byte{0, 0, 0, 1, 0x09, 0, 0, 0, 2, 0x41, 0x9a}, []byte{0, 0, 0, 1, 0x09, 0, 0, 0, 1, 0x41, 0x9a}},
		{"truncated tail", []byte{0, 0, 0, 1, 0x09, 0, 0, 0, 9, 0x41}, []byte{0, 0, 0, 1, 0x09}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := avccToAnnexB(tt.in); !bytes.Equal(got, tt.want) {
				t.Errorf("avccToAnnexB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleEntryCodec(t *testing.T) {
	tests := map[string]media.Codec{
		"avc1": media.CodecH264,
		"avc3": media.CodecH264,
		"vp08": media.CodecVP8,
		"vp09": media.CodecVP9,
		"av01": media.CodecAV1,
		"hvc1": media.CodecUnknown,
	}
	for box, want := range tests {
		if got := sampleEntryCodec(box); got != want {
			t.Errorf("sampleEntryCodec(%q) = %s, want %s", box, got, want)
		}
	}
}

func TestTrackSample(t *testing.T) {
	tr := &track{
		timescale: 90000,
		codec:     media.CodecH264,
		spsPPS:    annexBParameterSets([][]byte{{0x67, 1}}, [][]byte{{0x68, 2}}),
		meta:      &media.SampleMeta{ColorSpace: media.ColorSpaceBT709},
	}
	avcc := []byte{0, 0, 0, 1, 0x65}

	key := tr.sample(avcc, 9000, 3000, 3000, true, 48)
	wantKey := []byte{0, 0, 0, 1, 0x67, 1, 0, 0, 0, 1, 0x68, 2, 0, 0, 0, 1, 0x65}
	if !bytes.Equal(key.Data, wantKey) {
		t.Errorf("keyframe data = %v", key.Data)
	}
	if key.Time != 133333333*time.Nanosecond || key.DecodeTime != 100*time.Millisecond {
		t.Errorf("keyframe time %v decode %v", key.Time, key.DecodeTime)
	}
	if key.Duration != 33333333*time.Nanosecond {
		t.Errorf("keyframe duration %v", key.Duration)
	}
	if key.Meta == nil || key.Meta.ColorSpace != media.ColorSpaceBT709 || key.Offset != 48 {
		t.Errorf("keyframe meta %+v offset %d", key.Meta, key.Offset)
	}

	delta := tr.sample(avcc, 12000, 3000, 0, false, 0)
	if !bytes.Equal(delta.Data, []byte{0, 0, 0, 1, 0x65}) || delta.Meta != nil {
		t.Errorf("delta sample = %v meta %+v", delta.Data, delta.Meta)
	}

	vp9 := &track{timescale: 1000, codec: media.CodecVP9}
	raw := []byte{0x82, 0x49, 0x83}
	if s := vp9.sample(raw, 0, 40, 0, true, 0); !bytes.Equal(s.Data, raw) {
		t.Errorf("vp9 sample rewritten: %v", s.Data)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not an mp4 file at all"))); err == nil {
		t.Error("Read() accepted garbage")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("Open() of a missing file succeeded")
	}
}

func TestReadEncodedClip(t *testing.T) {
	path, err := ffmpegtransform.FindFFmpeg("")
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	for _, tc := range []struct {
		name  string
		flags string
	}{
		{"progressive", "+faststart"},
		{"fragmented", "frag_keyframe+empty_moov+default_base_moof"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "clip.mp4")
			cmd := exec.Command(path,
				"-hide_banner", "-loglevel", "error",
				"-f", "lavfi", "-i", "testsrc=size=96x64:rate=25",
				"-frames:v", "10",
				"-c:v", "libx264", "-g", "5", "-bf", "0", "-pix_fmt", "yuv420p",
				"-color_primaries", "bt709", "-color_trc", "bt709", "-colorspace", "bt709",
				"-movflags", tc.flags,
				out,
			)
			if err := cmd.Run(); err != nil {
				t.Skipf("cannot encode test clip: %v", err)
			}

			src, err := Open(out)
			if err != nil {
				t.Fatal(err)
			}
			if src.Config.Codec != media.CodecH264 {
				t.Errorf("codec = %s", src.Config.Codec)
			}
			if src.Config.CodedSize != (media.Size{Width: 96, Height: 64}) {
				t.Errorf("coded size = %+v", src.Config.CodedSize)
			}
			if len(src.Samples) != 10 {
				t.Fatalf("read %d samples, want 10", len(src.Samples))
			}
			if !src.Samples[0].Keyframe || !bytes.HasPrefix(src.Samples[0].Data, []byte{0, 0, 0, 1, 0x67}) {
				t.Error("first sample is not a keyframe starting with an SPS")
			}
			if src.Config.ColorSpace != media.ColorSpaceBT709 {
				t.Errorf("color space = %s", src.Config.ColorSpace)
			}
			if src.FrameRate < 24 || src.FrameRate > 26 {
				t.Errorf("frame rate = %v", src.FrameRate)
			}
		})
	}
}
