package summarizer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/remotevideo/pkg/mocks"
)

func sampleSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Source: SourceInfo{
			Path:        "clip.mp4",
			Codec:       "h264",
			Width:       1920,
			Height:      1080,
			FrameRate:   25,
			DurationMs:  4000,
			SampleCount: 100,
			TotalBytes:  1024 * 1024,
		},
		Decoder: DecoderInfo{
			Mode:         "remote",
			DeniedModern: "libva.so (2.10.0.0)",
		},
		Output: OutputInfo{
			FrameCount:  100,
			Keyframes:   4,
			Format:      "yv12",
			FirstMs:     0,
			LastMs:      3960,
			Snapshots:   10,
			ElapsedMs:   800,
			DecodeSpeed: 125,
		},
		Events: []EventStat{{Name: "hardware_fallback", Count: 1, Sum: 1}},
	}
}

func render(t *testing.T, f Formatter, s *Summary) string {
	t.Helper()
	data, err := f.Format(s)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return string(data)
}

func TestMarkdownFormatter_Format_Basic(t *testing.T) {
	result := render(t, NewMarkdownFormatter(), sampleSummary())

	checks := []string{
		"# Decode Summary",
		"| File | clip.mp4 |",
		"| Codec | h264 |",
		"1920x1080",
		"25.00 fps",
		"1.00 MB",
		"| Mode | remote |",
		"| Acceleration | Software |",
		"libva.so (2.10.0.0)",
		"| Frames | 100 |",
		"0 - 3960 ms",
		"125.0 fps",
		"| hardware_fallback | 1 | 1 |",
		"2024-01-15 10:30:00 UTC",
	}
	for _, want := range checks {
		if !strings.Contains(result, want) {
			t.Errorf("output missing %q\n%s", want, result)
		}
	}
	if strings.Contains(result, "Denylisted (legacy)") {
		t.Error("empty legacy denylist row rendered")
	}
	if strings.Contains(result, "## Errors") {
		t.Error("errors section rendered without errors")
	}
}

func TestMarkdownFormatter_Errors(t *testing.T) {
	s := sampleSummary()
	s.Errors = []string{"decoder faulted | retry"}
	result := render(t, NewMarkdownFormatter(), s)
	if !strings.Contains(result, "## Errors") || !strings.Contains(result, "- decoder faulted | retry") {
		t.Errorf("errors not rendered:\n%s", result)
	}
}

func TestMarkdownFormatter_WithTranslator(t *testing.T) {
	translator := func(key string) string {
		translations := map[string]string{
			"Decode Summary": "デコードサマリー",
			"Software":       "ソフトウェア",
		}
		if v, ok := translations[key]; ok {
			return v
		}
		return key
	}

	result := render(t, NewMarkdownFormatter(WithTranslator(translator)), sampleSummary())
	if !strings.Contains(result, "デコードサマリー") {
		t.Error("expected translated heading")
	}
	if !strings.Contains(result, "ソフトウェア") {
		t.Error("expected translated acceleration value")
	}
}

func TestMarkdownFormatter_WithVersion(t *testing.T) {
	result := render(t, NewMarkdownFormatter(WithVersion("v1.2.0")), sampleSummary())
	if !strings.Contains(result, "v1.2.0") {
		t.Error("expected output to contain version 'v1.2.0'")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1536 * 1024 * 1024, "1.50 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestWriter(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(FormatFunc(func(*Summary) ([]byte, error) { return []byte("report"), nil }), fs)
	if err := w.Write("out/summary.md", NewSummary()); err != nil {
		t.Fatal(err)
	}
	if data, ok := fs.File("out/summary.md"); !ok || string(data) != "report" {
		t.Errorf("written %q, %v", data, ok)
	}

	fs.WriteFileFunc = func(string, []byte) error { return errors.New("disk full") }
	if err := w.Write("x.md", NewSummary()); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Write error = %v", err)
	}

	failing := NewWriter(FormatFunc(func(*Summary) ([]byte, error) { return nil, errors.New("bad template") }), fs)
	if err := failing.Write("y.md", NewSummary()); err == nil || !strings.Contains(err.Error(), "bad template") {
		t.Errorf("Write error = %v", err)
	}
	if _, ok := fs.File("y.md"); ok {
		t.Error("report written despite format error")
	}
}

func TestJSONFormatter(t *testing.T) {
	result := render(t, JSONFormatter{}, sampleSummary())

	var decoded map[string]any
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, result)
	}
	source, ok := decoded["source"].(map[string]any)
	if !ok || source["codec"] != "h264" {
		t.Errorf("unexpected source section: %v", decoded["source"])
	}
	if _, ok := decoded["errors"]; ok {
		t.Error("empty errors should be omitted")
	}
}

func TestFormatterFor(t *testing.T) {
	tests := []struct {
		path     string
		wantJSON bool
	}{
		{"summary.md", false},
		{"summary.json", true},
		{"SUMMARY.JSON", true},
		{"summary", false},
	}
	for _, tt := range tests {
		_, isJSON := FormatterFor(tt.path).(JSONFormatter)
		if isJSON != tt.wantJSON {
			t.Errorf("FormatterFor(%q) JSON = %v, want %v", tt.path, isJSON, tt.wantJSON)
		}
	}
}
