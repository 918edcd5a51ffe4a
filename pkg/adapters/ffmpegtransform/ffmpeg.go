// Package ffmpegtransform implements ports.Transform with an external
// ffmpeg process. Compressed samples are streamed to its stdin and raw
// pictures are read back from its stdout. H.264 samples must be Annex B.
// VP8, VP9 and AV1 samples are wrapped in IVF.
package ffmpegtransform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/user/remotevideo/pkg/media"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg binary can be located.
	ErrFFmpegNotFound = errors.New("ffmpegtransform: ffmpeg not found")
	// ErrNoHardware is returned by SetAccelerator.
	ErrNoHardware = errors.New("ffmpegtransform: hardware acceleration not supported")
	// ErrUnsupportedCodec is returned for codecs ffmpeg is not fed here.
	ErrUnsupportedCodec = errors.New("ffmpegtransform: unsupported codec")
)

// FindFFmpeg locates ffmpeg. Priority: 1) custom, 2) FFMPEG_PATH env,
// 3) PATH, 4) common locations.
func FindFFmpeg(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{"/opt/homebrew/bin/ffmpeg", "/usr/local/bin/ffmpeg"}
	default:
		commonPaths = []string{"/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg", "/snap/bin/ffmpeg"}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrFFmpegNotFound
}

// pixFmt maps an output format to ffmpeg's name for it. YV12 is produced
// as yuv420p with the chroma planes swapped afterwards.
func pixFmt(f media.PixelFormat) (string, bool) {
	switch f {
	case media.FormatYV12, media.FormatI420:
		return "yuv420p", true
	case media.FormatNV12:
		return "nv12", true
	case media.FormatP010:
		return "p010le", true
	case media.FormatP016:
		return "p016le", true
	}
	return "", false
}

// demuxer returns the ffmpeg input format for codec.
func demuxer(c media.Codec) (string, error) {
	switch c {
	case media.CodecH264:
		return "h264", nil
	case media.CodecVP8, media.CodecVP9, media.CodecAV1:
		return "ivf", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, c)
}

func (t *Transform) args(format string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if t.in.LowLatency || t.attrs.LowLatency {
		args = append(args, "-flags", "low_delay", "-fflags", "nobuffer")
	}
	if t.attrs.Threads > 0 {
		args = append(args, "-threads", fmt.Sprint(t.attrs.Threads))
	}
	args = append(args,
		"-f", format,
		"-i", "pipe:0",
		"-f", "rawvideo",
		"-pix_fmt", t.ffFormat,
		"-s", fmt.Sprintf("%dx%d", t.size.Width, t.size.Height),
		"pipe:1",
	)
	return args
}
