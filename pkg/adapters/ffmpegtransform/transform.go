package ffmpegtransform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/user/remotevideo/pkg/adapters/logger"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// ErrNotConfigured is returned when Input runs before the input and output
// types are set.
var ErrNotConfigured = errors.New("ffmpegtransform: input or output type not set")

const stderrLimit = 4096

// Options configures a Transform.
type Options struct {
	// FFmpegPath overrides ffmpeg discovery.
	FFmpegPath string
	Logger     ports.Logger
}

// Transform decodes through an ffmpeg child process. The process starts on
// the first Input and restarts after Drain or Flush.
type Transform struct {
	path  string
	log   ports.Logger
	codec media.Codec
	attrs ports.TransformAttributes

	mu        sync.Mutex
	in        ports.InputType
	inSet     bool
	format    media.PixelFormat
	ffFormat  string
	size      media.Size
	frameSize int

	proc     *process
	ready    [][]byte
	pending  ptsQueue
	lastInfo sampleInfo
	failure  error
}

// process is one ffmpeg invocation.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *limitedBuffer
	done   chan struct{}
	err    error
}

var _ ports.Transform = (*Transform)(nil)

// New returns a software transform for codec.
func New(codec media.Codec, attrs ports.TransformAttributes, opts Options) (*Transform, error) {
	if _, err := demuxer(codec); err != nil {
		return nil, err
	}
	path, err := FindFFmpeg(opts.FFmpegPath)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	return &Transform{
		path:  path,
		log:   log.WithComponent("ffmpeg"),
		codec: codec,
		attrs: attrs,
	}, nil
}

// SetInputType records the compressed stream description.
func (t *Transform) SetInputType(in ports.InputType) error {
	if in.Codec != t.codec {
		return fmt.Errorf("%w: transform created for %s, got %s", ErrUnsupportedCodec, t.codec, in.Codec)
	}
	if in.CodedSize.Width <= 0 || in.CodedSize.Height <= 0 {
		return fmt.Errorf("ffmpegtransform: invalid coded size %dx%d", in.CodedSize.Width, in.CodedSize.Height)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in = in
	t.inSet = true
	// ffmpeg's 4:2:0 output needs even dimensions.
	t.size = media.Size{
		Width:  (in.CodedSize.Width + 1) &^ 1,
		Height: (in.CodedSize.Height + 1) &^ 1,
	}
	t.updateFrameSize()
	return nil
}

// SetOutputFormat selects the raw picture format.
func (t *Transform) SetOutputFormat(f media.PixelFormat) error {
	name, ok := pixFmt(f)
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrFormatNotSupported, f)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.format = f
	t.ffFormat = name
	t.updateFrameSize()
	return nil
}

func (t *Transform) updateFrameSize() {
	bps := t.format.BytesPerSample()
	t.frameSize = t.size.Width * t.size.Height * bps * 3 / 2
}

// OutputType reports the negotiated format. Pictures are tightly packed.
func (t *Transform) OutputType() (ports.OutputType, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inSet || t.ffFormat == "" {
		return ports.OutputType{}, ErrNotConfigured
	}
	return ports.OutputType{
		Format: t.format,
		Size:   t.size,
		Stride: t.size.Width * t.format.BytesPerSample(),
	}, nil
}

// HardwareAware is always false.
func (t *Transform) HardwareAware() bool { return false }

// SetAccelerator always fails.
func (t *Transform) SetAccelerator(ports.Accelerator) error { return ErrNoHardware }

// Input feeds one compressed sample to ffmpeg.
func (t *Transform) Input(s *media.CompressedSample) error {
	t.mu.Lock()
	if t.failure != nil {
		err := t.failure
		t.mu.Unlock()
		return err
	}
	if !t.inSet || t.ffFormat == "" {
		t.mu.Unlock()
		return ErrNotConfigured
	}
	if t.proc == nil {
		p, err := t.start()
		if err != nil {
			t.mu.Unlock()
			return err
		}
		t.proc = p
	}
	p := t.proc
	t.pending.push(sampleInfo{time: s.Time, duration: s.Duration, keyframe: s.Keyframe})
	t.mu.Unlock()

	data := s.Data
	if t.codec != media.CodecH264 {
		data = ivfFrame(s.Data, s.Time)
	}
	// The reader appends under t.mu, so the write must not hold it.
	if _, err := p.stdin.Write(data); err != nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.failure = fmt.Errorf("ffmpegtransform: write: %w: %s", err, p.stderr.String())
		return t.failure
	}
	return nil
}

// start launches ffmpeg. Called with t.mu held.
func (t *Transform) start() (*process, error) {
	format, err := demuxer(t.codec)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(t.path, t.args(format)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpegtransform: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpegtransform: stdout pipe: %w", err)
	}
	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &limitedBuffer{limit: stderrLimit},
		done:   make(chan struct{}),
	}
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpegtransform: start ffmpeg: %w", err)
	}
	t.log.Debug("Started ffmpeg for %s %dx%d as %s", t.codec, t.size.Width, t.size.Height, t.ffFormat)

	if t.codec != media.CodecH264 {
		if err := writeIVFHeader(stdin, t.codec, t.size); err != nil {
			p.kill()
			return nil, fmt.Errorf("ffmpegtransform: write ivf header: %w", err)
		}
	} else if hasStartCode(t.in.ExtraData) {
		if _, err := stdin.Write(t.in.ExtraData); err != nil {
			p.kill()
			return nil, fmt.Errorf("ffmpegtransform: write parameter sets: %w", err)
		}
	}

	go t.readLoop(p, stdout, t.frameSize, t.format == media.FormatYV12)
	return p, nil
}

// readLoop reads whole pictures until ffmpeg closes stdout.
func (t *Transform) readLoop(p *process, r io.Reader, size int, swapChroma bool) {
	defer close(p.done)
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) {
				p.err = err
			}
			return
		}
		if swapChroma {
			swapPlanes(buf, size*2/3)
		}
		t.mu.Lock()
		if t.proc == p {
			t.ready = append(t.ready, buf)
		}
		t.mu.Unlock()
	}
}

// Output returns the next picture ffmpeg has produced.
func (t *Transform) Output() (*ports.DecodedUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ready) == 0 {
		if t.failure != nil {
			return nil, t.failure
		}
		return nil, ports.ErrNeedMoreInput
	}
	data := t.ready[0]
	t.ready[0] = nil
	t.ready = t.ready[1:]

	info, ok := t.pending.pop()
	if !ok {
		info = sampleInfo{time: t.lastInfo.time + t.lastInfo.duration, duration: t.lastInfo.duration}
	}
	t.lastInfo = info
	return &ports.DecodedUnit{
		Time:     info.time,
		Duration: info.duration,
		Keyframe: info.keyframe,
		Data:     data,
	}, nil
}

// Drain closes ffmpeg's input and waits for every buffered picture.
func (t *Transform) Drain() error {
	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p == nil {
		return nil
	}

	_ = p.stdin.Close()
	<-p.done
	waitErr := p.cmd.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.proc = nil
	t.pending = t.pending[:0]
	if p.err != nil {
		t.failure = fmt.Errorf("ffmpegtransform: read output: %w", p.err)
		return t.failure
	}
	if waitErr != nil {
		t.failure = fmt.Errorf("ffmpegtransform: ffmpeg exited: %w: %s", waitErr, p.stderr.String())
		return t.failure
	}
	return nil
}

// Flush discards all state. The next Input starts a fresh process.
func (t *Transform) Flush() error {
	t.mu.Lock()
	p := t.proc
	t.proc = nil
	t.ready = nil
	t.pending = t.pending[:0]
	t.failure = nil
	t.mu.Unlock()
	if p != nil {
		p.kill()
	}
	return nil
}

// Close stops ffmpeg.
func (t *Transform) Close() error {
	return t.Flush()
}

func (p *process) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
	_ = p.cmd.Wait()
}

func hasStartCode(b []byte) bool {
	return bytes.HasPrefix(b, []byte{0, 0, 1}) || bytes.HasPrefix(b, []byte{0, 0, 0, 1})
}

// swapPlanes exchanges the two chroma planes of a tightly packed 4:2:0
// picture whose luma plane is ySize bytes.
func swapPlanes(buf []byte, ySize int) {
	q := ySize / 4
	u := buf[ySize : ySize+q]
	v := buf[ySize+q : ySize+2*q]
	tmp := make([]byte, q)
	copy(tmp, u)
	copy(u, v)
	copy(v, tmp)
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
