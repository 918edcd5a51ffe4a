// Package smarttransform selects a decode backend for each codec and
// creates transforms for it.
package smarttransform

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/remotevideo/pkg/adapters/ffmpegtransform"
	"github.com/user/remotevideo/pkg/adapters/logger"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// Backend represents the decoding backend used.
type Backend string

const (
	// BackendFFmpeg represents FFmpeg-based software decoding.
	BackendFFmpeg Backend = "ffmpeg"
)

// Info contains information about the selected backend.
type Info struct {
	Codec   media.Codec
	Backend Backend
	// Hardware is true when the caller asked for hardware decoding. No
	// backend here can honor it, so the transform reports itself as not
	// hardware aware and the decoder falls back.
	Hardware bool
}

// Options configures backend selection.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	Logger     ports.Logger
}

var (
	// ErrUnsupportedCodec is returned when the codec is not supported.
	ErrUnsupportedCodec = errors.New("smarttransform: unsupported codec")
	// ErrNoBackendAvailable is returned when no backend can decode the codec.
	ErrNoBackendAvailable = errors.New("smarttransform: no backend available")
)

// Factory implements ports.TransformFactory.
type Factory struct {
	opts Options
	log  ports.Logger

	mu      sync.Mutex
	created []Info
}

var _ ports.TransformFactory = (*Factory)(nil)

// New returns a factory.
func New(opts Options) *Factory {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	return &Factory{opts: opts, log: log.WithComponent("transform")}
}

// Available reports whether any backend can be used.
func (f *Factory) Available() bool {
	_, err := ffmpegtransform.FindFFmpeg(f.opts.FFmpegPath)
	return err == nil
}

// Select picks the backend for codec without creating anything.
func (f *Factory) Select(codec media.Codec, attrs ports.TransformAttributes) (Info, error) {
	switch codec {
	case media.CodecH264, media.CodecVP8, media.CodecVP9, media.CodecAV1:
	default:
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
	if !f.Available() {
		return Info{}, fmt.Errorf("%w: %s", ErrNoBackendAvailable, codec)
	}
	return Info{Codec: codec, Backend: BackendFFmpeg, Hardware: attrs.Hardware}, nil
}

// CreateTransform creates a transform on the selected backend.
func (f *Factory) CreateTransform(codec media.Codec, attrs ports.TransformAttributes) (ports.Transform, error) {
	info, err := f.Select(codec, attrs)
	if err != nil {
		return nil, err
	}
	if info.Hardware {
		f.log.Debug("No hardware backend for %s, using %s", codec, info.Backend)
	}
	t, err := ffmpegtransform.New(codec, attrs, ffmpegtransform.Options{
		FFmpegPath: f.opts.FFmpegPath,
		Logger:     f.log,
	})
	if err != nil {
		if errors.Is(err, ffmpegtransform.ErrFFmpegNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNoBackendAvailable, err)
		}
		return nil, err
	}

	f.mu.Lock()
	f.created = append(f.created, info)
	f.mu.Unlock()
	return t, nil
}

// Created returns the selections made so far, in order.
func (f *Factory) Created() []Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Info(nil), f.created...)
}
