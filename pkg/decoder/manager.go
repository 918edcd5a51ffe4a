package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/user/remotevideo/pkg/hwaccel"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

var (
	hardwareFormats = []media.PixelFormat{media.FormatNV12, media.FormatP010, media.FormatP016}
	softwareFormats = []media.PixelFormat{media.FormatYV12, media.FormatI420, media.FormatP010, media.FormatP016}
)

// Params describe the decoder to build.
type Params struct {
	Config     media.DecoderConfig
	FrameRate  float64
	Options    media.Options
	Capability media.HardwareCapability
}

// Deps are the collaborators of a Manager. Bridge may be nil, which rules
// out hardware decoding.
type Deps struct {
	Engine    *hwaccel.Engine
	Factory   ports.TransformFactory
	Bridge    ports.GPUBridge
	Telemetry ports.Telemetry
	Logger    ports.Logger
	Limits    Limits
}

// Manager is the decoder backend state machine. Apart from State, its
// methods must be called from a single goroutine, normally the decoder's
// decode queue.
type Manager struct {
	params Params
	deps   Deps
	limits Limits
	log    ports.Logger

	state atomic.Int32

	transform   ports.Transform
	acc         ports.Accelerator
	hwRequested bool
	useHW       bool
	negotiation hwaccel.Result
	fallback    string

	outType       ports.OutputType
	stride        int
	decodedHeight int
	picture       media.Rect
	colorSpace    media.ColorSpace

	lastDuration time.Duration
	lastOffset   int64
	seek         time.Duration
	hasSeek      bool

	stats    Stats
	recorded bool
}

// New creates an uninitialized Manager.
func New(params Params, deps Deps) *Manager {
	limits := deps.Limits
	if limits.MaxTypeChanges <= 0 {
		limits.MaxTypeChanges = DefaultMaxTypeChanges
	}
	if limits.MaxNullOutputs <= 0 {
		limits.MaxNullOutputs = DefaultMaxNullOutputs
	}
	m := &Manager{
		params: params,
		deps:   deps,
		limits: limits,
		log:    deps.Logger.WithComponent("decoder"),
	}
	m.state.Store(int32(StateUninitialized))
	return m
}

// State returns the current state. Safe from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.log.Debug("State %s -> %s", prev, s)
	}
}

// Stats returns the session counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Negotiation returns the hardware negotiation outcome without the
// accelerator.
func (m *Manager) Negotiation() hwaccel.Result {
	r := m.negotiation
	r.Accelerator = nil
	return r
}

// IsHardwareAccelerated reports whether frames come from hardware. When not,
// reason explains why hardware was not used.
func (m *Manager) IsHardwareAccelerated() (bool, string) {
	return m.useHW, m.fallback
}

// Description names the active decode path.
func (m *Manager) Description() string {
	if m.useHW && m.acc != nil {
		return fmt.Sprintf("%s decoder (%s)", m.params.Config.Codec, m.acc.Description())
	}
	return fmt.Sprintf("%s decoder (software)", m.params.Config.Codec)
}

// Init validates the stream, negotiates hardware and configures the
// transform. Failures are fatal: the decoder cannot be used afterwards.
func (m *Manager) Init(ctx context.Context) error {
	if s := m.State(); s != StateUninitialized {
		return fmt.Errorf("decoder: init in state %s", s)
	}
	cfg := m.params.Config
	if cfg.Codec == media.CodecUnknown {
		m.setState(StateFaulted)
		return media.Errorf(media.KindFatalConfig, "decoder.Init", "unsupported codec %q", cfg.MimeType)
	}
	m.picture = cfg.PictureRect()
	m.colorSpace = cfg.ColorSpace

	if err := m.validateResolution(ctx); err != nil {
		m.setState(StateFaulted)
		return err
	}

	m.setState(StateNegotiatingHardware)
	m.hwRequested = m.hardwareRequested()
	if err := m.initInternal(ctx); err != nil {
		m.teardown(ctx)
		m.setState(StateFaulted)
		return err
	}
	m.setState(StateReady)
	m.log.Info("Initialized %s for %dx%d", m.Description(), m.picture.Width, m.picture.Height)
	return nil
}

func (m *Manager) validateResolution(ctx context.Context) error {
	cfg := m.params.Config
	area := m.picture.Size().Area()
	if area <= 0 {
		return media.Errorf(media.KindFatalConfig, "decoder.Init", "invalid picture size %dx%d", m.picture.Width, m.picture.Height)
	}
	if cfg.Codec != media.CodecH264 || m.limits.AllowUnsupportedResolutions {
		return nil
	}
	limit, err := m.deps.Engine.MaxH264Pixels(ctx)
	if err != nil {
		return media.Wrap(media.KindFatalInit, "decoder.Init", err)
	}
	if area > limit {
		return media.Errorf(media.KindFatalConfig, "decoder.Init", "resolution %dx%d exceeds platform limit of %d pixels", m.picture.Width, m.picture.Height, limit)
	}
	return nil
}

func (m *Manager) hardwareRequested() bool {
	cfg := m.params.Config
	if !cfg.HardwareAllowed(m.params.Options) {
		return false
	}
	if cfg.Codec == media.CodecH264 && (m.picture.Width <= m.limits.MinHardwareWidth || m.picture.Height <= m.limits.MinHardwareHeight) {
		return false
	}
	return true
}

func (m *Manager) initInternal(ctx context.Context) error {
	cfg := m.params.Config

	var acc ports.Accelerator
	var reason string
	if m.hwRequested {
		res, err := m.deps.Engine.TryAcquire(ctx, m.params.Capability, hwaccel.Stream{
			Codec:     cfg.Codec,
			Picture:   m.picture,
			FrameRate: m.params.FrameRate,
		})
		if err != nil {
			if ctx.Err() != nil {
				return media.Wrap(media.KindFatalInit, "decoder.Init", err)
			}
			reason = err.Error()
		} else {
			m.negotiation = res
			acc, reason = res.Accelerator, res.FailureReason
		}
		if acc != nil && m.deps.Bridge == nil {
			reason = "no GPU bridge"
			_ = m.deps.Engine.Release(context.WithoutCancel(ctx), acc)
			acc = nil
		}
	}

	t, err := m.deps.Factory.CreateTransform(cfg.Codec, ports.TransformAttributes{
		Hardware:   acc != nil,
		LowLatency: cfg.WantsLowLatency(m.params.Options),
	})
	if err != nil {
		_ = m.deps.Engine.Release(context.WithoutCancel(ctx), acc)
		return media.Wrap(media.KindFatalInit, "decoder.Init", fmt.Errorf("create transform: %w", err))
	}

	useHW := false
	if acc != nil {
		if !t.HardwareAware() {
			reason = "transform is not hardware aware"
		} else if err := t.SetAccelerator(acc); err != nil {
			reason = fmt.Sprintf("attach %s: %v", acc.Description(), err)
		} else {
			useHW = true
		}
	}

	if !useHW {
		if acc != nil {
			_ = m.deps.Engine.Release(context.WithoutCancel(ctx), acc)
			acc = nil
		}
		if m.limits.hardwareOnly(cfg.Codec) {
			_ = t.Close()
			if reason == "" {
				reason = m.fallback
			}
			if reason == "" {
				reason = "hardware not requested"
			}
			return media.Errorf(media.KindFatalInit, "decoder.Init", "%s requires hardware decoding: %s", cfg.Codec, reason)
		}
		if m.hwRequested {
			m.fallback = reason
			m.deps.Telemetry.RecordEvent(ports.EventHardwareFallback, 1)
			m.log.Warn("Falling back to software decoding: %s", reason)
		}
	}
	m.transform, m.acc, m.useHW = t, acc, useHW

	in := ports.InputType{
		Codec:      cfg.Codec,
		CodedSize:  cfg.CodedSize,
		Picture:    m.picture,
		FrameRate:  m.params.FrameRate,
		LowLatency: cfg.WantsLowLatency(m.params.Options),
		ExtraData:  cfg.ExtraData,
	}
	if err := t.SetInputType(in); err != nil {
		return media.Wrap(media.KindFatalInit, "decoder.Init", fmt.Errorf("set input type: %w", err))
	}
	if err := m.negotiateOutput(); err != nil {
		return media.Wrap(media.KindFatalInit, "decoder.Init", err)
	}

	if m.useHW && !m.deps.Engine.SupportsConfig(ctx, m.acc, m.outType, m.params.FrameRate) {
		m.log.Info("%s cannot decode %s output, retrying in software", m.acc.Description(), m.outType.Format)
		m.hwRequested = false
		m.fallback = "accelerator does not support the stream configuration"
		m.closeTransform(ctx)
		if !m.limits.hardwareOnly(cfg.Codec) {
			m.deps.Telemetry.RecordEvent(ports.EventHardwareFallback, 1)
		}
		return m.initInternal(ctx)
	}

	if m.useHW {
		if err := m.acc.ConfigureForSize(m.outType, m.effectiveColorSpace(), m.picture.Width, m.picture.Height); err != nil {
			return media.Wrap(media.KindFatalInit, "decoder.Init", fmt.Errorf("configure accelerator: %w", err))
		}
	}
	return nil
}

// negotiateOutput selects the first output format the transform accepts.
func (m *Manager) negotiateOutput() error {
	formats := softwareFormats
	if m.useHW {
		formats = hardwareFormats
	}
	var lastErr error
	for _, f := range formats {
		if err := m.transform.SetOutputFormat(f); err != nil {
			lastErr = err
			continue
		}
		ot, err := m.transform.OutputType()
		if err != nil {
			return fmt.Errorf("get output type: %w", err)
		}
		return m.applyOutputType(ot)
	}
	return fmt.Errorf("no acceptable output format: %w", lastErr)
}

func (m *Manager) applyOutputType(ot ports.OutputType) error {
	if ot.Size.Width <= 0 || ot.Size.Height <= 0 {
		coded := m.params.Config.CodedSize
		if coded.Width <= 0 || coded.Height <= 0 {
			coded = m.picture.Size()
		}
		ot.Size = media.Size{Width: coded.Width, Height: align16(coded.Height)}
	}
	if !m.useHW && (ot.Size.Width > MaxVideoWidth || ot.Size.Height > MaxVideoHeight) {
		return fmt.Errorf("decoded size %dx%d too large", ot.Size.Width, ot.Size.Height)
	}
	m.stride = ot.Stride
	if m.stride <= 0 {
		m.stride = ot.Size.Width * ot.Format.BytesPerSample()
	}
	m.decodedHeight = ot.Size.Height
	m.outType = ot
	m.log.Debug("Output type %s %dx%d stride %d", ot.Format, ot.Size.Width, ot.Size.Height, m.stride)
	return nil
}

func (m *Manager) effectiveColorSpace() media.ColorSpace {
	if m.colorSpace == media.ColorSpaceUnknown {
		return media.ColorSpaceBT601
	}
	return m.colorSpace
}

// Input forwards one sample to the transform.
func (m *Manager) Input(ctx context.Context, sample *media.CompressedSample) error {
	if err := m.checkUsable("decoder.Input"); err != nil {
		return err
	}
	if sample == nil || len(sample.Data) == 0 {
		return errors.New("decoder: empty sample")
	}
	cfg := m.params.Config
	if cfg.Codec == media.CodecVP9 && sample.Keyframe {
		profile, err := media.VP9Profile(sample.Data)
		if err != nil {
			return fmt.Errorf("decoder: %w", err)
		}
		if !media.VP9ProfileSupported(profile) {
			return m.fault("vp9 profile %d not supported", profile)
		}
	}
	if m.colorSpace == media.ColorSpaceUnknown && sample.Meta != nil && sample.Meta.ColorSpace != media.ColorSpaceUnknown {
		m.colorSpace = sample.Meta.ColorSpace
		m.log.Debug("Adopted color space %s from sample", m.colorSpace)
	}

	m.lastDuration = sample.Duration
	m.lastOffset = sample.Offset
	m.stats.Inputs++
	m.stats.LastDuration = sample.Duration
	if err := m.transform.Input(sample); err != nil {
		return fmt.Errorf("decoder: transform input: %w", err)
	}
	return nil
}

// SetSeekThreshold drops frames ending before t until one reaches it.
func (m *Manager) SetSeekThreshold(t time.Duration) {
	m.seek = t
	m.hasSeek = true
}

// ClearSeekThreshold cancels a pending seek threshold.
func (m *Manager) ClearSeekThreshold() {
	m.hasSeek = false
}

// Flush discards everything buffered in the transform.
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.checkUsable("decoder.Flush"); err != nil {
		return err
	}
	m.hasSeek = false
	if err := m.transform.Flush(); err != nil {
		return fmt.Errorf("decoder: flush: %w", err)
	}
	return nil
}

// Drain signals end of stream and returns every frame still buffered.
// Frames that fail to assemble are skipped.
func (m *Manager) Drain(ctx context.Context) ([]*media.DecodedFrame, error) {
	if err := m.checkUsable("decoder.Drain"); err != nil {
		return nil, err
	}
	if err := m.transform.Drain(); err != nil {
		return nil, fmt.Errorf("decoder: drain: %w", err)
	}
	var frames []*media.DecodedFrame
	for {
		f, err := m.Output(ctx)
		switch {
		case err == nil:
			frames = append(frames, f)
		case errors.Is(err, ports.ErrNeedMoreInput):
			return frames, nil
		case errors.Is(err, media.ErrFrameAssembly):
			m.log.Warn("Dropping frame while draining: %v", err)
		default:
			return frames, err
		}
	}
}

// Shutdown releases the transform and the accelerator. The accelerator is
// closed on the control queue; Shutdown waits for that to finish.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.State() == StateShutDown {
		return
	}
	m.teardown(ctx)
	if !m.recorded {
		m.recorded = true
		m.deps.Telemetry.RecordEvent(ports.EventNullOutputSamples, m.stats.NullBucket())
	}
	m.setState(StateShutDown)
}

func (m *Manager) teardown(ctx context.Context) {
	m.closeTransform(ctx)
	m.useHW = false
}

func (m *Manager) closeTransform(ctx context.Context) {
	if m.transform != nil {
		if err := m.transform.Close(); err != nil {
			m.log.Warn("Closing transform: %v", err)
		}
		m.transform = nil
	}
	if m.acc != nil {
		if err := m.deps.Engine.Release(context.WithoutCancel(ctx), m.acc); err != nil {
			m.log.Warn("Releasing accelerator: %v", err)
		}
		m.acc = nil
	}
}

func (m *Manager) checkUsable(op string) error {
	switch s := m.State(); s {
	case StateReady:
		return nil
	case StateFaulted:
		return media.Errorf(media.KindFaulted, op, "decoder faulted")
	case StateShutDown:
		return media.Errorf(media.KindShutDown, op, "decoder shut down")
	default:
		return fmt.Errorf("%s: decoder not ready (%s)", op, s)
	}
}

func (m *Manager) fault(format string, args ...interface{}) error {
	m.setState(StateFaulted)
	err := media.Errorf(media.KindFaulted, "decoder", format, args...)
	m.log.Error("Decoder faulted: %v", err)
	return err
}

func align16(n int) int {
	return (n + 15) &^ 15
}
