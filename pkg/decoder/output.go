package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// Output pulls the next decoded frame. It returns ports.ErrNeedMoreInput
// when the transform wants another sample. Output type changes are
// renegotiated in place and null outputs are retried, both up to the
// configured limits, after which the decoder is Faulted. An error of kind
// media.KindFrameAssembly affects only the current unit.
func (m *Manager) Output(ctx context.Context) (*media.DecodedFrame, error) {
	if err := m.checkUsable("decoder.Output"); err != nil {
		return nil, err
	}

	typeChanges := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := m.transform.Output()
		switch {
		case errors.Is(err, ports.ErrStreamChange):
			if typeChanges >= m.limits.MaxTypeChanges {
				return nil, m.fault("output type changed more than %d times", m.limits.MaxTypeChanges)
			}
			typeChanges++
			m.stats.TypeChanges++
			if err := m.renegotiate(); err != nil {
				return nil, m.fault("renegotiate output type: %v", err)
			}
			continue
		case errors.Is(err, ports.ErrNeedMoreInput):
			return nil, err
		case err != nil:
			return nil, fmt.Errorf("decoder: transform output: %w", err)
		}

		if u == nil {
			m.stats.NullOutputs++
			m.log.Debug("Transform returned success without output (%d)", m.stats.NullOutputs)
			if m.stats.NullOutputs > m.limits.MaxNullOutputs {
				m.stats.GotExcessiveNull = true
				return nil, m.fault("%d outputs without a picture", m.stats.NullOutputs)
			}
			continue
		}
		if m.stats.NullOutputs > 0 && !m.stats.GotValidAfterNull {
			m.stats.GotValidAfterNull = true
			m.deps.Telemetry.RecordEvent(ports.EventNullOutputRecovered, 1)
			m.log.Info("Got a picture after %d null outputs", m.stats.NullOutputs)
		}

		if u.Time < 0 || u.Duration < 0 {
			u.Release()
			return nil, media.Errorf(media.KindFrameAssembly, "decoder.Output", "invalid timestamp %v/%v", u.Time, u.Duration)
		}
		if u.Duration == 0 && m.params.Config.Codec == media.CodecVP9 {
			u.Duration = m.lastDuration
		}

		if m.hasSeek {
			if u.Time+u.Duration < m.seek {
				m.log.Debug("Dropping frame %v+%v before seek threshold %v", u.Time, u.Duration, m.seek)
				u.Release()
				m.stats.Dropped++
				continue
			}
			m.hasSeek = false
		}

		frame, err := m.assemble(u)
		if err != nil {
			m.stats.Dropped++
			m.deps.Telemetry.RecordEvent(ports.EventFrameDropped, 1)
			return nil, err
		}
		m.stats.Frames++
		return frame, nil
	}
}

func (m *Manager) renegotiate() error {
	m.setState(StateRenegotiating)
	if err := m.negotiateOutput(); err != nil {
		return err
	}
	if m.useHW {
		if err := m.acc.ConfigureForSize(m.outType, m.effectiveColorSpace(), m.picture.Width, m.picture.Height); err != nil {
			return fmt.Errorf("configure accelerator: %w", err)
		}
	}
	m.setState(StateReady)
	return nil
}

func (m *Manager) assemble(u *ports.DecodedUnit) (*media.DecodedFrame, error) {
	frame := &media.DecodedFrame{
		Time:     u.Time,
		Duration: u.Duration,
		Timecode: u.Time,
		Keyframe: u.Keyframe,
		Offset:   m.lastOffset,
		Display:  m.displaySize(),
		Picture:  m.picture,
	}

	if m.useHW {
		if u.Surface == nil {
			u.Release()
			return nil, media.Errorf(media.KindFrameAssembly, "decoder.Output", "hardware output without a surface")
		}
		tex, err := m.deps.Bridge.WrapAsTexture(u.Surface)
		if err != nil {
			u.Release()
			return nil, media.Wrap(media.KindFrameAssembly, "decoder.Output", fmt.Errorf("wrap texture: %w", err))
		}
		frame.Payload = tex
		return frame, nil
	}

	buf, err := m.planarBuffer(u)
	if err != nil {
		u.Release()
		return nil, media.Wrap(media.KindFrameAssembly, "decoder.Output", err)
	}
	frame.Payload = buf
	return frame, nil
}

// planarBuffer describes u.Data without copying it. The unit is released
// together with the buffer.
func (m *Manager) planarBuffer(u *ports.DecodedUnit) (*media.PlanarBuffer, error) {
	format := m.outType.Format
	stride := m.stride
	ySize := stride * m.decodedHeight
	vSize := stride * m.decodedHeight / 4
	if len(u.Data) < ySize+2*vSize {
		return nil, fmt.Errorf("decoded buffer holds %d bytes, need %d", len(u.Data), ySize+2*vSize)
	}

	w, h := m.picture.Width, m.picture.Height
	cw, ch := (w+1)/2, (h+1)/2
	buf := &media.PlanarBuffer{
		Format:     format,
		ColorDepth: format.Depth(),
		ColorSpace: m.effectiveColorSpace(),
		Memory:     media.NewHeapMemory(u.Data, u.Release),
	}
	buf.Planes[0] = media.Plane{Offset: 0, Stride: stride, Width: w, Height: h}

	switch format.Layout() {
	case media.LayoutPlanar:
		half := stride / 2
		cb := media.Plane{Offset: ySize + vSize, Stride: half, Width: cw, Height: ch}
		cr := media.Plane{Offset: ySize, Stride: half, Width: cw, Height: ch}
		if format == media.FormatI420 {
			cb.Offset, cr.Offset = ySize, ySize+vSize
		}
		buf.Planes[1], buf.Planes[2] = cb, cr
	case media.LayoutSemiPlanar:
		bps := format.BytesPerSample()
		buf.Planes[1] = media.Plane{Offset: ySize, Stride: stride, Width: cw, Height: ch, Skip: 1}
		buf.Planes[2] = media.Plane{Offset: ySize + bps, Stride: stride, Width: cw, Height: ch, Skip: 1}
	}
	return buf, nil
}

func (m *Manager) displaySize() media.Size {
	d := m.params.Config.DisplaySize
	if d.Width > 0 && d.Height > 0 {
		return d
	}
	return m.picture.Size()
}
