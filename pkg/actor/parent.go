package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/taskqueue"
	"github.com/user/remotevideo/pkg/transfer"
)

// Parent owns one decoder.Manager. Decoding happens on its own queue and
// every outgoing message goes through the manager queue.
type Parent struct {
	mgr      *ManagerParent
	id       uint64
	queue    *taskqueue.Queue
	log      ports.Logger
	textures *transfer.TextureRegistry

	destroyed atomic.Bool
	failed    bool // decode queue only

	dec *decoder.Manager // decode queue only
}

func newParent(mgr *ManagerParent, id uint64) *Parent {
	return &Parent{
		mgr:      mgr,
		id:       id,
		queue:    taskqueue.New(fmt.Sprintf("decoder-%d", id)),
		log:      mgr.log.WithComponent(fmt.Sprintf("parent-%d", id)),
		textures: transfer.NewTextureRegistry(),
	}
}

func (p *Parent) construct(params decoder.Params) {
	p.dispatch(func(ctx context.Context) {
		p.dec = decoder.New(params, p.mgr.deps)
		err := p.dec.Init(ctx)
		neg := p.dec.Negotiation()
		reply := &ConstructReply{
			Success:      err == nil,
			DeniedModern: neg.DeniedModern,
			DeniedLegacy: neg.DeniedLegacy,
		}
		if err != nil {
			p.failed = true
			reply.Error = err.Error()
			p.log.Warn("Decoder init failed: %v", err)
		} else {
			p.log.Info("Created %s", p.dec.Description())
		}
		p.mgr.send(p, reply, nil, nil)
	})
}

// handle runs on the manager queue.
func (p *Parent) handle(msg Message) {
	switch m := msg.(type) {
	case *Input:
		sample := m.Sample.sample()
		p.dispatch(func(ctx context.Context) { p.decode(ctx, sample) })
	case *Drain:
		p.dispatch(p.drain)
	case *Flush:
		p.dispatch(p.flush)
	case *SetSeekThreshold:
		t := usec(m.Time)
		p.dispatch(func(context.Context) {
			if p.dec != nil {
				p.dec.SetSeekThreshold(t)
			}
		})
	case *TextureRelease:
		if !p.textures.Release(m.ID) {
			p.log.Debug("Release of unknown texture %d", m.ID)
		}
	case *Destroy:
		p.destroy()
	default:
		p.log.Warn("Unexpected %s message", msg.MessageType())
	}
}

func (p *Parent) dispatch(task taskqueue.Task) {
	if err := p.queue.Dispatch(task); err != nil {
		p.log.Debug("Decode queue closed: %v", err)
	}
}

func (p *Parent) decode(ctx context.Context, sample *media.CompressedSample) {
	if p.failed {
		return
	}
	if err := p.dec.Input(ctx, sample); err != nil {
		if media.KindOf(err).Fatal() {
			p.fail(err)
			return
		}
		p.log.Warn("Dropping sample at %v: %v", sample.Time, err)
	} else if !p.pullOutputs(ctx) {
		return
	}
	p.mgr.send(p, &InputExhausted{}, nil, nil)
}

// pullOutputs sends frames until the decoder wants more input. It returns
// false after a fatal error.
func (p *Parent) pullOutputs(ctx context.Context) bool {
	for {
		frame, err := p.dec.Output(ctx)
		switch {
		case err == nil:
			p.sendFrame(frame)
		case errors.Is(err, ports.ErrNeedMoreInput):
			return true
		case errors.Is(err, media.ErrFrameAssembly):
			p.log.Warn("Dropping frame: %v", err)
		default:
			p.fail(err)
			return false
		}
	}
}

func (p *Parent) drain(ctx context.Context) {
	if p.failed {
		return
	}
	frames, err := p.dec.Drain(ctx)
	for _, f := range frames {
		p.sendFrame(f)
	}
	if err != nil {
		p.fail(err)
		return
	}
	p.mgr.send(p, &DrainComplete{}, nil, nil)
}

func (p *Parent) flush(ctx context.Context) {
	if p.failed {
		return
	}
	if err := p.dec.Flush(ctx); err != nil {
		p.fail(err)
		return
	}
	p.mgr.send(p, &FlushComplete{}, nil, nil)
}

// fail reports err to the Child, which stops sending.
func (p *Parent) fail(err error) {
	p.failed = true
	kind := media.KindOf(err)
	if kind == media.KindUnknown {
		kind = media.KindFaulted
	}
	p.log.Error("Decoder failed: %v", err)
	p.mgr.send(p, &DecoderError{Kind: kind.String(), Description: err.Error()}, nil, nil)
}

// sendFrame packs f for the link and queues it. f is released when it
// cannot be delivered.
func (p *Parent) sendFrame(f *media.DecodedFrame) {
	if p.destroyed.Load() {
		f.Release()
		return
	}
	if b := p.mgr.deps.Bridge; b != nil && !b.TextureForwarderAvailable() {
		p.log.Debug("Texture forwarder gone, dropping frame at %v", f.Time)
		f.Release()
		return
	}

	data := frameData(f)
	switch payload := f.Payload.(type) {
	case *media.PlanarBuffer:
		packed, err := transfer.PackPlanar(p.mgr.link.Allocator(), payload)
		if err != nil {
			p.log.Warn("Dropping frame at %v: %v", f.Time, err)
			p.mgr.deps.Telemetry.RecordEvent(ports.EventFrameDropped, 1)
			f.Release()
			return
		}
		region, _ := transfer.RegionOf(packed)
		data.Planar = planarData(packed, region)
		p.mgr.send(p, &Output{Frame: data}, region.Detach, region.Release)
	case *media.TextureHandle:
		desc := p.textures.Register(payload)
		data.Texture = &desc
		p.mgr.send(p, &Output{Frame: data}, nil, func() { p.textures.Release(desc.ID) })
	default:
		f.Release()
	}
}

// destroy runs on the manager queue. The decoder is shut down after the
// work already queued for it.
func (p *Parent) destroy() {
	if p.destroyed.Swap(true) {
		return
	}
	p.mgr.unregister(p.id)
	p.dispatch(func(ctx context.Context) {
		if p.dec != nil {
			p.dec.Shutdown(ctx)
		}
		if n := p.textures.ReleaseAll(); n > 0 {
			p.log.Debug("Released %d textures held for the child", n)
		}
	})
	p.queue.Shutdown()
}
