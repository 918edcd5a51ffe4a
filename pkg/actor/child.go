package actor

import (
	"context"
	"sync"
	"time"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// Child is the caller-facing decoder proxy. It keeps no decode state: every
// operation is a message to its Parent, and frames come back as Output
// messages. Blocking methods must not be called from the manager queue.
type Child struct {
	mgr *ManagerChild
	id  uint64
	log ports.Logger

	// op serializes the blocking round trips.
	op sync.Mutex

	mu      sync.Mutex
	changed chan struct{}
	canSend bool
	// constructFailed is set once the Parent reported a failed Construct.
	constructFailed bool
	destroyed       bool
	failure         error
	reply           *ConstructReply
	inputs          uint64
	exhausted       uint64
	drains          uint64
	drained         uint64
	flushes         uint64
	flushed         uint64
	frames          []*media.DecodedFrame
}

// NewChild creates an actor on mgr. A nil or closed manager yields
// ErrManagerUnavailable.
func NewChild(mgr *ManagerChild) (*Child, error) {
	if mgr == nil {
		return nil, unavailable("actor.NewChild")
	}
	return mgr.register()
}

func newChild(mgr *ManagerChild, id uint64) *Child {
	return &Child{
		mgr:     mgr,
		id:      id,
		log:     mgr.log.WithComponent("child"),
		changed: make(chan struct{}),
		canSend: true,
	}
}

// ID returns the actor id shared with the Parent.
func (c *Child) ID() uint64 {
	return c.id
}

// CanSend reports whether messages can still be sent.
func (c *Child) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSend && c.failure == nil
}

// Construct creates the remote decoder and waits for the outcome. The
// reply is returned even when construction failed.
func (c *Child) Construct(ctx context.Context, p decoder.Params) (ConstructReply, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if err := c.send("actor.Construct", constructMessage(p)); err != nil {
		return ConstructReply{}, err
	}
	var reply ConstructReply
	err := c.await(ctx, func() bool {
		if c.reply == nil {
			return false
		}
		reply = *c.reply
		return true
	})
	if err != nil {
		return ConstructReply{}, err
	}
	if !reply.Success {
		err := media.Errorf(media.KindFatalInit, "actor.Construct", "%s", reply.Error)
		c.mu.Lock()
		c.canSend = false
		c.constructFailed = true
		if c.failure == nil {
			c.failure = err
		}
		c.broadcastLocked()
		c.mu.Unlock()
		return reply, err
	}
	return reply, nil
}

// Input sends a sample without waiting for it to be decoded. Frames it
// produces are returned by the next Decode or Drain.
func (c *Child) Input(sample *media.CompressedSample) error {
	c.mu.Lock()
	c.inputs++
	c.mu.Unlock()
	if err := c.send("actor.Input", &Input{Sample: sampleData(sample)}); err != nil {
		c.mu.Lock()
		c.inputs--
		c.mu.Unlock()
		return err
	}
	return nil
}

// Decode sends a sample and waits until the Parent has decoded it. It
// returns every frame received since the previous call.
func (c *Child) Decode(ctx context.Context, sample *media.CompressedSample) ([]*media.DecodedFrame, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if err := c.Input(sample); err != nil {
		return nil, err
	}
	c.mu.Lock()
	target := c.inputs
	c.mu.Unlock()
	if err := c.await(ctx, func() bool { return c.exhausted >= target }); err != nil {
		return nil, err
	}
	return c.takeFrames(), nil
}

// Drain asks the Parent for every buffered frame and returns them.
func (c *Child) Drain(ctx context.Context) ([]*media.DecodedFrame, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	c.drains++
	target := c.drains
	c.mu.Unlock()
	if err := c.send("actor.Drain", &Drain{}); err != nil {
		return nil, err
	}
	if err := c.await(ctx, func() bool { return c.drained >= target }); err != nil {
		return nil, err
	}
	return c.takeFrames(), nil
}

// Flush discards decoder state and any frames not yet returned.
func (c *Child) Flush(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	c.flushes++
	target := c.flushes
	c.mu.Unlock()
	if err := c.send("actor.Flush", &Flush{}); err != nil {
		return err
	}
	if err := c.await(ctx, func() bool { return c.flushed >= target }); err != nil {
		return err
	}
	releaseFrames(c.takeFrames())
	return nil
}

// SetSeekThreshold makes the Parent drop frames that end before t.
func (c *Child) SetSeekThreshold(t time.Duration) error {
	return c.send("actor.SetSeekThreshold", &SetSeekThreshold{Time: t.Microseconds()})
}

// Destroy tears down the Parent and releases undelivered frames. Messages
// still in flight for this actor are dropped. Safe to call more than once.
func (c *Child) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	// The Parent of a failed Construct still exists and needs the Destroy.
	notify := c.canSend || c.constructFailed
	c.destroyed = true
	c.canSend = false
	if c.failure == nil {
		c.failure = media.Errorf(media.KindShutDown, "actor.Child", "destroyed")
	}
	frames := c.frames
	c.frames = nil
	c.broadcastLocked()
	c.mu.Unlock()

	c.mgr.unregister(c.id)
	if notify {
		if err := c.mgr.link.Send(c.id, &Destroy{}); err != nil {
			c.log.Debug("Sending destroy: %v", err)
		}
	}
	releaseFrames(frames)
}

func (c *Child) send(op string, msg Message) error {
	c.mu.Lock()
	failure, canSend := c.failure, c.canSend
	c.mu.Unlock()
	if failure != nil {
		return failure
	}
	if !canSend || !c.mgr.Available() {
		return unavailable(op)
	}
	if err := c.mgr.link.Send(c.id, msg); err != nil {
		return sendFailed(op, err)
	}
	return nil
}

// await blocks until done reports true, the actor fails or ctx ends. done
// runs with c.mu held.
func (c *Child) await(ctx context.Context, done func() bool) error {
	for {
		c.mu.Lock()
		if done() {
			c.mu.Unlock()
			return nil
		}
		if c.failure != nil {
			err := c.failure
			c.mu.Unlock()
			return err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Child) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Child) takeFrames() []*media.DecodedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.frames
	c.frames = nil
	return frames
}

// handle runs on the manager queue.
func (c *Child) handle(msg Message) {
	var frame *media.DecodedFrame
	if out, ok := msg.(*Output); ok {
		f, err := c.mgr.receiveFrame(c.id, &out.Frame)
		if err != nil {
			c.log.Warn("Dropping frame at %v: %v", usec(out.Frame.Time), err)
			return
		}
		frame = f
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch m := msg.(type) {
	case *ConstructReply:
		c.reply = m
	case *InputExhausted:
		c.exhausted++
	case *Output:
		if c.destroyed {
			frame.Release()
			return
		}
		c.frames = append(c.frames, frame)
	case *DrainComplete:
		c.drained++
	case *FlushComplete:
		c.flushed++
	case *DecoderError:
		c.log.Error("Remote decoder failed: %s", m.Description)
		if c.failure == nil {
			c.failure = media.Errorf(media.ParseKind(m.Kind), "actor.Child", "%s", m.Description)
		}
	default:
		c.log.Warn("Unexpected %s message", msg.MessageType())
		return
	}
	c.broadcastLocked()
}

func (c *Child) linkLost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canSend = false
	if c.failure == nil {
		c.failure = unavailable("actor.Child")
	}
	c.broadcastLocked()
}

func releaseFrames(frames []*media.DecodedFrame) {
	for _, f := range frames {
		f.Release()
	}
}
