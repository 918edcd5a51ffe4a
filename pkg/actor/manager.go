// Package actor implements the remote decoder protocol. A Child lives in
// the process that has compressed samples and no decoder. Its Parent lives
// in the decoder process and owns a decoder.Manager. Each side reaches the
// other through a manager object bound to one Link.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/remotevideo/pkg/decoder"
	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/taskqueue"
	"github.com/user/remotevideo/pkg/transfer"
)

var (
	// ErrManagerUnavailable is returned when there is no manager or its link
	// is down. It is wrapped in a media.KindTransportUnavailable error.
	ErrManagerUnavailable = errors.New("actor: manager unavailable")
	// ErrSendFailed is returned when the link rejects a message. It is
	// wrapped in a media.KindTransportUnavailable error.
	ErrSendFailed = errors.New("actor: send failed")
)

func unavailable(op string) error {
	return media.Wrap(media.KindTransportUnavailable, op, ErrManagerUnavailable)
}

func sendFailed(op string, err error) error {
	return media.Wrap(media.KindTransportUnavailable, op, fmt.Errorf("%w: %v", ErrSendFailed, err))
}

// ManagerChild is the child-side end of a link. Messages for its actors are
// handled on its own queue in arrival order.
type ManagerChild struct {
	link  Link
	queue *taskqueue.Queue
	log   ports.Logger

	mu        sync.Mutex
	actors    map[uint64]*Child
	next      uint64
	available bool
}

// NewManagerChild binds a child manager to link and starts receiving.
func NewManagerChild(link Link, log ports.Logger) (*ManagerChild, error) {
	m := &ManagerChild{
		link:      link,
		queue:     taskqueue.New("manager-child"),
		log:       log.WithComponent("manager-child"),
		actors:    make(map[uint64]*Child),
		available: true,
	}
	if err := link.Start(m); err != nil {
		m.queue.Close()
		return nil, fmt.Errorf("actor: start link: %w", err)
	}
	return m, nil
}

// Available reports whether the link is still up.
func (m *ManagerChild) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *ManagerChild) register() (*Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return nil, unavailable("actor.NewChild")
	}
	m.next++
	c := newChild(m, m.next)
	m.actors[c.id] = c
	return c, nil
}

func (m *ManagerChild) unregister(id uint64) {
	m.mu.Lock()
	delete(m.actors, id)
	m.mu.Unlock()
}

func (m *ManagerChild) lookup(id uint64) *Child {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actors[id]
}

// Receive implements Receiver.
func (m *ManagerChild) Receive(id uint64, msg Message) {
	err := m.queue.Dispatch(func(ctx context.Context) {
		if c := m.lookup(id); c != nil {
			c.handle(msg)
			return
		}
		m.log.Debug("Dropping %s for gone actor %d", msg.MessageType(), id)
		m.discard(msg)
	})
	if err != nil {
		m.discard(msg)
	}
}

// LinkClosed implements Receiver. Messages that arrived before the link
// went down are still handled first.
func (m *ManagerChild) LinkClosed(err error) {
	lost := func(context.Context) {
		m.mu.Lock()
		m.available = false
		actors := make([]*Child, 0, len(m.actors))
		for _, c := range m.actors {
			actors = append(actors, c)
		}
		m.mu.Unlock()
		for _, c := range actors {
			c.linkLost()
		}
	}
	if err != nil {
		m.log.Warn("Link lost: %v", err)
	}
	if m.queue.Dispatch(lost) != nil {
		lost(context.Background())
	}
}

// discard frees the transport resources of a message nobody will handle.
func (m *ManagerChild) discard(msg Message) {
	out, ok := msg.(*Output)
	if !ok || out.Frame.Planar == nil {
		return
	}
	if region, err := m.link.Resolve(out.Frame.Planar); err == nil {
		region.Release()
	}
}

// receiveFrame turns wire frame data into a frame the child owns.
func (m *ManagerChild) receiveFrame(actorID uint64, d *FrameData) (*media.DecodedFrame, error) {
	switch {
	case d.Planar != nil:
		region, err := m.link.Resolve(d.Planar)
		if err != nil {
			return nil, fmt.Errorf("actor: open frame region: %w", err)
		}
		buf, err := transfer.CopyOut(d.Planar.buffer(region))
		if err != nil {
			region.Release()
			return nil, err
		}
		return d.frame(buf), nil
	case d.Texture != nil:
		desc := *d.Texture
		tex := media.NewTextureHandle(desc.ID, desc.BridgeID, desc.Size, func() {
			if err := m.link.Send(actorID, &TextureRelease{ID: desc.ID}); err != nil {
				m.log.Debug("Texture %d released after link loss: %v", desc.ID, err)
			}
		})
		return d.frame(tex), nil
	}
	return nil, errors.New("actor: frame without payload")
}

// Close takes the link down and waits for queued messages to be handled.
func (m *ManagerChild) Close() error {
	err := m.link.Close()
	m.queue.Close()
	return err
}

// ManagerParent is the decoder-side end of a link. It creates a Parent for
// every Construct it receives.
type ManagerParent struct {
	link  Link
	queue *taskqueue.Queue
	deps  decoder.Deps
	log   ports.Logger

	mu       sync.Mutex
	actors   map[uint64]*Parent
	decoders []*taskqueue.Queue

	doneOnce sync.Once
	done     chan struct{}
}

// NewManagerParent binds a parent manager to link. deps are handed to
// every decoder it creates.
func NewManagerParent(link Link, deps decoder.Deps) (*ManagerParent, error) {
	m := &ManagerParent{
		link:   link,
		queue:  taskqueue.New("manager-parent"),
		deps:   deps,
		log:    deps.Logger.WithComponent("manager-parent"),
		actors: make(map[uint64]*Parent),
		done:   make(chan struct{}),
	}
	if err := link.Start(m); err != nil {
		m.queue.Close()
		return nil, fmt.Errorf("actor: start link: %w", err)
	}
	return m, nil
}

// Done is closed once the link is down and every actor was destroyed.
func (m *ManagerParent) Done() <-chan struct{} {
	return m.done
}

// Actors returns how many actors are alive.
func (m *ManagerParent) Actors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actors)
}

// Receive implements Receiver.
func (m *ManagerParent) Receive(id uint64, msg Message) {
	if err := m.queue.Dispatch(func(ctx context.Context) { m.route(id, msg) }); err != nil {
		m.log.Debug("Dropping %s for actor %d after close", msg.MessageType(), id)
	}
}

func (m *ManagerParent) route(id uint64, msg Message) {
	m.mu.Lock()
	p := m.actors[id]
	m.mu.Unlock()

	if c, ok := msg.(*Construct); ok {
		if p != nil {
			m.log.Warn("Actor %d constructed twice", id)
			return
		}
		p = newParent(m, id)
		m.mu.Lock()
		m.actors[id] = p
		m.decoders = append(m.decoders, p.queue)
		m.mu.Unlock()
		p.construct(c.params())
		return
	}
	if p == nil {
		m.log.Debug("Dropping %s for unknown actor %d", msg.MessageType(), id)
		return
	}
	p.handle(msg)
}

func (m *ManagerParent) unregister(id uint64) {
	m.mu.Lock()
	delete(m.actors, id)
	m.mu.Unlock()
}

// LinkClosed implements Receiver. Every actor is destroyed.
func (m *ManagerParent) LinkClosed(err error) {
	if err != nil {
		m.log.Warn("Link lost: %v", err)
	}
	lost := func(context.Context) {
		m.mu.Lock()
		actors := make([]*Parent, 0, len(m.actors))
		for _, p := range m.actors {
			actors = append(actors, p)
		}
		m.mu.Unlock()
		for _, p := range actors {
			p.destroy()
		}
		m.doneOnce.Do(func() { close(m.done) })
	}
	if m.queue.Dispatch(lost) != nil {
		lost(context.Background())
	}
}

// send delivers msg on the manager queue. sent runs after a successful
// send, dropped when the actor is gone or the send fails. Either may be nil.
func (m *ManagerParent) send(p *Parent, msg Message, sent, dropped func()) {
	deliver := func(context.Context) {
		if p.destroyed.Load() {
			call(dropped)
			return
		}
		if err := m.link.Send(p.id, msg); err != nil {
			m.log.Warn("Sending %s to actor %d: %v", msg.MessageType(), p.id, err)
			call(dropped)
			return
		}
		call(sent)
	}
	if m.queue.Dispatch(deliver) != nil {
		call(dropped)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Close takes the link down, destroys every actor and waits for their
// decoders to shut down.
func (m *ManagerParent) Close() error {
	err := m.link.Close()
	m.LinkClosed(nil)
	m.queue.Close()
	m.mu.Lock()
	decoders := m.decoders
	m.mu.Unlock()
	for _, q := range decoders {
		q.Wait()
	}
	return err
}
