package actor

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/user/remotevideo/pkg/ports"
	"github.com/user/remotevideo/pkg/transfer"
)

// ErrLinkClosed is returned when sending on a closed link.
var ErrLinkClosed = errors.New("actor: link closed")

// Receiver consumes what arrives on a link. Receive must not block; it is
// called from the link's delivery goroutine.
type Receiver interface {
	Receive(actorID uint64, msg Message)
	// LinkClosed is called once when the link goes down. err is nil for an
	// orderly close.
	LinkClosed(err error)
}

// Link carries messages between a ManagerChild and a ManagerParent.
type Link interface {
	// Start begins delivery to r. It is called once.
	Start(r Receiver) error
	Send(actorID uint64, msg Message) error
	// Allocator returns where outgoing planar frames are packed.
	Allocator() transfer.Allocator
	// Resolve returns the region behind received planar data. The caller
	// releases it.
	Resolve(p *PlanarData) (transfer.Region, error)
	Close() error
}

// DirectLink is one end of an in-process link. Messages are handed to the
// peer as values and regions move by reference.
type DirectLink struct {
	peer  *DirectLink
	state *directState

	mu       sync.Mutex
	receiver Receiver
}

type directState struct {
	mu     sync.Mutex
	closed bool
}

// NewDirectPair returns two connected in-process link ends.
func NewDirectPair() (*DirectLink, *DirectLink) {
	state := &directState{}
	a := &DirectLink{state: state}
	b := &DirectLink{state: state}
	a.peer, b.peer = b, a
	return a, b
}

// Start registers r for messages sent by the peer.
func (l *DirectLink) Start(r Receiver) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.receiver != nil {
		return errors.New("actor: link already started")
	}
	l.receiver = r
	return nil
}

func (l *DirectLink) Send(actorID uint64, msg Message) error {
	l.state.mu.Lock()
	closed := l.state.closed
	l.state.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}
	l.peer.mu.Lock()
	r := l.peer.receiver
	l.peer.mu.Unlock()
	if r == nil {
		return fmt.Errorf("actor: peer not started")
	}
	r.Receive(actorID, msg)
	return nil
}

func (l *DirectLink) Allocator() transfer.Allocator {
	return transfer.HeapAllocator{}
}

func (l *DirectLink) Resolve(p *PlanarData) (transfer.Region, error) {
	if p.region == nil {
		return nil, errors.New("actor: planar data has no region")
	}
	return p.region, nil
}

// Close closes both ends and notifies both receivers.
func (l *DirectLink) Close() error {
	l.state.mu.Lock()
	if l.state.closed {
		l.state.mu.Unlock()
		return nil
	}
	l.state.closed = true
	l.state.mu.Unlock()

	for _, end := range []*DirectLink{l, l.peer} {
		end.mu.Lock()
		r := end.receiver
		end.mu.Unlock()
		if r != nil {
			r.LinkClosed(nil)
		}
	}
	return nil
}

// StreamLink runs the protocol over a byte stream such as a pipe to a
// child process. Planar frames travel through shared-memory regions.
type StreamLink struct {
	conn io.ReadWriteCloser
	r    *FrameReader
	w    *FrameWriter
	shm  *transfer.ShmAllocator
	log  ports.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	started   bool
	loopDone  chan struct{}
}

// NewStreamLink wraps conn. Regions are created in and opened from shm.
func NewStreamLink(conn io.ReadWriteCloser, shm *transfer.ShmAllocator, log ports.Logger) *StreamLink {
	return &StreamLink{
		conn:     conn,
		r:        NewFrameReader(conn),
		w:        NewFrameWriter(conn),
		shm:      shm,
		log:      log.WithComponent("link"),
		loopDone: make(chan struct{}),
	}
}

// Start launches the read loop.
func (l *StreamLink) Start(r Receiver) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("actor: link already started")
	}
	if l.closed {
		return ErrLinkClosed
	}
	l.started = true
	go l.readLoop(r)
	return nil
}

func (l *StreamLink) readLoop(r Receiver) {
	defer close(l.loopDone)
	var cause error
	for {
		payload, err := l.r.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !l.isClosed() {
				cause = err
				l.log.Error("Reading frame: %v", err)
			}
			break
		}
		id, msg, err := DecodeMessage(payload)
		if err != nil {
			if IsFatalFrameError(err) {
				cause = err
				break
			}
			l.log.Warn("Skipping message for actor %d: %v", id, err)
			continue
		}
		r.Receive(id, msg)
	}
	l.shutdown()
	r.LinkClosed(cause)
}

func (l *StreamLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *StreamLink) Send(actorID uint64, msg Message) error {
	if l.isClosed() {
		return ErrLinkClosed
	}
	payload, err := EncodeMessage(actorID, msg)
	if err != nil {
		return err
	}
	if err := l.w.WriteFrame(payload); err != nil {
		return fmt.Errorf("actor: write %s: %w", msg.MessageType(), err)
	}
	return nil
}

func (l *StreamLink) Allocator() transfer.Allocator {
	return l.shm
}

func (l *StreamLink) Resolve(p *PlanarData) (transfer.Region, error) {
	return l.shm.Open(p.Region, p.Size)
}

func (l *StreamLink) shutdown() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		if err := l.conn.Close(); err != nil {
			l.log.Debug("Closing stream: %v", err)
		}
	})
}

// Close closes the stream and waits for the read loop to exit.
func (l *StreamLink) Close() error {
	l.shutdown()
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.loopDone
	}
	return nil
}

var (
	_ Link = (*DirectLink)(nil)
	_ Link = (*StreamLink)(nil)
)
