package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DecodedFrame is one picture produced by a decoder. Like CompressedSample,
// its times have microsecond precision across the actor link.
type DecodedFrame struct {
	Time     time.Duration
	Duration time.Duration
	Timecode time.Duration
	Keyframe bool
	Offset   int64
	Display  Size
	Picture  Rect
	Payload  FramePayload
}

// End returns the presentation end time.
func (f *DecodedFrame) End() time.Duration {
	return f.Time + f.Duration
}

// Release frees the frame payload. Safe to call more than once.
func (f *DecodedFrame) Release() {
	if f == nil || f.Payload == nil {
		return
	}
	f.Payload.Release()
}

// FramePayload holds the pixels of a decoded frame. The only implementations
// are *PlanarBuffer and *TextureHandle.
type FramePayload interface {
	Release()
	payload()
}

var (
	_ FramePayload = (*PlanarBuffer)(nil)
	_ FramePayload = (*TextureHandle)(nil)
)

// Memory is the backing store of a planar buffer.
type Memory interface {
	Bytes() []byte
	Release()
}

// Plane describes one image plane inside a Memory block.
type Plane struct {
	Offset int
	Stride int
	Width  int
	Height int
	Skip   int
}

// PlanarBuffer is a CPU-addressable frame. Planes are ordered Y, Cb, Cr.
type PlanarBuffer struct {
	Format     PixelFormat
	Planes     [3]Plane
	ColorDepth ColorDepth
	ColorSpace ColorSpace
	Memory     Memory
}

func (*PlanarBuffer) payload() {}

// Layout returns the chroma layout of the buffer's format.
func (b *PlanarBuffer) Layout() Layout {
	return b.Format.Layout()
}

// Bytes returns the backing bytes or nil.
func (b *PlanarBuffer) Bytes() []byte {
	if b.Memory == nil {
		return nil
	}
	return b.Memory.Bytes()
}

// Release releases the backing memory.
func (b *PlanarBuffer) Release() {
	if b.Memory != nil {
		b.Memory.Release()
	}
}

// Clone returns a copy of the descriptor backed by m.
func (b *PlanarBuffer) Clone(m Memory) *PlanarBuffer {
	c := *b
	c.Memory = m
	return &c
}

// HeapMemory is Memory owned by the Go heap, with an optional release hook
// that runs once.
type HeapMemory struct {
	data     []byte
	once     sync.Once
	onFree   func()
	released atomic.Bool
}

// NewHeapMemory wraps data. onFree may be nil.
func NewHeapMemory(data []byte, onFree func()) *HeapMemory {
	return &HeapMemory{data: data, onFree: onFree}
}

func (m *HeapMemory) Bytes() []byte { return m.data }

// Release drops the data and runs the release hook the first time.
func (m *HeapMemory) Release() {
	m.once.Do(func() {
		m.released.Store(true)
		m.data = nil
		if m.onFree != nil {
			m.onFree()
		}
	})
}

// Released reports whether Release has run.
func (m *HeapMemory) Released() bool {
	return m.released.Load()
}

// ErrTextureReleased is returned when retaining a texture whose last
// reference is already gone.
var ErrTextureReleased = errors.New("media: texture already released")

// TextureHandle is an opaque GPU surface shared through a GPU bridge.
type TextureHandle struct {
	ID       uint64
	BridgeID string
	Size     Size

	refs   atomic.Int32
	free   func()
	freed  atomic.Bool
	freeMu sync.Mutex
}

// NewTextureHandle returns a handle with one reference. free runs when the
// last reference is released.
func NewTextureHandle(id uint64, bridgeID string, size Size, free func()) *TextureHandle {
	t := &TextureHandle{ID: id, BridgeID: bridgeID, Size: size, free: free}
	t.refs.Store(1)
	return t
}

func (*TextureHandle) payload() {}

// Retain adds a reference.
func (t *TextureHandle) Retain() error {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return ErrTextureReleased
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and frees the surface when none remain. Extra
// calls after the surface is freed are ignored.
func (t *TextureHandle) Release() {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return
		}
		if t.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				t.freeMu.Lock()
				if !t.freed.Swap(true) && t.free != nil {
					t.free()
				}
				t.freeMu.Unlock()
			}
			return
		}
	}
}

// Freed reports whether the underlying surface has been freed.
func (t *TextureHandle) Freed() bool {
	return t.freed.Load()
}
