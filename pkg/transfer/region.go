// Package transfer moves decoded pixels across the actor boundary. Planar
// frames are copied once into a region the receiver takes over. Textures
// stay on the GPU and are tracked by id until the receiver lets go.
package transfer

import (
	"errors"
	"fmt"

	"github.com/user/remotevideo/pkg/media"
)

var (
	// ErrInvalidSize is returned for non-positive or oversized allocations.
	ErrInvalidSize = errors.New("transfer: invalid region size")
	// ErrInvalidName is returned when opening a region name this package did
	// not create.
	ErrInvalidName = errors.New("transfer: invalid region name")
)

// Region is a block of memory that can be handed to another side.
type Region interface {
	media.Memory

	// Name identifies the region to the receiving process. Empty for heap
	// regions, which only move within a process.
	Name() string
	Len() int

	// Detach gives up the sender's mapping without freeing the region. The
	// receiver releases it after use.
	Detach()
}

// Allocator creates regions.
type Allocator interface {
	Alloc(size int) (Region, error)
}

// Opener maps regions created by another process.
type Opener interface {
	Open(name string, size int) (Region, error)
}

// MaxRegionSize bounds a single allocation.
const MaxRegionSize = 256 << 20

// HeapAllocator allocates regions on the Go heap.
type HeapAllocator struct{}

// Alloc returns a zeroed heap region of size bytes.
func (HeapAllocator) Alloc(size int) (Region, error) {
	if size <= 0 || size > MaxRegionSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &heapRegion{HeapMemory: media.NewHeapMemory(make([]byte, size), nil)}, nil
}

type heapRegion struct {
	*media.HeapMemory
}

func (r *heapRegion) Name() string { return "" }
func (r *heapRegion) Len() int     { return len(r.Bytes()) }
func (r *heapRegion) Detach()      {}

// RegionOf returns the region backing buf, if any.
func RegionOf(buf *media.PlanarBuffer) (Region, bool) {
	r, ok := buf.Memory.(Region)
	return r, ok
}
