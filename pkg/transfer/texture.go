package transfer

import (
	"sync"

	"github.com/user/remotevideo/pkg/media"
)

// TextureDescriptor identifies a texture held in a TextureRegistry.
type TextureDescriptor struct {
	ID       uint64
	BridgeID string
	Size     media.Size
}

// TextureRegistry keeps textures alive on the producing side until the
// consumer releases their descriptors.
type TextureRegistry struct {
	mu       sync.Mutex
	next     uint64
	textures map[uint64]*media.TextureHandle
}

// NewTextureRegistry creates an empty registry.
func NewTextureRegistry() *TextureRegistry {
	return &TextureRegistry{textures: make(map[uint64]*media.TextureHandle)}
}

// Register takes over the caller's reference to tex and returns its
// descriptor. No pixel data is copied.
func (r *TextureRegistry) Register(tex *media.TextureHandle) TextureDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.textures[r.next] = tex
	return TextureDescriptor{ID: r.next, BridgeID: tex.BridgeID, Size: tex.Size}
}

// Release drops the registry's reference for id. It reports whether id was
// registered.
func (r *TextureRegistry) Release(id uint64) bool {
	r.mu.Lock()
	tex, ok := r.textures[id]
	delete(r.textures, id)
	r.mu.Unlock()
	if ok {
		tex.Release()
	}
	return ok
}

// ReleaseAll drops every reference, e.g. when the consumer is gone.
func (r *TextureRegistry) ReleaseAll() int {
	r.mu.Lock()
	textures := r.textures
	r.textures = make(map[uint64]*media.TextureHandle)
	r.mu.Unlock()
	for _, tex := range textures {
		tex.Release()
	}
	return len(textures)
}

// Len returns how many textures are outstanding.
func (r *TextureRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.textures)
}
