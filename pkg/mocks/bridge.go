package mocks

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// GPUBridge is a mock ports.GPUBridge.
type GPUBridge struct {
	BridgeID string
	// FailWrap makes WrapAsTexture fail.
	FailWrap bool

	WrapAsTextureFunc func(s ports.Surface) (*media.TextureHandle, error)

	available atomic.Bool
	wrapped   atomic.Int32

	mu       sync.Mutex
	Textures []*media.TextureHandle
}

// NewGPUBridge creates an available bridge.
func NewGPUBridge(id string) *GPUBridge {
	b := &GPUBridge{BridgeID: id}
	b.available.Store(true)
	return b
}

func (b *GPUBridge) ID() string { return b.BridgeID }

func (b *GPUBridge) WrapAsTexture(s ports.Surface) (*media.TextureHandle, error) {
	if b.WrapAsTextureFunc != nil {
		return b.WrapAsTextureFunc(s)
	}
	if b.FailWrap {
		return nil, errors.New("mock: wrap failed")
	}
	b.wrapped.Add(1)
	tex := media.NewTextureHandle(s.Handle(), b.BridgeID, s.Size(), s.Release)
	b.mu.Lock()
	b.Textures = append(b.Textures, tex)
	b.mu.Unlock()
	return tex, nil
}

func (b *GPUBridge) TextureForwarderAvailable() bool { return b.available.Load() }

// SetAvailable toggles TextureForwarderAvailable.
func (b *GPUBridge) SetAvailable(v bool) { b.available.Store(v) }

// Wrapped returns how many surfaces were wrapped.
func (b *GPUBridge) Wrapped() int { return int(b.wrapped.Load()) }

var _ ports.GPUBridge = (*GPUBridge)(nil)
