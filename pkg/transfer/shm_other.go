//go:build !unix

package transfer

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// shmRegion keeps the bytes in memory and syncs them through the file on
// platforms without mmap.
type shmRegion struct {
	name string
	path string

	mu   sync.Mutex
	data []byte
	done bool
}

func mapRegion(f *os.File, name, path string, size int, create bool) (*shmRegion, error) {
	data := make([]byte, size)
	if !create {
		if _, err := io.ReadFull(f, data); err != nil {
			return nil, fmt.Errorf("transfer: read region: %w", err)
		}
	}
	return &shmRegion{name: name, path: path, data: data}, nil
}

func (r *shmRegion) Name() string { return r.name }

func (r *shmRegion) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *shmRegion) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

func (r *shmRegion) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	_ = os.WriteFile(r.path, r.data, 0600)
	r.data = nil
}

func (r *shmRegion) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.data = nil
	_ = os.Remove(r.path)
}
