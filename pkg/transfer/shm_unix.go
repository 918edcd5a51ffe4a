//go:build unix

package transfer

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

type shmRegion struct {
	name string
	path string

	mu   sync.Mutex
	data []byte
	done bool
}

func mapRegion(f *os.File, name, path string, size int, _ bool) (*shmRegion, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("transfer: mmap region: %w", err)
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

func (r *shmRegion) unmap() {
	if r.data != nil {
		_ = unix.Munmap(r.data)
		r.data = nil
	}
}

// Detach unmaps the region and leaves the file for the receiver.
func (r *shmRegion) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.unmap()
}

// Release unmaps and unlinks the region.
func (r *shmRegion) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.unmap()
	_ = os.Remove(r.path)
}
