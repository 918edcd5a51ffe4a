package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const regionPrefix = "remotevideo-"

// ShmAllocator creates file-backed shared memory regions in Dir.
type ShmAllocator struct {
	Dir string
}

// DefaultShmDir prefers /dev/shm and falls back to the temp directory.
func DefaultShmDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// NewShmAllocator returns an allocator for dir, or DefaultShmDir when dir is
// empty.
func NewShmAllocator(dir string) *ShmAllocator {
	if dir == "" {
		dir = DefaultShmDir()
	}
	return &ShmAllocator{Dir: dir}
}

// Alloc creates and maps a region of size bytes.
func (a *ShmAllocator) Alloc(size int) (Region, error) {
	if size <= 0 || size > MaxRegionSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	name := regionPrefix + uuid.NewString() + ".shm"
	path := filepath.Join(a.Dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("transfer: create region: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("transfer: size region: %w", err)
	}
	r, err := mapRegion(f, name, path, size, true)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

// Open maps a region created by a peer. The returned region unlinks the
// file when released.
func (a *ShmAllocator) Open(name string, size int) (Region, error) {
	if !validRegionName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if size <= 0 || size > MaxRegionSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	path := filepath.Join(a.Dir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transfer: open region: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat region: %w", err)
	}
	if fi.Size() < int64(size) {
		os.Remove(path)
		return nil, fmt.Errorf("%w: region holds %d bytes, want %d", ErrInvalidSize, fi.Size(), size)
	}
	r, err := mapRegion(f, name, path, size, false)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func validRegionName(name string) bool {
	return strings.HasPrefix(name, regionPrefix) &&
		strings.HasSuffix(name, ".shm") &&
		filepath.Base(name) == name
}
