package mocks

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/user/remotevideo/pkg/ports"
)

// FileSystem is an in-memory ports.FileSystem for report and snapshot tests.
// Paths are cleaned with path.Clean, and a written file makes its parent
// directories exist.
type FileSystem struct {
	ReadFileFunc  func(p string) ([]byte, error)
	WriteFileFunc func(p string, data []byte) error
	MkdirAllFunc  func(p string) error
	ExistsFunc    func(p string) (bool, error)
	RemoveFunc    func(p string) error

	mu     sync.RWMutex
	files  map[string][]byte
	dirs   map[string]bool
	writes []string
}

// NewFileSystem creates an empty FileSystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func (m *FileSystem) ReadFile(p string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(p)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *FileSystem) WriteFile(p string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(p, data)
	}
	p = path.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
	m.writes = append(m.writes, p)
	m.addParents(p)
	return nil
}

func (m *FileSystem) MkdirAll(p string) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(p)
	}
	p = path.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[p] = true
	m.addParents(p)
	return nil
}

func (m *FileSystem) addParents(p string) {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		m.dirs[dir] = true
	}
}

func (m *FileSystem) Exists(p string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(p)
	}
	p = path.Clean(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isFile := m.files[p]
	return isFile || m.dirs[p], nil
}

// Remove deletes a file or a directory without children. Missing paths are
// ignored.
func (m *FileSystem) Remove(p string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(p)
	}
	p = path.Clean(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		prefix := p + "/"
		for f := range m.files {
			if strings.HasPrefix(f, prefix) {
				return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrExist}
			}
		}
	}
	delete(m.files, p)
	delete(m.dirs, p)
	return nil
}

// File returns the contents written to p.
func (m *FileSystem) File(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(p)]
	return data, ok
}

// Paths returns the stored file paths in sorted order.
func (m *FileSystem) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Writes returns every successful WriteFile path in call order.
func (m *FileSystem) Writes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.writes...)
}

var _ ports.FileSystem = (*FileSystem)(nil)
