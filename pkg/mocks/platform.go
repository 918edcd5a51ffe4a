package mocks

import (
	"errors"
	"sync"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// Platform is a mock ports.Platform. Without overrides it reports no 4K
// support, the configured modules, and creates an Accelerator for every API.
type Platform struct {
	mu sync.Mutex

	FourK   bool
	Modules []ports.Module
	System  map[string]ports.Module

	// FailAPIs makes CreateAccelerator fail for the listed APIs.
	FailAPIs map[ports.AccelAPI]bool

	CreateAcceleratorFunc func(api ports.AccelAPI, capability media.HardwareCapability) (ports.Accelerator, error)

	// Recorded calls for verification
	loadedCalls  int
	probeCalls   int
	CreateCalls  []ports.AccelAPI
	Accelerators []*Accelerator
}

// NewPlatform creates a mock platform.
func NewPlatform() *Platform {
	return &Platform{}
}

func (m *Platform) H264Supports4K() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeCalls++
	return m.FourK
}

func (m *Platform) LoadedModules() ([]ports.Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadedCalls++
	out := make([]ports.Module, len(m.Modules))
	copy(out, m.Modules)
	return out, nil
}

func (m *Platform) SystemModule(name string) (ports.Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.System[name]
	return mod, ok
}

func (m *Platform) CreateAccelerator(api ports.AccelAPI, capability media.HardwareCapability) (ports.Accelerator, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, api)
	fail := m.FailAPIs[api]
	fn := m.CreateAcceleratorFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(api, capability)
	}
	if fail {
		return nil, errors.New("mock: accelerator unavailable")
	}
	acc := NewAccelerator(api)
	m.mu.Lock()
	m.Accelerators = append(m.Accelerators, acc)
	m.mu.Unlock()
	return acc, nil
}

// Created returns the accelerators created so far.
func (m *Platform) Created() []*Accelerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Accelerator(nil), m.Accelerators...)
}

// LoadedModulesCalls returns how often LoadedModules was called.
func (m *Platform) LoadedModulesCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedCalls
}

// ProbeCalls returns how often H264Supports4K was called.
func (m *Platform) ProbeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls
}

// Accelerator is a mock ports.Accelerator.
type Accelerator struct {
	mu sync.Mutex

	Name ports.AccelAPI

	SupportsConfigFunc   func(out ports.OutputType, frameRate float64) bool
	ConfigureForSizeFunc func(out ports.OutputType, cs media.ColorSpace, width, height int) error

	// Recorded calls for verification
	ConfigureCalls []ports.OutputType
	closed         int
}

// NewAccelerator creates a mock accelerator for api.
func NewAccelerator(api ports.AccelAPI) *Accelerator {
	return &Accelerator{Name: api}
}

func (m *Accelerator) API() ports.AccelAPI { return m.Name }

func (m *Accelerator) Description() string { return "mock " + string(m.Name) + " accelerator" }

func (m *Accelerator) SupportsConfig(out ports.OutputType, frameRate float64) bool {
	if m.SupportsConfigFunc != nil {
		return m.SupportsConfigFunc(out, frameRate)
	}
	return true
}

func (m *Accelerator) ConfigureForSize(out ports.OutputType, cs media.ColorSpace, width, height int) error {
	m.mu.Lock()
	m.ConfigureCalls = append(m.ConfigureCalls, out)
	m.mu.Unlock()
	if m.ConfigureForSizeFunc != nil {
		return m.ConfigureForSizeFunc(out, cs, width, height)
	}
	return nil
}

func (m *Accelerator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Closed returns how many times Close was called.
func (m *Accelerator) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var (
	_ ports.Platform    = (*Platform)(nil)
	_ ports.Accelerator = (*Accelerator)(nil)
)
