package mocks

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

// Transform is a mock ports.Transform. By default every input yields one
// decoded unit of the negotiated output type, returned in input order.
type Transform struct {
	mu sync.Mutex

	Hardware bool
	// Formats lists accepted output formats. Nil accepts all.
	Formats []media.PixelFormat
	// Size is the decoded size reported by OutputType. Zero uses the coded size.
	Size media.Size

	SetInputTypeFunc   func(in ports.InputType) error
	SetAcceleratorFunc func(acc ports.Accelerator) error
	InputFunc          func(sample *media.CompressedSample) error
	OutputFunc         func() (*ports.DecodedUnit, error)

	// Recorded calls for verification
	InputType   ports.InputType
	Format      media.PixelFormat
	Accelerator ports.Accelerator
	Inputs      []*media.CompressedSample
	FormatCalls []media.PixelFormat
	Drained     bool
	Flushed     int
	Closed      bool

	pending []*ports.DecodedUnit
	units   atomic.Int32
	freed   atomic.Int32
	surface atomic.Uint64
}

// NewTransform creates a software mock transform.
func NewTransform() *Transform {
	return &Transform{}
}

func (m *Transform) SetInputType(in ports.InputType) error {
	m.mu.Lock()
	m.InputType = in
	m.mu.Unlock()
	if m.SetInputTypeFunc != nil {
		return m.SetInputTypeFunc(in)
	}
	return nil
}

func (m *Transform) SetOutputFormat(f media.PixelFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FormatCalls = append(m.FormatCalls, f)
	if m.Formats != nil {
		ok := false
		for _, accepted := range m.Formats {
			if accepted == f {
				ok = true
			}
		}
		if !ok {
			return ports.ErrFormatNotSupported
		}
	}
	m.Format = f
	return nil
}

func (m *Transform) OutputType() (ports.OutputType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputTypeLocked()
}

func (m *Transform) outputTypeLocked() (ports.OutputType, error) {
	if m.Format == media.FormatUnknown {
		return ports.OutputType{}, errors.New("mock: no output format")
	}
	size := m.Size
	if size.Width == 0 || size.Height == 0 {
		size = m.InputType.CodedSize
	}
	return ports.OutputType{
		Format: m.Format,
		Size:   size,
		Stride: size.Width * m.Format.BytesPerSample(),
	}, nil
}

func (m *Transform) HardwareAware() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Hardware
}

func (m *Transform) SetAccelerator(acc ports.Accelerator) error {
	if m.SetAcceleratorFunc != nil {
		if err := m.SetAcceleratorFunc(acc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Accelerator = acc
	m.mu.Unlock()
	return nil
}

func (m *Transform) Input(sample *media.CompressedSample) error {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, sample)
	m.mu.Unlock()
	if m.InputFunc != nil {
		return m.InputFunc(sample)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ot, err := m.outputTypeLocked()
	if err != nil {
		return err
	}
	m.pending = append(m.pending, m.newUnitLocked(sample, ot))
	return nil
}

// NewUnit builds a decoded unit for sample using the current output type.
// Its release is counted by FreedUnits.
func (m *Transform) NewUnit(sample *media.CompressedSample) *ports.DecodedUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	ot, _ := m.outputTypeLocked()
	return m.newUnitLocked(sample, ot)
}

func (m *Transform) newUnitLocked(sample *media.CompressedSample, ot ports.OutputType) *ports.DecodedUnit {
	m.units.Add(1)
	u := &ports.DecodedUnit{
		Time:     sample.Time,
		Duration: sample.Duration,
		Keyframe: sample.Keyframe,
	}
	if m.Accelerator != nil {
		u.Surface = &Surface{ID: m.surface.Add(1), Sz: ot.Size, onRelease: func() { m.freed.Add(1) }}
		return u
	}
	u.Data = make([]byte, FrameBytes(ot))
	for i := range u.Data {
		u.Data[i] = byte(i)
	}
	u.Free = func() { m.freed.Add(1) }
	return u
}

func (m *Transform) Output() (*ports.DecodedUnit, error) {
	if m.OutputFunc != nil {
		return m.OutputFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, ports.ErrNeedMoreInput
	}
	u := m.pending[0]
	m.pending = m.pending[1:]
	return u, nil
}

func (m *Transform) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Drained = true
	return nil
}

func (m *Transform) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Flushed++
	for _, u := range m.pending {
		u.Release()
	}
	m.pending = nil
	return nil
}

func (m *Transform) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *Transform) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// CreatedUnits returns how many decoded units were built.
func (m *Transform) CreatedUnits() int { return int(m.units.Load()) }

// FreedUnits returns how many decoded units were released.
func (m *Transform) FreedUnits() int { return int(m.freed.Load()) }

// FrameBytes returns the size of one 4:2:0 picture of type ot.
func FrameBytes(ot ports.OutputType) int {
	stride := ot.Stride
	if stride == 0 {
		stride = ot.Size.Width * ot.Format.BytesPerSample()
	}
	return stride * ot.Size.Height * 3 / 2
}

// Surface is a mock ports.Surface.
type Surface struct {
	ID        uint64
	Sz        media.Size
	onRelease func()
	released  atomic.Bool
}

func (s *Surface) Handle() uint64   { return s.ID }
func (s *Surface) Size() media.Size { return s.Sz }

func (s *Surface) Release() {
	if !s.released.Swap(true) && s.onRelease != nil {
		s.onRelease()
	}
}

// TransformFactory is a mock ports.TransformFactory returning a prepared
// transform.
type TransformFactory struct {
	mu sync.Mutex

	Transform           *Transform
	CreateTransformFunc func(codec media.Codec, attrs ports.TransformAttributes) (ports.Transform, error)

	// Recorded calls for verification
	Attrs []ports.TransformAttributes
}

// NewTransformFactory returns a factory that hands out t.
func NewTransformFactory(t *Transform) *TransformFactory {
	return &TransformFactory{Transform: t}
}

func (f *TransformFactory) CreateTransform(codec media.Codec, attrs ports.TransformAttributes) (ports.Transform, error) {
	f.mu.Lock()
	f.Attrs = append(f.Attrs, attrs)
	f.mu.Unlock()
	if f.CreateTransformFunc != nil {
		return f.CreateTransformFunc(codec, attrs)
	}
	if f.Transform == nil {
		return nil, errors.New("mock: no transform")
	}
	t := f.Transform
	t.mu.Lock()
	t.Hardware = attrs.Hardware
	t.Accelerator = nil
	t.Closed = false
	t.mu.Unlock()
	return t, nil
}

// Calls returns how many transforms were requested.
func (f *TransformFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Attrs)
}

var (
	_ ports.Transform        = (*Transform)(nil)
	_ ports.TransformFactory = (*TransformFactory)(nil)
	_ ports.Surface          = (*Surface)(nil)
)
