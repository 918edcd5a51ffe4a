package ports

import (
	"errors"
	"sync"
	"time"

	"github.com/user/remotevideo/pkg/media"
)

var (
	// ErrNeedMoreInput means the transform has nothing to emit until it is
	// given another sample. It is not a failure.
	ErrNeedMoreInput = errors.New("transform: need more input")

	// ErrStreamChange means the output type changed and must be renegotiated
	// before more output can be pulled.
	ErrStreamChange = errors.New("transform: output stream changed")

	// ErrFormatNotSupported is returned by SetOutputFormat for formats the
	// transform cannot produce.
	ErrFormatNotSupported = errors.New("transform: output format not supported")
)

// InputType describes the compressed stream a transform will receive.
type InputType struct {
	Codec      media.Codec
	CodedSize  media.Size
	Picture    media.Rect
	FrameRate  float64
	LowLatency bool
	ExtraData  []byte
}

// OutputType is the negotiated decoded format. Size includes any padding the
// transform adds below the picture. Stride is in bytes; zero means the
// transform does not report one.
type OutputType struct {
	Format media.PixelFormat
	Size   media.Size
	Stride int
}

// Surface is a native decoded picture that lives on the GPU.
type Surface interface {
	Handle() uint64
	Size() media.Size
	Release()
}

// DecodedUnit is one picture pulled from a transform. Software transforms
// fill Data; hardware transforms fill Surface.
type DecodedUnit struct {
	Time     time.Duration
	Duration time.Duration
	Keyframe bool
	Data     []byte
	Surface  Surface

	// Free, when set, returns Data to the transform.
	Free func()

	once sync.Once
}

// Release returns the unit's resources to the transform. Safe to call more
// than once.
func (u *DecodedUnit) Release() {
	u.once.Do(func() {
		if u.Surface != nil {
			u.Surface.Release()
		}
		if u.Free != nil {
			u.Free()
		}
	})
}

// Transform is an opaque decode engine.
type Transform interface {
	SetInputType(in InputType) error
	SetOutputFormat(f media.PixelFormat) error
	OutputType() (OutputType, error)

	// HardwareAware reports whether SetAccelerator can be used.
	HardwareAware() bool
	SetAccelerator(acc Accelerator) error

	Input(sample *media.CompressedSample) error

	// Output returns the next decoded unit. A nil unit with a nil error means
	// the transform reported success without producing anything.
	Output() (*DecodedUnit, error)

	// Drain tells the transform no more input will follow, so buffered
	// pictures can be pulled.
	Drain() error
	Flush() error
	Close() error
}

// TransformAttributes are fixed at creation time.
type TransformAttributes struct {
	Hardware   bool
	LowLatency bool
	Threads    int
}

// TransformFactory creates transforms for a codec.
type TransformFactory interface {
	CreateTransform(codec media.Codec, attrs TransformAttributes) (Transform, error)
}
