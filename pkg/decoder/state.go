// Package decoder drives one transform through its lifecycle: hardware
// negotiation, output type negotiation, output draining with bounded
// recovery, and frame assembly.
package decoder

import (
	"time"

	"github.com/user/remotevideo/pkg/media"
)

// State of a decoder session.
type State int32

const (
	StateUninitialized State = iota
	StateNegotiatingHardware
	StateReady
	StateRenegotiating
	StateFaulted
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNegotiatingHardware:
		return "negotiating-hardware"
	case StateReady:
		return "ready"
	case StateRenegotiating:
		return "renegotiating"
	case StateFaulted:
		return "faulted"
	case StateShutDown:
		return "shut-down"
	default:
		return "invalid"
	}
}

// Default bounds. Both are heuristics and can be overridden through Limits.
const (
	// DefaultMaxTypeChanges bounds consecutive output type changes within one
	// Output call. Some transforms signal two changes back to back.
	DefaultMaxTypeChanges = 100
	// DefaultMaxNullOutputs bounds successful outputs without a picture over
	// the decoder's lifetime.
	DefaultMaxNullOutputs = 250
	// DefaultMinHardwareSize is the smallest H.264 picture side sent to
	// hardware.
	DefaultMinHardwareSize = 132

	MaxVideoWidth  = 8192
	MaxVideoHeight = 4608
)

// Limits bound the decoder's retry loops and stream validation.
type Limits struct {
	MaxTypeChanges              int
	MaxNullOutputs              int
	AllowUnsupportedResolutions bool
	MinHardwareWidth            int
	MinHardwareHeight           int
	// HardwareOnlyCodecs fail initialization instead of falling back to
	// software.
	HardwareOnlyCodecs []media.Codec
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTypeChanges:     DefaultMaxTypeChanges,
		MaxNullOutputs:     DefaultMaxNullOutputs,
		MinHardwareWidth:   DefaultMinHardwareSize,
		MinHardwareHeight:  DefaultMinHardwareSize,
		HardwareOnlyCodecs: []media.Codec{media.CodecVP8, media.CodecVP9},
	}
}

func (l Limits) hardwareOnly(c media.Codec) bool {
	for _, h := range l.HardwareOnlyCodecs {
		if h == c {
			return true
		}
	}
	return false
}

// Null output telemetry buckets recorded at shutdown.
const (
	NullBucketNone = iota
	NullBucketRecoveredAndExcessive
	NullBucketExcessive
	NullBucketRecovered
	NullBucketOther
)

// Stats are counters of a decoder session.
type Stats struct {
	Inputs            int
	Frames            int
	Dropped           int
	NullOutputs       int
	TypeChanges       int
	GotValidAfterNull bool
	GotExcessiveNull  bool
	LastDuration      time.Duration
}

// NullBucket classifies the session's null output history.
func (s Stats) NullBucket() int {
	switch {
	case s.NullOutputs == 0:
		return NullBucketNone
	case s.GotValidAfterNull && s.GotExcessiveNull:
		return NullBucketRecoveredAndExcessive
	case s.GotExcessiveNull:
		return NullBucketExcessive
	case s.GotValidAfterNull:
		return NullBucketRecovered
	default:
		return NullBucketOther
	}
}
