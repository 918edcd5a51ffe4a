package media

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFatalConfig: stream parameters are unsupported. The decoder is unusable.
	KindFatalConfig
	// KindFatalInit: the decoder could not be brought up for a supported stream.
	KindFatalInit
	// KindTransportUnavailable: the manager link or process is gone.
	KindTransportUnavailable
	// KindRecoverableFallback: hardware was unavailable and software took over.
	KindRecoverableFallback
	// KindTransientRetry: more input is needed or an internal retry is pending.
	KindTransientRetry
	// KindResourceExhaustion: a buffer could not be allocated for one sample.
	KindResourceExhaustion
	// KindFrameAssembly: one decoded unit could not be turned into a frame.
	KindFrameAssembly
	// KindFaulted: a retry bound was exceeded. The decoder must be recreated.
	KindFaulted
	// KindShutDown: the decoder was shut down.
	KindShutDown
)

func (k Kind) String() string {
	switch k {
	case KindFatalConfig:
		return "fatal-config"
	case KindFatalInit:
		return "fatal-init"
	case KindTransportUnavailable:
		return "transport-unavailable"
	case KindRecoverableFallback:
		return "recoverable-fallback"
	case KindTransientRetry:
		return "transient-retry"
	case KindResourceExhaustion:
		return "resource-exhaustion"
	case KindFrameAssembly:
		return "frame-assembly"
	case KindFaulted:
		return "faulted"
	case KindShutDown:
		return "shut-down"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	for k := KindFatalConfig; k <= KindShutDown; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Fatal reports whether the decoder cannot continue after an error of this kind.
func (k Kind) Fatal() bool {
	switch k {
	case KindFatalConfig, KindFatalInit, KindTransportUnavailable, KindFaulted, KindShutDown:
		return true
	}
	return false
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrFatalConfig          = &Error{Kind: KindFatalConfig}
	ErrFatalInit            = &Error{Kind: KindFatalInit}
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable}
	ErrRecoverableFallback  = &Error{Kind: KindRecoverableFallback}
	ErrTransientRetry       = &Error{Kind: KindTransientRetry}
	ErrOutOfMemory          = &Error{Kind: KindResourceExhaustion}
	ErrFrameAssembly        = &Error{Kind: KindFrameAssembly}
	ErrFaulted              = &Error{Kind: KindFaulted}
	ErrShutDown             = &Error{Kind: KindShutDown}
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Errorf builds an *Error of kind k for operation op.
func Errorf(k Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind k.
func Wrap(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
