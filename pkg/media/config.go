package media

import "math"

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Area returns Width*Height, or -1 when either side is negative or the
// product does not fit in an int64.
func (s Size) Area() int64 {
	if s.Width < 0 || s.Height < 0 {
		return -1
	}
	w, h := int64(s.Width), int64(s.Height)
	if h != 0 && w > math.MaxInt64/h {
		return -1
	}
	return w * h
}

// Rect is a rectangle inside a frame.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Size returns the rectangle dimensions.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// DecoderConfig describes a video stream. It is fixed when a decoder is
// constructed.
type DecoderConfig struct {
	Codec              Codec
	MimeType           string
	CodedSize          Size
	DisplaySize        Size
	Picture            Rect
	ColorSpace         ColorSpace
	LowLatency         bool
	HardwareDisallowed bool
	ExtraData          []byte
}

// PictureRect returns Picture, or the full coded area when Picture is empty.
func (c DecoderConfig) PictureRect() Rect {
	if c.Picture.Width > 0 && c.Picture.Height > 0 {
		return c.Picture
	}
	return Rect{Width: c.CodedSize.Width, Height: c.CodedSize.Height}
}

// Options modify how a decoder is created.
type Options uint32

const (
	OptionLowLatency Options = 1 << iota
	OptionHardwareDecoderNotAllowed
)

// Has reports whether all bits of o2 are set.
func (o Options) Has(o2 Options) bool {
	return o&o2 == o2
}

// WantsLowLatency reports whether the config or options ask for low latency.
func (c DecoderConfig) WantsLowLatency(opts Options) bool {
	return c.LowLatency || opts.Has(OptionLowLatency)
}

// HardwareAllowed reports whether neither the config nor the options forbid
// a hardware decoder.
func (c DecoderConfig) HardwareAllowed(opts Options) bool {
	return !c.HardwareDisallowed && !opts.Has(OptionHardwareDecoderNotAllowed)
}

// HardwareCapability describes what the compositor on the far side of the GPU
// bridge can accept.
type HardwareCapability struct {
	CompositorID               string
	SupportsSharedTexture      bool
	SupportsRequiredAPIVersion bool
}
