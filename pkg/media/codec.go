// Package media defines the data model shared by the decoding pipeline:
// stream configuration, compressed samples, decoded frames and the payloads
// that carry their pixels across the actor boundary.
package media

import "strings"

// Codec identifies a compressed video format.
type Codec string

const (
	CodecUnknown Codec = ""
	CodecH264    Codec = "h264"
	CodecVP8     Codec = "vp8"
	CodecVP9     Codec = "vp9"
	CodecAV1     Codec = "av1"
)

// String returns the codec name.
func (c Codec) String() string {
	if c == CodecUnknown {
		return "unknown"
	}
	return string(c)
}

// ParseCodec maps a MIME type, RFC 6381 codec string or short name to a Codec.
// Parameters after ';' are ignored unless they carry a codecs= list.
func ParseCodec(s string) Codec {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "codecs="); i >= 0 {
		list := strings.Trim(s[i+len("codecs="):], `"' `)
		if c := parseCodecTag(strings.SplitN(list, ",", 2)[0]); c != CodecUnknown {
			return c
		}
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "video/avc", "video/h264", "h264", "avc", "avc1", "avc3":
		return CodecH264
	case "video/vp8", "vp8":
		return CodecVP8
	case "video/vp9", "vp9", "vp09":
		return CodecVP9
	case "video/av1", "av1", "av01":
		return CodecAV1
	}
	return parseCodecTag(s)
}

func parseCodecTag(tag string) Codec {
	tag = strings.TrimSpace(tag)
	switch {
	case strings.HasPrefix(tag, "avc1"), strings.HasPrefix(tag, "avc3"):
		return CodecH264
	case strings.HasPrefix(tag, "vp09"), tag == "vp9":
		return CodecVP9
	case strings.HasPrefix(tag, "vp08"), tag == "vp8":
		return CodecVP8
	case strings.HasPrefix(tag, "av01"):
		return CodecAV1
	}
	return CodecUnknown
}

// PixelFormat is the memory layout a transform writes decoded pixels in.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatYV12
	FormatI420
	FormatNV12
	FormatP010
	FormatP016
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYV12:
		return "yv12"
	case FormatI420:
		return "i420"
	case FormatNV12:
		return "nv12"
	case FormatP010:
		return "p010"
	case FormatP016:
		return "p016"
	default:
		return "unknown"
	}
}

// Layout reports whether chroma is stored as two planes or one interleaved plane.
func (f PixelFormat) Layout() Layout {
	switch f {
	case FormatNV12, FormatP010, FormatP016:
		return LayoutSemiPlanar
	default:
		return LayoutPlanar
	}
}

// BytesPerSample is the container size of one luma or chroma sample.
func (f PixelFormat) BytesPerSample() int {
	switch f {
	case FormatP010, FormatP016:
		return 2
	default:
		return 1
	}
}

// Depth is the color depth reported to consumers for this format.
func (f PixelFormat) Depth() ColorDepth {
	if f.BytesPerSample() == 2 {
		return ColorDepth16
	}
	return ColorDepth8
}

// Layout of the chroma planes.
type Layout int

const (
	LayoutPlanar Layout = iota
	LayoutSemiPlanar
)

func (l Layout) String() string {
	if l == LayoutSemiPlanar {
		return "semi-planar"
	}
	return "planar"
}

// ColorSpace is the YUV matrix of a stream.
type ColorSpace int

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceBT601
	ColorSpaceBT709
	ColorSpaceBT2020
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT601:
		return "bt601"
	case ColorSpaceBT709:
		return "bt709"
	case ColorSpaceBT2020:
		return "bt2020"
	default:
		return "unknown"
	}
}

// ColorSpaceFromMatrix maps ISO/IEC 23091-4 matrix coefficients to a ColorSpace.
func ColorSpaceFromMatrix(mc int) ColorSpace {
	switch mc {
	case 1:
		return ColorSpaceBT709
	case 5, 6:
		return ColorSpaceBT601
	case 9, 10:
		return ColorSpaceBT2020
	default:
		return ColorSpaceUnknown
	}
}

// ColorDepth in bits per sample.
type ColorDepth int

const (
	ColorDepth8  ColorDepth = 8
	ColorDepth10 ColorDepth = 10
	ColorDepth12 ColorDepth = 12
	ColorDepth16 ColorDepth = 16
)
