package ffmpegtransform

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/user/remotevideo/pkg/media"
)

const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
)

func ivfFourCC(c media.Codec) string {
	switch c {
	case media.CodecVP8:
		return "VP80"
	case media.CodecVP9:
		return "VP90"
	default:
		return "AV01"
	}
}

// writeIVFHeader writes the file header. Timestamps are in microseconds.
func writeIVFHeader(w io.Writer, c media.Codec, size media.Size) error {
	var h [ivfHeaderSize]byte
	copy(h[0:4], "DKIF")
	binary.LittleEndian.PutUint16(h[4:], 0)
	binary.LittleEndian.PutUint16(h[6:], ivfHeaderSize)
	copy(h[8:12], ivfFourCC(c))
	binary.LittleEndian.PutUint16(h[12:], uint16(size.Width))
	binary.LittleEndian.PutUint16(h[14:], uint16(size.Height))
	binary.LittleEndian.PutUint32(h[16:], 1000000)
	binary.LittleEndian.PutUint32(h[20:], 1)
	_, err := w.Write(h[:])
	return err
}

// ivfFrame prefixes data with an IVF frame header.
func ivfFrame(data []byte, pts time.Duration) []byte {
	buf := make([]byte, ivfFrameHeaderSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(data)))
	binary.LittleEndian.PutUint64(buf[4:], uint64(pts.Microseconds()))
	copy(buf[ivfFrameHeaderSize:], data)
	return buf
}
