// Package snapshot renders decoded frames as PNG files.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/ports"
)

var (
	// ErrNotPlanar is returned for frames that live on the GPU.
	ErrNotPlanar = errors.New("snapshot: frame has no CPU pixels")
	// ErrShortBuffer is returned when a plane runs past the buffer.
	ErrShortBuffer = errors.New("snapshot: plane exceeds buffer")
)

// Writer saves frames under a directory.
type Writer struct {
	dir      string
	fs       ports.FileSystem
	maxWidth int
}

// New returns a writer. maxWidth <= 0 keeps the decoded width.
func New(dir string, fs ports.FileSystem, maxWidth int) *Writer {
	return &Writer{dir: dir, fs: fs, maxWidth: maxWidth}
}

// Save writes frame as frame-NNNNNN.png and returns the path.
func (w *Writer) Save(index int, frame *media.DecodedFrame) (string, error) {
	buf, ok := frame.Payload.(*media.PlanarBuffer)
	if !ok {
		return "", ErrNotPlanar
	}
	img, err := ToImage(buf)
	if err != nil {
		return "", err
	}
	data, err := EncodePNG(Resize(img, w.maxWidth))
	if err != nil {
		return "", err
	}
	if err := w.fs.MkdirAll(w.dir); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("frame-%06d.png", index))
	if err := w.fs.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// ToImage copies a planar buffer into a 4:2:0 YCbCr image. Samples wider
// than 8 bits keep their most significant byte.
func ToImage(buf *media.PlanarBuffer) (*image.YCbCr, error) {
	data := buf.Bytes()
	y := buf.Planes[0]
	img := image.NewYCbCr(image.Rect(0, 0, y.Width, y.Height), image.YCbCrSubsampleRatio420)
	bps := buf.Format.BytesPerSample()

	dsts := [3][]byte{img.Y, img.Cb, img.Cr}
	strides := [3]int{img.YStride, img.CStride, img.CStride}
	for i, p := range buf.Planes {
		step := (1 + p.Skip) * bps
		last := p.Offset + (p.Height-1)*p.Stride + (p.Width-1)*step + bps
		if p.Width <= 0 || p.Height <= 0 || last > len(data) {
			return nil, fmt.Errorf("%w: plane %d", ErrShortBuffer, i)
		}
		for row := 0; row < p.Height; row++ {
			src := data[p.Offset+row*p.Stride:]
			dst := dsts[i][row*strides[i]:]
			for col := 0; col < p.Width && col < strides[i]; col++ {
				dst[col] = src[col*step+bps-1]
			}
		}
	}
	return img, nil
}

// Resize scales img down to maxWidth keeping the aspect ratio.
func Resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodePNG encodes img.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
