package snapshot

import (
	"bytes"
	"errors"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/user/remotevideo/pkg/media"
	"github.com/user/remotevideo/pkg/mocks"
)

// i420 builds a w x h I420 buffer with luma 0x80 and chroma 0x40/0xc0.
func i420(w, h int) *media.PlanarBuffer {
	ySize, cSize := w*h, (w/2)*(h/2)
	data := make([]byte, ySize+2*cSize)
	for i := range data {
		switch {
		case i < ySize:
			data[i] = 0x80
		case i < ySize+cSize:
			data[i] = 0x40
		default:
			data[i] = 0xc0
		}
	}
	buf := &media.PlanarBuffer{Format: media.FormatI420, Memory: media.NewHeapMemory(data, nil)}
	buf.Planes[0] = media.Plane{Stride: w, Width: w, Height: h}
	buf.Planes[1] = media.Plane{Offset: ySize, Stride: w / 2, Width: w / 2, Height: h / 2}
	buf.Planes[2] = media.Plane{Offset: ySize + cSize, Stride: w / 2, Width: w / 2, Height: h / 2}
	return buf
}

func TestToImagePlanar(t *testing.T) {
	img, err := ToImage(i420(8, 4))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Fatalf("bounds %v", img.Bounds())
	}
	c := img.YCbCrAt(5, 3)
	if c.Y != 0x80 || c.Cb != 0x40 || c.Cr != 0xc0 {
		t.Errorf("pixel = %+v", c)
	}
}

func TestToImageSemiPlanar16(t *testing.T) {
	const w, h = 4, 2
	stride := w * 2
	data := make([]byte, stride*h+stride*h/2)
	for i := 0; i < stride*h; i += 2 {
		data[i], data[i+1] = 0x00, 0x90
	}
	for i := stride * h; i < len(data); i += 4 {
		data[i+1], data[i+3] = 0x30, 0xd0
	}
	buf := &media.PlanarBuffer{Format: media.FormatP010, Memory: media.NewHeapMemory(data, nil)}
	buf.Planes[0] = media.Plane{Stride: stride, Width: w, Height: h}
	buf.Planes[1] = media.Plane{Offset: stride * h, Stride: stride, Width: w / 2, Height: h / 2, Skip: 1}
	buf.Planes[2] = media.Plane{Offset: stride*h + 2, Stride: stride, Width: w / 2, Height: h / 2, Skip: 1}

	img, err := ToImage(buf)
	if err != nil {
		t.Fatal(err)
	}
	c := img.YCbCrAt(3, 1)
	if c.Y != 0x90 || c.Cb != 0x30 || c.Cr != 0xd0 {
		t.Errorf("pixel = %+v", c)
	}
}

func TestToImageShortBuffer(t *testing.T) {
	buf := i420(8, 4)
	buf.Memory = media.NewHeapMemory(buf.Bytes()[:20], nil)
	if _, err := ToImage(buf); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("got %v, want ErrShortBuffer", err)
	}
}

func TestResize(t *testing.T) {
	img, err := ToImage(i420(64, 32))
	if err != nil {
		t.Fatal(err)
	}
	if got := Resize(img, 0); got != img {
		t.Error("Resize(0) changed the image")
	}
	if got := Resize(img, 16).Bounds(); got.Dx() != 16 || got.Dy() != 8 {
		t.Errorf("Resize(16) bounds %v", got)
	}
}

func TestSave(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := New("shots", fs, 4)

	path, err := w.Save(7, &media.DecodedFrame{Payload: i420(8, 4)})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join("shots", "frame-000007.png") {
		t.Errorf("path = %q", path)
	}
	data, ok := fs.File(path)
	if !ok {
		t.Fatal("snapshot not written")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("png bounds %v", img.Bounds())
	}

	tex := media.NewTextureHandle(1, "gpu", media.Size{Width: 8, Height: 4}, nil)
	if _, err := w.Save(8, &media.DecodedFrame{Payload: tex}); !errors.Is(err, ErrNotPlanar) {
		t.Errorf("texture frame: got %v", err)
	}
}
