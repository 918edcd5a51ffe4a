package transfer

import (
	"errors"
	"fmt"

	"github.com/user/remotevideo/pkg/media"
)

// PackPlanar copies buf into a region from alloc and releases buf. On
// failure buf is left untouched and still owned by the caller. A failed or
// short allocation yields media.ErrOutOfMemory.
func PackPlanar(alloc Allocator, buf *media.PlanarBuffer) (*media.PlanarBuffer, error) {
	src := buf.Bytes()
	if len(src) == 0 {
		return nil, errors.New("transfer: planar buffer has no data")
	}
	region, err := alloc.Alloc(len(src))
	if err != nil {
		return nil, media.Wrap(media.KindResourceExhaustion, "transfer.PackPlanar", err)
	}
	if region.Len() < len(src) {
		region.Release()
		return nil, media.Errorf(media.KindResourceExhaustion, "transfer.PackPlanar", "region holds %d bytes, need %d", region.Len(), len(src))
	}
	copy(region.Bytes(), src)
	buf.Release()
	return buf.Clone(region), nil
}

// CopyOut copies a received buffer onto the heap and releases its region.
// The returned buffer has the same plane layout.
func CopyOut(buf *media.PlanarBuffer) (*media.PlanarBuffer, error) {
	src := buf.Bytes()
	if src == nil {
		return nil, fmt.Errorf("transfer: received buffer has no data")
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	buf.Release()
	return buf.Clone(media.NewHeapMemory(dst, nil)), nil
}
