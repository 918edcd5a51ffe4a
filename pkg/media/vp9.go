package media

import "errors"

// ErrShortVP9Frame is returned when a VP9 frame is too short to hold a header.
var ErrShortVP9Frame = errors.New("media: vp9 frame too short")

// VP9Profile reads the profile from the uncompressed header of a VP9 frame.
func VP9Profile(frame []byte) (int, error) {
	if len(frame) < 1 {
		return 0, ErrShortVP9Frame
	}
	b := frame[0]
	if b>>6 != 0x2 {
		return 0, errors.New("media: invalid vp9 frame marker")
	}
	low := int(b>>5) & 1
	high := int(b>>4) & 1
	profile := high<<1 | low
	if profile == 3 && b&0x08 != 0 {
		return 0, errors.New("media: vp9 reserved bit set")
	}
	return profile, nil
}

// VP9ProfileSupported reports whether a decoder can handle profile p.
// Profiles 1 and 3 are non-4:2:0 and are rejected.
func VP9ProfileSupported(p int) bool {
	return p == 0 || p == 2
}
