package media

import "time"

// SampleMeta carries codec metadata discovered while parsing a sample.
type SampleMeta struct {
	ColorSpace ColorSpace
}

// CompressedSample is one encoded access unit. Times have microsecond
// precision across the actor link; finer parts are truncated.
type CompressedSample struct {
	Data       []byte
	Time       time.Duration
	Duration   time.Duration
	DecodeTime time.Duration
	Keyframe   bool
	Offset     int64
	Meta       *SampleMeta
}

// End returns the presentation end time.
func (s *CompressedSample) End() time.Duration {
	return s.Time + s.Duration
}
