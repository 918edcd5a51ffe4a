// Package summarizer provides summary generation for decode sessions.
package summarizer

import "time"

// Summary contains all data collected during a decode session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`

	Source  SourceInfo  `json:"source"`
	Decoder DecoderInfo `json:"decoder"`
	Output  OutputInfo  `json:"output"`

	// Telemetry events recorded during the session, sorted by name.
	Events []EventStat `json:"events,omitempty"`

	// Errors that ended or degraded the session.
	Errors []string `json:"errors,omitempty"`
}

// SourceInfo describes the input stream.
type SourceInfo struct {
	Path        string  `json:"path"`
	Codec       string  `json:"codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FrameRate   float64 `json:"frame_rate"`
	DurationMs  int64   `json:"duration_ms"`
	SampleCount int     `json:"sample_count"`
	TotalBytes  int64   `json:"total_bytes"`
}

// DecoderInfo describes where and how decoding ran.
type DecoderInfo struct {
	// Mode is "in-process" or "remote".
	Mode         string `json:"mode"`
	Hardware     bool   `json:"hardware"`
	DeniedModern string `json:"denied_modern,omitempty"`
	DeniedLegacy string `json:"denied_legacy,omitempty"`
}

// OutputInfo describes the decoded frames.
type OutputInfo struct {
	FrameCount  int     `json:"frame_count"`
	Keyframes   int     `json:"keyframes"`
	Textures    int     `json:"textures"`
	Format      string  `json:"format,omitempty"`
	FirstMs     int64   `json:"first_ms"`
	LastMs      int64   `json:"last_ms"`
	Snapshots   int     `json:"snapshots"`
	ElapsedMs   int64   `json:"elapsed_ms"`
	DecodeSpeed float64 `json:"decode_speed"` // frames per second of wall time
}

// EventStat is one telemetry event total.
type EventStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Sum   int    `json:"sum"`
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSource sets source information.
func (b *Builder) WithSource(source SourceInfo) *Builder {
	b.summary.Source = source
	return b
}

// WithDecoder sets decoder information.
func (b *Builder) WithDecoder(dec DecoderInfo) *Builder {
	b.summary.Decoder = dec
	return b
}

// WithOutput sets output information.
func (b *Builder) WithOutput(out OutputInfo) *Builder {
	b.summary.Output = out
	return b
}

// WithEvent appends a telemetry total.
func (b *Builder) WithEvent(name string, count, sum int) *Builder {
	b.summary.Events = append(b.summary.Events, EventStat{Name: name, Count: count, Sum: sum})
	return b
}

// WithError records an error message. Nil errors are ignored.
func (b *Builder) WithError(err error) *Builder {
	if err != nil {
		b.summary.Errors = append(b.summary.Errors, err.Error())
	}
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
