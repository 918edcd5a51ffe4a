package ports

// Telemetry event names.
const (
	EventHardwareFallback    = "hardware_fallback"
	EventNullOutputRecovered = "null_output_recovered"
	EventDenylistMatched     = "denylist_matched"
	EventNullOutputSamples   = "null_output_samples"
	EventFrameDropped        = "frame_dropped"
)

// Telemetry records fire-and-forget counters.
type Telemetry interface {
	RecordEvent(name string, value int)
}
