package summarizer

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		if fn != nil {
			f.translate = fn
		}
	}
}

// WithVersion adds the tool version to the footer.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// NewMarkdownFormatter creates a formatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) ([]byte, error) {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Decode Summary"))

	fmt.Fprintf(&b, "## %s\n\n", t("Source"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("File"), s.Source.Path)
	row(&b, t("Codec"), s.Source.Codec)
	row(&b, t("Coded Size"), fmt.Sprintf("%dx%d", s.Source.Width, s.Source.Height))
	row(&b, t("Frame Rate"), fmt.Sprintf("%.2f fps", s.Source.FrameRate))
	row(&b, t("Duration"), fmt.Sprintf("%d ms", s.Source.DurationMs))
	row(&b, t("Samples"), fmt.Sprintf("%d", s.Source.SampleCount))
	row(&b, t("Compressed Size"), formatBytes(s.Source.TotalBytes))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Decoder"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Mode"), s.Decoder.Mode)
	hw := t("Software")
	if s.Decoder.Hardware {
		hw = t("Hardware")
	}
	row(&b, t("Acceleration"), hw)
	if s.Decoder.DeniedModern != "" {
		row(&b, t("Denylisted (modern)"), s.Decoder.DeniedModern)
	}
	if s.Decoder.DeniedLegacy != "" {
		row(&b, t("Denylisted (legacy)"), s.Decoder.DeniedLegacy)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Output"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Frames"), fmt.Sprintf("%d", s.Output.FrameCount))
	row(&b, t("Keyframes"), fmt.Sprintf("%d", s.Output.Keyframes))
	if s.Output.Textures > 0 {
		row(&b, t("GPU Textures"), fmt.Sprintf("%d", s.Output.Textures))
	}
	if s.Output.Format != "" {
		row(&b, t("Pixel Format"), s.Output.Format)
	}
	if s.Output.FrameCount > 0 {
		row(&b, t("Time Range"), fmt.Sprintf("%d - %d ms", s.Output.FirstMs, s.Output.LastMs))
	}
	row(&b, t("Snapshots"), fmt.Sprintf("%d", s.Output.Snapshots))
	row(&b, t("Elapsed"), fmt.Sprintf("%d ms", s.Output.ElapsedMs))
	row(&b, t("Decode Speed"), fmt.Sprintf("%.1f fps", s.Output.DecodeSpeed))
	b.WriteString("\n")

	if len(s.Events) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Telemetry"))
		fmt.Fprintf(&b, "| %s | %s | %s |\n|---|---|---|\n", t("Event"), t("Count"), t("Total"))
		for _, e := range s.Events {
			fmt.Fprintf(&b, "| %s | %d | %d |\n", e.Name, e.Count, e.Sum)
		}
		b.WriteString("\n")
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Errors"))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	footer := fmt.Sprintf("%s %s", t("Generated at"), s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if f.version != "" {
		footer += fmt.Sprintf(" (remotevideo %s)", f.version)
	}
	b.WriteString(footer + "\n")
	return []byte(b.String()), nil
}

func row(b *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, "| %s | %s |\n", label, strings.ReplaceAll(value, "|", `\|`))
}

// formatBytes formats bytes in human-readable form.
func formatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
