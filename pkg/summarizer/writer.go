package summarizer

import (
	"fmt"

	"github.com/user/remotevideo/pkg/ports"
)

// Writer renders summaries and stores them through a ports.FileSystem.
type Writer struct {
	formatter Formatter
	fs        ports.FileSystem
}

func NewWriter(formatter Formatter, fs ports.FileSystem) *Writer {
	return &Writer{formatter: formatter, fs: fs}
}

// Write renders summary and writes it to path.
func (w *Writer) Write(path string, summary *Summary) error {
	content, err := w.formatter.Format(summary)
	if err != nil {
		return fmt.Errorf("summarizer: format %s: %w", path, err)
	}
	if err := w.fs.WriteFile(path, content); err != nil {
		return fmt.Errorf("summarizer: write %s: %w", path, err)
	}
	return nil
}
