package summarizer

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Formatter renders a Summary into report bytes.
type Formatter interface {
	Format(summary *Summary) ([]byte, error)
}

// FormatFunc adapts a function to Formatter.
type FormatFunc func(summary *Summary) ([]byte, error)

func (f FormatFunc) Format(summary *Summary) ([]byte, error) {
	return f(summary)
}

// JSONFormatter renders a Summary as indented JSON for machine consumers.
type JSONFormatter struct{}

func (JSONFormatter) Format(s *Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FormatterFor picks the formatter from the report path: ".json" gets
// JSON, anything else Markdown built with opts.
func FormatterFor(path string, opts ...MarkdownOption) Formatter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSONFormatter{}
	}
	return NewMarkdownFormatter(opts...)
}
