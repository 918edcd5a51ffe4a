package mocks

import (
	"fmt"
	"sync"

	"github.com/user/remotevideo/pkg/ports"
)

// LogEntry is one recorded log line.
type LogEntry struct {
	Level     string
	Component string
	Message   string
}

// Logger is a mock ports.Logger that records formatted messages.
type Logger struct {
	component string
	sink      *logSink
}

type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogger creates a recording logger.
func NewLogger() *Logger {
	return &Logger{sink: &logSink{}}
}

func (l *Logger) record(level, msg string, args []interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, LogEntry{
		Level:     level,
		Component: l.component,
		Message:   fmt.Sprintf(msg, args...),
	})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.record("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.record("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.record("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.record("error", msg, args) }

// WithComponent shares the recorded entries with the parent logger.
func (l *Logger) WithComponent(component string) ports.Logger {
	return &Logger{component: component, sink: l.sink}
}

// Entries returns a copy of everything logged so far.
func (l *Logger) Entries() []LogEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]LogEntry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// Messages returns the messages logged at level.
func (l *Logger) Messages(level string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

var _ ports.Logger = (*Logger)(nil)
