package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/remotevideo/pkg/ports"
)

func TestWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelWarn, &buf)

	log.Debug("hidden %d", 1)
	log.Info("hidden too")
	log.Warn("dropping %d frames", 3)
	log.WithComponent("decoder").Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below the level were written: %q", out)
	}
	if !strings.Contains(out, "dropping 3 frames\n") {
		t.Errorf("warning missing: %q", out)
	}
	if !strings.Contains(out, "[decoder] boom\n") {
		t.Errorf("component tag missing: %q", out)
	}
}

func TestQuietLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelQuiet, &buf)
	log.Error("nothing")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}
