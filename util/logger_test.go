package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(verbosity int, buf *bytes.Buffer) *Logger {
	l := NewLogger(verbosity)
	l.SetOutput(buf)
	l.SetTimestamps(false)
	l.SetJSON(false)
	return l
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(3, &buf) // debug level

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), output)
	}

	wantPrefixes := []string{"[ERR]", "[WRN]", "[INF]", "[VRB]", "[DBG]"}
	for i, prefix := range wantPrefixes {
		if !strings.Contains(lines[i], prefix) {
			t.Errorf("line %d %q missing prefix %q", i, lines[i], prefix)
		}
	}
}

func TestLogger_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(0, &buf) // quiet

	l.Info("should not appear")
	l.Verbose("should not appear")
	l.Debug("should not appear")
	l.Event("bind_success", map[string]interface{}{"port": 1})
	l.Error("always appears")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 {
		t.Errorf("expected 1 line in quiet mode, got %d:\n%s", len(lines), output)
	}
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(1, &buf)
	l.SetTimestamps(true)

	l.Info("test")

	output := buf.String()
	// Timestamp format is "HH:MM:SS.mmm"
	if !strings.Contains(output, ":") || len(output) < 15 {
		t.Errorf("expected timestamp prefix, got %q", output)
	}
}

func TestLogger_WarnLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(1, &buf) // normal

	l.Warn("warning message")

	if !strings.Contains(buf.String(), "[WRN]") {
		t.Errorf("expected [WRN] prefix, got %q", buf.String())
	}
}

func TestLogger_EventJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf) // not a terminal: JSON lines
	l.SetTimestamps(false)

	l.Event("bind_success", map[string]interface{}{"port": 8002})

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["event"] != "bind_success" {
		t.Errorf("event = %v, want bind_success", got["event"])
	}
	if got["port"] != float64(8002) {
		t.Errorf("port = %v, want 8002", got["port"])
	}
	if _, ok := got["level"]; ok {
		t.Errorf("events carry no level: %v", got)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	child := l.With("loop", "boss-0")
	child.Info("tick")
	l.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"loop":"boss-0"`) {
		t.Errorf("child line missing field: %s", lines[0])
	}
	if strings.Contains(lines[1], "loop") {
		t.Errorf("parent line must not inherit child fields: %s", lines[1])
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Error("discarded")
	l.Event("x", nil)
	if l.Level() != LogQuiet {
		t.Errorf("level = %v, want quiet", l.Level())
	}
}
