package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("processor", "0.0.0.0:8080", &buf)

	l.Info("payload received", map[string]any{"bytes": 42})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["role"] != "processor" {
		t.Errorf("role = %v, want processor", entry["role"])
	}
	if entry["instance"] != "0.0.0.0:8080" {
		t.Errorf("instance = %v", entry["instance"])
	}
	if entry["message"] != "payload received" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["bytes"] != float64(42) {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Role: "requester", Level: "warn", Console: true, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)
	l.Error("shown", nil)

	if got := len(decodeLines(t, &buf)); got != 2 {
		t.Errorf("got %d lines, want 2", got)
	}
}

func TestLogger_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestLogger_FileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bilat.log")
	var buf bytes.Buffer
	l, err := New(Options{Role: "processor", Level: "debug", File: path, Console: true, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("received part", map[string]any{"part": 1})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "received part") {
		t.Errorf("log file missing entry: %q", data)
	}
	if !strings.Contains(buf.String(), "received part") {
		t.Errorf("console missing entry: %q", buf.String())
	}
}

func TestOpenDailyFile_TruncatesPreviousDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bilat.log")
	if err := os.WriteFile(path, []byte("old entry\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	yesterday := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, yesterday, yesterday); err != nil {
		t.Fatal(err)
	}

	f, err := OpenDailyFile(path, time.Now())
	if err != nil {
		t.Fatalf("OpenDailyFile: %v", err)
	}
	f.Close()

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("file not truncated: %q", data)
	}
}

func TestOpenDailyFile_AppendsSameDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bilat.log")
	if err := os.WriteFile(path, []byte("today\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenDailyFile(path, time.Now())
	if err != nil {
		t.Fatalf("OpenDailyFile: %v", err)
	}
	if _, err := f.WriteString("more\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "today\nmore\n" {
		t.Errorf("content = %q", data)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("processor", "", &buf).With(map[string]any{"request_id": "abc"})
	l.Info("run started", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["request_id"] != "abc" {
		t.Errorf("lines = %v", lines)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded", nil)
	l.Sugar().Infof("discarded %d", 1)
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
