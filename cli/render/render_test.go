package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	RequestID string        `json:"request_id" yaml:"request_id"`
	Outcome   string        `json:"outcome" yaml:"outcome"`
	Width     int           `json:"width" yaml:"width"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Secret    string        `json:"-" yaml:"-"`
	Path      *string       `json:"path,omitempty" yaml:"path,omitempty"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
				t.Errorf("error should list valid formats, got: %v", err)
			}
		})
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, &buf)
	if err := r.Render(sample{RequestID: "abc", Outcome: "success", Secret: "hidden"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, `"request_id": "abc"`) {
		t.Errorf("JSON output missing request_id: %s", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("JSON output leaked ignored field: %s", got)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, &buf)
	if err := r.Render(map[string]string{"version": "1.0.0"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := buf.String(); got != "version: 1.0.0\n" {
		t.Errorf("YAML output = %q", got)
	}
}

func TestRenderer_TableStruct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	path := "datasets/bilat/x"
	err := r.Render(&sample{
		RequestID: "abc",
		Outcome:   "success",
		Width:     10,
		Duration:  1500 * time.Millisecond,
		Secret:    "hidden",
		Path:      &path,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"request_id:", "abc", "width:", "10", "duration:", "1.5s", "path:", path} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden") || strings.Contains(got, "secret") {
		t.Errorf("table output leaked ignored field:\n%s", got)
	}
}

func TestRenderer_TableMapSorted(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	if err := r.Render(map[string]any{"zeta": 1, "alpha": "a", "mid": nil}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "alpha:") || !strings.HasPrefix(lines[2], "zeta:") {
		t.Errorf("expected sorted keys, got %q", lines)
	}
}

func TestRenderer_TableSlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	err := r.Render([]sample{
		{RequestID: "a", Outcome: "success"},
		{RequestID: "b", Outcome: "rejected"},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if !strings.HasPrefix(lines[0], "request_id") {
		t.Errorf("header row = %q", lines[0])
	}
	if !strings.Contains(lines[2], "rejected") {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestRenderer_TableEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	if err := r.Render([]sample{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("expected '(no results)', got: %s", buf.String())
	}
}

func TestRenderer_UnknownFormat(t *testing.T) {
	r := NewRendererWithWriter(Format("xml"), &bytes.Buffer{})
	if err := r.Render("x"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDefaultFormat_NonTTY(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := DefaultFormat(f); got != FormatJSON {
		t.Errorf("DefaultFormat(file) = %v, want json", got)
	}
}
