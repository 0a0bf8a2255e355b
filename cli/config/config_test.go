package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `listen: 0.0.0.0:9000
server: 10.1.2.3:9000

transport:
  chunk_size: 30000
  send_pause: 2ms
  read_buffer: 65536

log:
  level: debug
  file: /var/log/bilat.log
  console: false

archive:
  backend: s3
  dataset: images
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/bilat
  encoding: msgpack
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "listen", cfg.Listen, "0.0.0.0:9000")
	assertEqual(t, "server", cfg.Server, "10.1.2.3:9000")

	if cfg.Transport.ChunkSize != 30000 {
		t.Errorf("chunk_size: got %d", cfg.Transport.ChunkSize)
	}
	if cfg.Transport.SendPause.Duration != 2*time.Millisecond {
		t.Errorf("send_pause: got %v", cfg.Transport.SendPause.Duration)
	}
	if cfg.Transport.ReadBuffer != 65536 {
		t.Errorf("read_buffer: got %d", cfg.Transport.ReadBuffer)
	}

	assertEqual(t, "log.level", cfg.Log.Level, "debug")
	assertEqual(t, "log.file", cfg.Log.File, "/var/log/bilat.log")
	if cfg.Log.Console == nil || *cfg.Log.Console {
		t.Errorf("log.console: expected explicit false, got %v", cfg.Log.Console)
	}

	assertEqual(t, "archive.backend", cfg.Archive.Backend, "s3")
	assertEqual(t, "archive.dataset", cfg.Archive.Dataset, "images")
	assertEqual(t, "archive.path", cfg.Archive.Path, "my-bucket/prefix")
	assertEqual(t, "archive.region", cfg.Archive.Region, "us-east-1")
	assertEqual(t, "archive.endpoint", cfg.Archive.Endpoint, "https://example.com")
	if !cfg.Archive.S3PathStyle {
		t.Error("expected archive.s3_path_style=true")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/bilat")
	assertEqual(t, "adapter.encoding", cfg.Adapter.Encoding, "msgpack")
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout: got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("adapter.retries: got %v", cfg.Adapter.Retries)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n  \n",
		"comments":   "# a comment\n# another\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Listen != "" || cfg.Log.Console != nil {
				t.Errorf("expected zero config, got %+v", cfg)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("zero config should validate: %v", err)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "listen: [unterminated\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Fatalf("expected invalid YAML error, got %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BILAT_TEST_LISTEN", "127.0.0.1:7000")
	cfg, err := Load(writeTemp(t, "listen: ${BILAT_TEST_LISTEN}\nlog:\n  level: ${BILAT_TEST_LEVEL:-warn}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "listen", cfg.Listen, "127.0.0.1:7000")
	assertEqual(t, "log.level", cfg.Log.Level, "warn")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := map[string]struct {
		yaml string
		key  string
	}{
		"top level": {"listen: :8080\nbogus_key: x\n", "bogus_key"},
		"nested":    {"archive:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %q, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatalf("expected retries=0, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries when omitted, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_Invalid(t *testing.T) {
	for _, v := range []string{"not-a-duration", "-5s"} {
		_, err := Load(writeTemp(t, "transport:\n  send_pause: "+v+"\n"))
		if err == nil {
			t.Errorf("expected error for send_pause %q", v)
		}
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	cfg, err := Load(writeTemp(t, "transport:\n  send_pause: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.SendPause.Duration != 0 {
		t.Errorf("expected zero, got %v", cfg.Transport.SendPause.Duration)
	}
}

func TestConfig_Validate(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"chunk too large", Config{Transport: TransportConfig{ChunkSize: 60001}}, "chunk_size"},
		{"chunk negative", Config{Transport: TransportConfig{ChunkSize: -1}}, "chunk_size"},
		{"read buffer small", Config{Transport: TransportConfig{ReadBuffer: 1024}}, "read_buffer"},
		{"bad level", Config{Log: LogConfig{Level: "loud"}}, "log.level"},
		{"bad backend", Config{Archive: ArchiveConfig{Backend: "gcs"}}, "archive.backend"},
		{"s3 without path", Config{Archive: ArchiveConfig{Backend: BackendS3}}, "archive.path"},
		{"bad adapter", Config{Adapter: AdapterConfig{Type: "kafka"}}, "adapter.type"},
		{"adapter without url", Config{Adapter: AdapterConfig{Type: AdapterRedis}}, "adapter.url"},
		{"bad encoding", Config{Adapter: AdapterConfig{Encoding: "xml"}}, "adapter.encoding"},
		{"negative retries", Config{Adapter: AdapterConfig{Retries: &neg}}, "retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := Config{
		Log:     LogConfig{Level: "loud"},
		Archive: ArchiveConfig{Backend: "gcs"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log.level", "archive.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bilat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
