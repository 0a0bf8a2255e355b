package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/bilat/wire"
)

// Config represents a bilat.yaml configuration file.
// All values are optional and act as defaults for the serve and request
// commands. CLI flags always override config values.
type Config struct {
	Listen    string          `yaml:"listen"`
	Server    string          `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Adapter   AdapterConfig   `yaml:"adapter"`
}

// TransportConfig holds datagram transport tuning.
type TransportConfig struct {
	ChunkSize  int      `yaml:"chunk_size"`
	SendPause  Duration `yaml:"send_pause"`
	ReadBuffer int      `yaml:"read_buffer"`
}

// LogConfig holds logger defaults.
type LogConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console *bool  `yaml:"console,omitempty"`
}

// ArchiveConfig holds result archive defaults from the config file.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type     string            `yaml:"type"`
	URL      string            `yaml:"url"`
	Channel  string            `yaml:"channel,omitempty"`
	Encoding string            `yaml:"encoding,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  Duration          `yaml:"timeout,omitempty"`
	Retries  *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "1ms".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Archive backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Adapter types.
const (
	AdapterRedis   = "redis"
	AdapterWebhook = "webhook"
)

// Validate checks value ranges and enumerations. Empty values are
// accepted and mean "use the default".
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if n := c.Transport.ChunkSize; n < 0 || n > wire.MaxChunkSize {
		fail("transport.chunk_size %d out of range 1..%d", n, wire.MaxChunkSize)
	}
	if n := c.Transport.ReadBuffer; n != 0 && n < wire.MaxDatagramSize {
		fail("transport.read_buffer %d smaller than max datagram %d", n, wire.MaxDatagramSize)
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			fail("log.level %q", c.Log.Level)
		}
	}
	switch c.Archive.Backend {
	case "", BackendFS:
	case BackendS3:
		if c.Archive.Path == "" {
			fail("archive.path is required for the s3 backend")
		}
	default:
		fail("archive.backend %q (want fs or s3)", c.Archive.Backend)
	}
	switch c.Adapter.Type {
	case "":
	case AdapterRedis, AdapterWebhook:
		if c.Adapter.URL == "" {
			fail("adapter.url is required for adapter type %q", c.Adapter.Type)
		}
	default:
		fail("adapter.type %q (want redis or webhook)", c.Adapter.Type)
	}
	switch c.Adapter.Encoding {
	case "", "json", "msgpack":
	default:
		fail("adapter.encoding %q (want json or msgpack)", c.Adapter.Encoding)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		fail("adapter.retries must not be negative")
	}
	return errors.Join(errs...)
}
