package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bilat/cli/config"
	"github.com/pithecene-io/bilat/log"
	"github.com/pithecene-io/bilat/transport"
)

// loadConfig reads --config when given. A missing flag yields an empty
// config so every setting falls through to its default.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(ConfigFlag.Name)
	if path == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Precedence for every setting: explicit flag, then config file, then default.

func stringSetting(c *cli.Context, flag, fromFile, def string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if fromFile != "" {
		return fromFile
	}
	return def
}

func intSetting(c *cli.Context, flag string, fromFile, def int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if fromFile != 0 {
		return fromFile
	}
	return def
}

func durationSetting(c *cli.Context, flag string, fromFile, def time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	if fromFile != 0 {
		return fromFile
	}
	return def
}

func boolSetting(c *cli.Context, flag string, fromFile bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return fromFile
}

// transportConfig merges transport flags over the config file. Zero
// values are filled in by transport.New.
func transportConfig(c *cli.Context, cfg *config.Config) transport.Config {
	return transport.Config{
		ChunkSize:      intSetting(c, ChunkSizeFlag.Name, cfg.Transport.ChunkSize, 0),
		SendPause:      durationSetting(c, SendPauseFlag.Name, cfg.Transport.SendPause.Duration, 0),
		ReadBufferSize: cfg.Transport.ReadBuffer,
	}
}

// buildLogger creates the peer logger. console=false keeps stderr free,
// e.g. while the TUI owns the terminal.
func buildLogger(c *cli.Context, cfg *config.Config, role, instance string, console bool) (*log.Logger, error) {
	if cfg.Log.Console != nil && !*cfg.Log.Console {
		console = false
	}
	return log.New(log.Options{
		Role:     role,
		Instance: instance,
		Level:    stringSetting(c, LogLevelFlag.Name, cfg.Log.Level, "info"),
		File:     stringSetting(c, LogFileFlag.Name, cfg.Log.File, ""),
		Console:  console,
	})
}
