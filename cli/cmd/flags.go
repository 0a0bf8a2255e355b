// Package cmd provides CLI commands for the bilat binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared flags. Values left unset fall back to the config file, then to
// the defaults below.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// ConfigFlag points at an optional bilat.yaml.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to bilat.yaml config file",
		EnvVars: []string{"BILAT_CONFIG"},
	}

	// LogLevelFlag sets the minimum log level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error (default: info)",
	}

	// LogFileFlag enables the daily log file. "-" uses $TMPDIR/bilat.log.
	LogFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Also log to this file (\"-\" for $TMPDIR/bilat.log)",
	}

	// ChunkSizeFlag overrides the fragment chunk size.
	ChunkSizeFlag = &cli.IntFlag{
		Name:  "chunk-size",
		Usage: "Maximum chunk bytes per datagram (default: 60000)",
	}

	// SendPauseFlag overrides the inter-fragment pause.
	SendPauseFlag = &cli.DurationFlag{
		Name:  "send-pause",
		Usage: "Pause between fragments of one payload (default: 1ms)",
	}
)

// PeerFlags returns the flags shared by serve and request.
func PeerFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFileFlag,
		ChunkSizeFlag,
		SendPauseFlag,
	}
}

// Default addresses.
const (
	defaultListen  = "0.0.0.0:8080"
	defaultServer  = "127.0.0.1:8080"
	defaultTimeout = 60 * time.Second
)
