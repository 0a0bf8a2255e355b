// Package main provides the bilat CLI entrypoint.
//
// Usage:
//
//	bilat serve   [--listen addr] [options]
//	bilat request --in image [--server addr] [options]
//	bilat version
//
// Exit codes for request:
//   - 0: success
//   - 1: the processor reported an error
//   - 2: transport failure or timeout
//   - 3: invalid input
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bilat/cli/cmd"
	"github.com/pithecene-io/bilat/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "bilat",
		Usage:          "Bilateral filtering over UDP",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.RequestCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for anything it recognized.
		os.Exit(1)
	}
}

// exitErrHandler prints the error, if it has a real message, and exits
// with the code carried by cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus extracts the exit code and the message worth printing.
// cli.Exit("", N) reports "exit status N", which is not printed.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
