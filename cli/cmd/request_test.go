package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bilat/imagecodec"
	"github.com/pithecene-io/bilat/runtime"
	"github.com/pithecene-io/bilat/transport"
	"github.com/pithecene-io/bilat/types"
)

// runApp runs the CLI in-process. Exit codes surface as cli.ExitCoder
// errors instead of terminating the test binary.
func runApp(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.App{
		Name:           "bilat",
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			RequestCommand(),
			VersionCommand("test"),
		},
	}
	return app.Run(append([]string{"bilat"}, args...))
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// startServer runs a processor on a loopback port until the test ends.
func startServer(t *testing.T) net.Addr {
	t.Helper()
	tr, err := transport.Listen("127.0.0.1:0", transport.Config{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	proc, err := runtime.NewProcessor(runtime.ProcessorConfig{Transport: tr})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = proc.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = tr.Close()
	})
	return tr.LocalAddr()
}

func writeImage(t *testing.T, w, h int) string {
	t.Helper()
	buf := types.NewPixelBuffer(w, h)
	for i := range buf.Data {
		buf.Data[i] = byte(i * 7)
	}
	data, err := imagecodec.EncodePNG(buf)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "in.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRequest_EndToEnd(t *testing.T) {
	server := startServer(t)
	in := writeImage(t, 24, 16)
	out := filepath.Join(t.TempDir(), "out.png")
	reportPath := filepath.Join(t.TempDir(), "report.json")

	err := runApp(t, "request",
		"--server", server.String(),
		"--bind", "127.0.0.1:0",
		"--in", in,
		"--out", out,
		"--mode", "multi",
		"--workers", "3",
		"--diameter", "3",
		"--format", "json",
		"--log-level", "error",
		"--timeout", "10s",
		"--report", reportPath,
	)
	if code := exitCode(err); code != exitSuccess {
		t.Fatalf("exit code %d: %v", code, err)
	}

	var report runtime.RequestReport
	raw, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("invalid report: %v", err)
	}
	if report.Status != "ok" || report.Workers != 3 || report.ExitCode != exitSuccess {
		t.Errorf("report = %+v", report)
	}
	// Progress frames may lose the race with the result; only order is checked.
	for i := 1; i < len(report.Progress); i++ {
		if report.Progress[i] <= report.Progress[i-1] {
			t.Errorf("progress not strictly increasing: %v", report.Progress)
		}
	}
	if report.Metrics == nil || report.Metrics.PayloadsSent != 1 {
		t.Errorf("metrics = %+v", report.Metrics)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	buf, format, err := imagecodec.Decode(data)
	if err != nil {
		t.Fatalf("output is not a valid image: %v", err)
	}
	if format != "png" || buf.Width != 24 || buf.Height != 16 {
		t.Errorf("output = %s %dx%d", format, buf.Width, buf.Height)
	}
	for i := 3; i < len(buf.Data); i += 4 {
		if buf.Data[i] != 255 {
			t.Fatalf("alpha at %d = %d, want 255", i, buf.Data[i])
		}
	}
}

func TestRequest_InvalidInputExitCode(t *testing.T) {
	in := writeImage(t, 4, 4)
	corrupt := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"bad mode", []string{"--in", in, "--mode", "turbo"}},
		{"even diameter", []string{"--in", in, "--diameter", "4"}},
		{"zero workers", []string{"--in", in, "--workers", "0"}},
		{"negative sigma", []string{"--in", in, "--sigma-color", "-1"}},
		{"missing file", []string{"--in", filepath.Join(t.TempDir(), "missing.png")}},
		{"corrupt image", []string{"--in", corrupt}},
		{"bad format", []string{"--in", in, "--format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"request", "--server", "127.0.0.1:9", "--log-level", "error"}, tt.args...)
			if code := exitCode(runApp(t, args...)); code != exitInvalidInput {
				t.Errorf("exit code = %d, want %d", code, exitInvalidInput)
			}
		})
	}
}

func TestRequest_TimeoutExitCode(t *testing.T) {
	// A bound socket that never answers.
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()

	in := writeImage(t, 4, 4)
	err = runApp(t, "request",
		"--server", silent.LocalAddr().String(),
		"--bind", "127.0.0.1:0",
		"--in", in,
		"--out", filepath.Join(t.TempDir(), "out.png"),
		"--format", "json",
		"--log-level", "error",
		"--timeout", "200ms",
	)
	if code := exitCode(err); code != exitTransport {
		t.Errorf("exit code = %d, want %d", code, exitTransport)
	}
}

func TestRequest_ConfigFileServer(t *testing.T) {
	server := startServer(t)
	cfgPath := filepath.Join(t.TempDir(), "bilat.yaml")
	yaml := "server: " + server.String() + "\ntransport:\n  chunk_size: " + strconv.Itoa(512) + "\nlog:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	in := writeImage(t, 20, 20)
	out := filepath.Join(t.TempDir(), "out.png")
	err := runApp(t, "request",
		"--config", cfgPath,
		"--bind", "127.0.0.1:0",
		"--in", in,
		"--out", out,
		"--mode", "single",
		"--diameter", "5",
		"--format", "yaml",
		"--timeout", "10s",
	)
	if code := exitCode(err); code != exitSuccess {
		t.Fatalf("exit code %d: %v", code, err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestVersion(t *testing.T) {
	for _, format := range []string{"json", "yaml", "table"} {
		if err := runApp(t, "version", "--format", format); err != nil {
			t.Errorf("version --format %s: %v", format, err)
		}
	}
	if code := exitCode(runApp(t, "version", "--format", "xml")); code != exitInvalidInput {
		t.Errorf("invalid format exit code = %d", code)
	}
}
