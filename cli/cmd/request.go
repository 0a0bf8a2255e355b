package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bilat/cli/render"
	"github.com/pithecene-io/bilat/cli/tui"
	"github.com/pithecene-io/bilat/imagecodec"
	"github.com/pithecene-io/bilat/iox"
	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/runtime"
	"github.com/pithecene-io/bilat/transport"
	"github.com/pithecene-io/bilat/types"
)

// Exit codes for request (serve reuses the last two).
const (
	exitSuccess      = runtime.ExitCodeCompleted
	exitRemoteError  = runtime.ExitCodeRemoteError
	exitTransport    = runtime.ExitCodeTransport
	exitInvalidInput = runtime.ExitCodeInvalidInput
)

// maxInputBytes caps the input image; the request header stores the
// image length as a 32-bit signed integer.
const maxInputBytes = 1<<31 - 1

// RequestResponse is the rendered outcome of a request.
type RequestResponse struct {
	RequestID  string `json:"request_id" yaml:"request_id"`
	Server     string `json:"server" yaml:"server"`
	Mode       string `json:"mode" yaml:"mode"`
	Workers    int    `json:"workers" yaml:"workers"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	Outcome    string `json:"outcome" yaml:"outcome"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	Output     string `json:"output,omitempty" yaml:"output,omitempty"`
	Bytes      int    `json:"bytes" yaml:"bytes"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// RequestCommand returns the request command, which runs the requester peer
// for a single image.
func RequestCommand() *cli.Command {
	flags := append(PeerFlags(),
		FormatFlag,
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Processor UDP address (default: " + defaultServer + ")",
		},
		&cli.StringFlag{
			Name:  "bind",
			Usage: "Local UDP address to receive on",
			Value: "0.0.0.0:0",
		},
		&cli.StringFlag{
			Name:     "in",
			Aliases:  []string{"i"},
			Usage:    "Input image (png, jpeg, gif, bmp; \"-\" for stdin)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Output PNG path (default: <in>_filtered.png)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Processing mode: single or multi",
			Value: "multi",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Worker count for multi mode",
			Value: goruntime.NumCPU(),
		},
		&cli.IntFlag{
			Name:  "diameter",
			Usage: "Filter window diameter (odd, positive)",
			Value: 9,
		},
		&cli.Float64Flag{
			Name:  "sigma-color",
			Usage: "Range (intensity) sigma",
			Value: 75,
		},
		&cli.Float64Flag{
			Name:  "sigma-space",
			Usage: "Spatial sigma",
			Value: 75,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up waiting for the result after this long",
			Value: defaultTimeout,
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show an interactive progress view",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON request report to this path (\"-\" for stderr)",
		},
	)

	return &cli.Command{
		Name:   "request",
		Usage:  "Send one image to a processor and write the filtered result",
		Flags:  flags,
		Action: requestAction,
	}
}

func requestAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	server := stringSetting(c, "server", cfg.Server, defaultServer)
	serverAddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --server %q: %v", server, err), exitInvalidInput)
	}

	in := c.String("in")
	out := c.String("out")
	if out == "" {
		out = defaultOutputPath(in)
	}

	mode, err := types.ParseMode(c.String("mode"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	image, err := iox.ReadFileLimit(in, maxInputBytes)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read input: %v", err), exitInvalidInput)
	}
	// Decode locally so unreadable input fails fast with exit 3.
	decoded, format, err := imagecodec.Decode(image)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", in, err), exitInvalidInput)
	}

	req := &types.ProcessingRequest{
		ID:               uuid.New(),
		Mode:             mode,
		RequestedWorkers: c.Int("workers"),
		Diameter:         c.Int("diameter"),
		SigmaColor:       c.Float64("sigma-color"),
		SigmaSpace:       c.Float64("sigma-space"),
		Image:            image,
	}
	if err := req.Validate(); err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	useTUI := c.Bool("tui")
	logger, err := buildLogger(c, cfg, "requester", req.ID.String(), !useTUI)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	defer iox.DiscardClose(logger)
	logger.Debug("input decoded", map[string]any{
		"path":   in,
		"format": format,
		"width":  decoded.Width,
		"height": decoded.Height,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("requester", c.String("bind"), "none")
	tr, err := transport.Listen(c.String("bind"), transportConfig(c, cfg), logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	defer iox.DiscardClose(tr)

	requester, err := runtime.NewRequester(runtime.RequesterConfig{
		Transport: tr,
		Server:    serverAddr,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	listenCtx, stopListen := context.WithCancel(ctx)
	listenDone := make(chan error, 1)
	go func() { listenDone <- requester.Listen(listenCtx) }()
	defer func() {
		stopListen()
		<-listenDone
	}()

	submitCtx, cancelSubmit := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancelSubmit()

	info := tui.RequestInfo{
		RequestID: req.ID.String(),
		Server:    serverAddr.String(),
		Mode:      req.Mode.String(),
		Workers:   req.WorkerCount(),
		Width:     decoded.Width,
		Height:    decoded.Height,
	}

	var (
		progressMu sync.Mutex
		progress   []int
	)
	record := func(percent int) {
		progressMu.Lock()
		progress = append(progress, percent)
		progressMu.Unlock()
	}

	start := time.Now()
	var res *types.Result
	if useTUI {
		res, err = submitWithTUI(submitCtx, cancelSubmit, requester, req, info, record)
	} else {
		sugar := logger.Sugar().With("request_id", req.ID.String())
		res, err = requester.Submit(submitCtx, req, func(percent int) {
			record(percent)
			sugar.Infof("progress %d%%", percent)
		})
	}
	elapsed := time.Since(start)

	if path := c.String("report"); path != "" {
		snap := collector.Snapshot()
		progressMu.Lock()
		report := runtime.BuildRequestReport(req, info.Server, res, err, progress, &snap, elapsed)
		progressMu.Unlock()
		if werr := runtime.WriteRequestReport(report, path); werr != nil {
			logger.Warn("failed to write report", map[string]any{"error": werr.Error()})
		}
	}

	resp := RequestResponse{
		RequestID:  info.RequestID,
		Server:     info.Server,
		Mode:       info.Mode,
		Workers:    info.Workers,
		Width:      info.Width,
		Height:     info.Height,
		DurationMs: elapsed.Milliseconds(),
	}

	code := runtime.ExitCodeFor(res, err)
	switch code {
	case exitSuccess:
		if werr := iox.WriteFileAtomic(out, res.Image, 0o644); werr != nil {
			return cli.Exit(fmt.Sprintf("cannot write output: %v", werr), exitInvalidInput)
		}
		resp.Outcome = string(types.OutcomeSuccess)
		resp.Output = out
		resp.Bytes = len(res.Image)
	case exitRemoteError:
		resp.Outcome = types.StatusError.String()
		resp.Message = res.Message
	default:
		resp.Outcome = "transport_error"
		resp.Message = describeTransportError(err)
	}

	logger.Info("request finished", map[string]any{
		"request_id":  resp.RequestID,
		"outcome":     resp.Outcome,
		"duration_ms": resp.DurationMs,
	})
	if rerr := r.Render(resp); rerr != nil {
		return rerr
	}
	if code != exitSuccess {
		return cli.Exit("", code)
	}
	return nil
}

// submitWithTUI runs Submit in the background while the progress view owns
// the terminal. Quitting the view cancels the request.
func submitWithTUI(ctx context.Context, cancel context.CancelFunc, requester *runtime.Requester, req *types.ProcessingRequest, info tui.RequestInfo, onProgress runtime.ProgressFunc) (*types.Result, error) {
	session := tui.NewSession(info, cancel, os.Stderr)

	type outcome struct {
		res *types.Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := requester.Submit(ctx, req, func(percent int) {
			onProgress(percent)
			session.Progress(percent)
		})
		msg := tui.DoneMsg{Elapsed: time.Since(start)}
		switch code := runtime.ExitCodeFor(res, err); code {
		case exitSuccess:
			msg.Outcome = string(types.OutcomeSuccess)
		case exitRemoteError:
			msg.Outcome, msg.Message = types.StatusError.String(), res.Message
		default:
			msg.Outcome, msg.Message = "error", describeTransportError(err)
		}
		session.Finish(msg)
		done <- outcome{res, err}
	}()

	if _, err := session.Run(); err != nil {
		cancel()
		o := <-done
		return o.res, errors.Join(o.err, err)
	}
	o := <-done
	return o.res, o.err
}

func describeTransportError(err error) string {
	switch {
	case err == nil:
		return "no result received"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the processor (datagrams may have been lost)"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}

// defaultOutputPath derives <dir>/<name>_filtered.png from the input path.
func defaultOutputPath(in string) string {
	if in == "-" {
		return "filtered.png"
	}
	base := strings.TrimSuffix(in, filepath.Ext(in))
	return base + "_filtered.png"
}
