package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bilat/adapter"
	"github.com/pithecene-io/bilat/adapter/redis"
	"github.com/pithecene-io/bilat/adapter/webhook"
	"github.com/pithecene-io/bilat/cli/config"
	"github.com/pithecene-io/bilat/iox"
	"github.com/pithecene-io/bilat/lode"
	"github.com/pithecene-io/bilat/log"
	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/runtime"
	"github.com/pithecene-io/bilat/transport"
)

// shutdownTimeout bounds the final metrics write.
const shutdownTimeout = 10 * time.Second

// ServeCommand returns the serve command, which runs the processor peer.
func ServeCommand() *cli.Command {
	flags := append(PeerFlags(),
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "UDP address to listen on (default: " + defaultListen + ")",
		},
		// Archive flags
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Result archive backend: fs or s3 (archive disabled without --archive-path)",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset ID (default: " + lode.DefaultDataset + ")",
		},
		&cli.StringFlag{
			Name:  "archive-s3-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion event adapter: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint (redis://... or https://...)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel (default: " + redis.DefaultChannel + ")",
		},
		&cli.StringFlag{
			Name:  "adapter-encoding",
			Usage: "Event encoding: json or msgpack (default: json)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts (default: 3)",
		},
	)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the processor: receive images, filter them, send results back",
		Flags:  flags,
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	listen := stringSetting(c, "listen", cfg.Listen, defaultListen)
	archiveChoice := archiveSettings(c, cfg)
	adapterChoice, err := adapterSettings(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	logger, err := buildLogger(c, cfg, "processor", listen, true)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	defer iox.DiscardClose(logger)

	backendName := "none"
	if archiveChoice.path != "" {
		backendName = archiveChoice.backend
	}
	collector := metrics.NewCollector("processor", listen, backendName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := buildArchive(ctx, archiveChoice)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitInvalidInput)
	}
	if archive != nil {
		defer iox.DiscardClose(archive)
	}

	events, err := buildAdapter(adapterChoice)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitInvalidInput)
	}
	if events != nil {
		defer iox.DiscardClose(events)
	}

	tr, err := transport.Listen(listen, transportConfig(c, cfg), logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	defer iox.DiscardClose(tr)

	pcfg := runtime.ProcessorConfig{
		Transport: tr,
		Logger:    logger,
		Collector: collector,
		Adapter:   events,
	}
	// A nil *lode.Archive must not become a non-nil interface.
	if archive != nil {
		pcfg.Archive = archive
	}
	proc, err := runtime.NewProcessor(pcfg)
	if err != nil {
		return err
	}

	serveErr := proc.Serve(ctx)
	writeShutdownMetrics(logger, archive, collector)
	if serveErr != nil {
		return cli.Exit(fmt.Sprintf("processor stopped: %v", serveErr), exitTransport)
	}
	return nil
}

// writeShutdownMetrics logs the final snapshot and, when an archive is
// configured, stores it as a metrics record.
func writeShutdownMetrics(logger *log.Logger, archive *lode.Archive, collector *metrics.Collector) {
	snap := collector.Snapshot()
	logger.Info("processor stopped", snap.Fields())
	if archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := archive.WriteMetrics(ctx, snap, time.Now()); err != nil {
		logger.Warn("failed to archive metrics", map[string]any{"error": err.Error()})
	}
}

// archiveChoice holds merged archive settings.
type archiveChoice struct {
	backend     string
	path        string
	dataset     string
	region      string
	endpoint    string
	s3PathStyle bool
}

func archiveSettings(c *cli.Context, cfg *config.Config) archiveChoice {
	return archiveChoice{
		backend:     stringSetting(c, "archive-backend", cfg.Archive.Backend, config.BackendFS),
		path:        stringSetting(c, "archive-path", cfg.Archive.Path, ""),
		dataset:     stringSetting(c, "archive-dataset", cfg.Archive.Dataset, lode.DefaultDataset),
		region:      stringSetting(c, "archive-s3-region", cfg.Archive.Region, ""),
		endpoint:    stringSetting(c, "archive-s3-endpoint", cfg.Archive.Endpoint, ""),
		s3PathStyle: boolSetting(c, "archive-s3-path-style", cfg.Archive.S3PathStyle),
	}
}

// buildArchive returns nil when no archive path is configured.
func buildArchive(ctx context.Context, ac archiveChoice) (*lode.Archive, error) {
	if ac.path == "" {
		return nil, nil
	}
	lcfg := lode.Config{Dataset: ac.dataset}

	switch ac.backend {
	case config.BackendFS, "":
		return lode.NewFSArchive(lcfg, ac.path)
	case config.BackendS3:
		bucket, prefix := lode.ParseS3Path(ac.path)
		return lode.NewS3Archive(ctx, lcfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       ac.region,
			Endpoint:     ac.endpoint,
			UsePathStyle: ac.s3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q (must be fs or s3)", ac.backend)
	}
}

// adapterChoice holds merged adapter settings.
type adapterChoice struct {
	kind     string
	url      string
	channel  string
	encoding adapter.Encoding
	headers  map[string]string
	timeout  time.Duration
	retries  *int
}

func adapterSettings(c *cli.Context, cfg *config.Config) (adapterChoice, error) {
	encoding, err := adapter.ParseEncoding(stringSetting(c, "adapter-encoding", cfg.Adapter.Encoding, ""))
	if err != nil {
		return adapterChoice{}, err
	}
	ac := adapterChoice{
		kind:     stringSetting(c, "adapter", cfg.Adapter.Type, ""),
		url:      stringSetting(c, "adapter-url", cfg.Adapter.URL, ""),
		channel:  stringSetting(c, "adapter-channel", cfg.Adapter.Channel, ""),
		encoding: encoding,
		headers:  cfg.Adapter.Headers,
		timeout:  durationSetting(c, "adapter-timeout", cfg.Adapter.Timeout.Duration, 0),
		retries:  cfg.Adapter.Retries,
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		ac.retries = &n
	}
	if ac.retries != nil && *ac.retries < 0 {
		return adapterChoice{}, fmt.Errorf("adapter retries must not be negative, got %d", *ac.retries)
	}
	return ac, nil
}

// buildAdapter returns nil when no adapter type is configured.
func buildAdapter(ac adapterChoice) (adapter.Adapter, error) {
	retries := -1
	if ac.retries != nil {
		retries = *ac.retries
	}

	switch ac.kind {
	case "":
		return nil, nil
	case config.AdapterRedis:
		if retries < 0 {
			retries = redis.DefaultRetries
		}
		a, err := redis.New(redis.Config{
			URL:      ac.url,
			Channel:  ac.channel,
			Encoding: ac.encoding,
			Timeout:  ac.timeout,
			Retries:  retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.AdapterWebhook:
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:      ac.url,
			Headers:  ac.headers,
			Encoding: ac.encoding,
			Timeout:  ac.timeout,
			Retries:  retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be redis or webhook)", ac.kind)
	}
}
