package runtime

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/bilat/adapter"
	"github.com/pithecene-io/bilat/imagecodec"
	"github.com/pithecene-io/bilat/lode"
	"github.com/pithecene-io/bilat/log"
	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/transport"
	"github.com/pithecene-io/bilat/types"
	"github.com/pithecene-io/bilat/wire"
)

// ResultArchive stores finished runs. Implemented by *lode.Archive.
type ResultArchive interface {
	Record(ctx context.Context, rec *lode.ResultRecord, image []byte) (string, error)
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Transport is the bound processor socket (required).
	Transport *transport.Transport
	// Coordinator runs the filter. If nil, a default Coordinator is used.
	Coordinator *Coordinator
	// Archive optionally stores results.
	Archive ResultArchive
	// Adapter optionally publishes completion events.
	Adapter adapter.Adapter
	// Logger defaults to a discarding logger.
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Processor answers processing requests received on its transport.
// Each completed request payload is handled on its own goroutine.
type Processor struct {
	transport   *transport.Transport
	coordinator *Coordinator
	archive     ResultArchive
	adapter     adapter.Adapter
	logger      *log.Logger
	collector   *metrics.Collector
	now         func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Transport == nil {
		return nil, errors.New("processor requires a transport")
	}
	p := &Processor{
		transport:   cfg.Transport,
		coordinator: cfg.Coordinator,
		archive:     cfg.Archive,
		adapter:     cfg.Adapter,
		logger:      cfg.Logger,
		collector:   cfg.Collector,
		now:         cfg.Now,
	}
	if p.coordinator == nil {
		p.coordinator = &Coordinator{}
	}
	if p.logger == nil {
		p.logger = log.Nop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Serve receives until ctx is done or the transport is closed. Runs in
// flight when Serve is cancelled still complete and send their results.
func (p *Processor) Serve(ctx context.Context) error {
	p.logger.Info("processor listening", map[string]any{
		"addr": p.transport.LocalAddr().String(),
	})
	return p.transport.ReceiveLoop(ctx, transport.Handlers{
		OnPayload: func(from net.Addr, payload []byte) {
			p.handle(context.WithoutCancel(ctx), from, payload)
		},
	})
}

// run accumulates the state of one request for reporting.
type run struct {
	id      uuid.UUID
	from    net.Addr
	req     *types.ProcessingRequest
	width   int
	height  int
	start   time.Time
	outcome types.Outcome
	err     error
	image   []byte
}

// handle processes one reassembled request payload end to end.
func (p *Processor) handle(ctx context.Context, from net.Addr, payload []byte) {
	r := &run{from: from, start: p.now()}
	r.id, _ = wire.PeekRequestID(payload)

	p.logger.Info("request payload received", map[string]any{
		"from":  from.String(),
		"bytes": len(payload),
	})

	req, err := wire.DecodeRequest(payload)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		r.outcome, r.err = ClassifyFailure(err), err
		p.collector.IncRunRejected()
		p.finish(ctx, r)
		return
	}
	r.req = req
	p.collector.IncRunStarted()

	p.logger.Info("processing request", map[string]any{
		"request_id":  req.ID.String(),
		"mode":        req.Mode.String(),
		"workers":     req.WorkerCount(),
		"diameter":    req.Diameter,
		"sigma_color": req.SigmaColor,
		"sigma_space": req.SigmaSpace,
	})

	src, format, err := imagecodec.Decode(req.Image)
	if err != nil {
		r.outcome, r.err = ClassifyFailure(err), err
		p.finish(ctx, r)
		return
	}
	r.width, r.height = src.Width, src.Height
	if workers := EffectiveWorkers(req, src.Height); workers < req.WorkerCount() {
		p.logger.Warn("worker count capped at image height", map[string]any{
			"request_id": req.ID.String(),
			"requested":  req.WorkerCount(),
			"workers":    workers,
		})
	}
	p.logger.Debug("image decoded", map[string]any{
		"request_id": req.ID.String(),
		"format":     format,
		"width":      src.Width,
		"height":     src.Height,
	})

	out, err := p.coordinator.Run(req, src, func(percent int) {
		if err := p.transport.SendProgress(from, wire.Progress{Percent: percent, RequestID: req.ID}); err != nil {
			p.logger.Warn("progress send failed", map[string]any{
				"request_id": req.ID.String(),
				"percent":    percent,
				"error":      err.Error(),
			})
		}
	})
	if err != nil {
		r.outcome, r.err = ClassifyFailure(err), err
		p.finish(ctx, r)
		return
	}

	encoded, err := imagecodec.EncodePNG(out)
	if err != nil {
		r.outcome, r.err = types.OutcomeCodecError, err
		p.finish(ctx, r)
		return
	}
	r.image = encoded
	r.outcome = types.OutcomeSuccess
	p.finish(ctx, r)
}

// finish answers the requester, then records and publishes the run.
func (p *Processor) finish(ctx context.Context, r *run) {
	result := &types.Result{RequestID: r.id, Status: types.StatusOK, Image: r.image}
	if r.outcome != types.OutcomeSuccess {
		result = &types.Result{RequestID: r.id, Status: types.StatusError, Message: r.err.Error()}
	}

	if err := p.transport.Send(ctx, wire.EncodeResult(result), r.from); err != nil {
		if r.outcome == types.OutcomeSuccess {
			r.outcome, r.err = types.OutcomeSendFailure, err
		}
		p.logger.Error("result send failed", map[string]any{
			"request_id": r.id.String(),
			"to":         r.from.String(),
			"error":      err.Error(),
		})
	}

	switch r.outcome {
	case types.OutcomeSuccess:
		p.collector.IncRunCompleted()
	case types.OutcomeRejected:
	default:
		p.collector.IncRunFailed()
	}

	fields := map[string]any{
		"request_id":  r.id.String(),
		"outcome":     string(r.outcome),
		"duration_ms": p.now().Sub(r.start).Milliseconds(),
	}
	if r.err != nil {
		fields["error"] = r.err.Error()
		p.logger.Warn("request failed", fields)
	} else {
		fields["result_bytes"] = len(r.image)
		p.logger.Info("request completed", fields)
	}

	p.report(ctx, r)
}

// report writes the archive record and publishes the completion event.
// Sink failures are logged and counted; they never affect the requester.
func (p *Processor) report(ctx context.Context, r *run) {
	if p.archive == nil && p.adapter == nil {
		return
	}

	completedAt := p.now()
	rec := &lode.ResultRecord{
		RequestID:   r.id.String(),
		Peer:        r.from.String(),
		Width:       r.width,
		Height:      r.height,
		Outcome:     r.outcome,
		ResultBytes: len(r.image),
		Duration:    completedAt.Sub(r.start),
		CompletedAt: completedAt,
	}
	if r.req != nil {
		rec.Mode = r.req.Mode.String()
		rec.Workers = r.req.WorkerCount()
	}
	if r.err != nil {
		rec.Message = r.err.Error()
	}

	var storagePath string
	if p.archive != nil {
		image := r.image
		if r.outcome != types.OutcomeSuccess {
			image = nil
		}
		path, err := p.archive.Record(ctx, rec, image)
		if err != nil {
			p.collector.IncArchiveWriteFailure()
			p.logger.Error("archive write failed", map[string]any{
				"request_id": rec.RequestID,
				"error":      err.Error(),
			})
		} else {
			p.collector.IncArchiveWriteSuccess()
			storagePath = path
		}
	}

	if p.adapter != nil {
		event := &adapter.RequestCompletedEvent{
			ContractVersion: types.ContractVersion,
			EventType:       adapter.EventTypeRequestCompleted,
			RequestID:       rec.RequestID,
			Peer:            rec.Peer,
			Mode:            rec.Mode,
			Workers:         rec.Workers,
			Width:           rec.Width,
			Height:          rec.Height,
			Outcome:         string(rec.Outcome),
			Message:         rec.Message,
			StoragePath:     storagePath,
			ResultBytes:     rec.ResultBytes,
			Timestamp:       completedAt.UTC().Format(time.RFC3339),
			DurationMs:      rec.Duration.Milliseconds(),
		}
		if err := p.adapter.Publish(ctx, event); err != nil {
			p.collector.IncPublishFailure()
			p.logger.Error("completion publish failed", map[string]any{
				"request_id": rec.RequestID,
				"error":      err.Error(),
			})
		} else {
			p.collector.IncPublishSuccess()
		}
	}
}
