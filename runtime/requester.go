package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/bilat/log"
	"github.com/pithecene-io/bilat/transport"
	"github.com/pithecene-io/bilat/types"
	"github.com/pithecene-io/bilat/wire"
)

// ErrRequesterClosed is returned by Submit after Listen has returned.
var ErrRequesterClosed = errors.New("requester is not listening")

// RequesterConfig configures a Requester.
type RequesterConfig struct {
	// Transport is the requester socket (required).
	Transport *transport.Transport
	// Server is the processor address (required).
	Server net.Addr
	// Logger defaults to a discarding logger.
	Logger *log.Logger
}

// pendingRequest is an outstanding request awaiting its result.
type pendingRequest struct {
	id         uuid.UUID
	onProgress ProgressFunc

	// mu serializes progress callbacks and guards lastPercent.
	mu          sync.Mutex
	lastPercent int

	result chan *types.Result
}

// deliverProgress forwards percent if it exceeds every value seen so far.
// Progress frames may be reordered or duplicated in transit.
func (pr *pendingRequest) deliverProgress(percent int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if percent <= pr.lastPercent {
		return
	}
	pr.lastPercent = percent
	if pr.onProgress != nil {
		pr.onProgress(percent)
	}
}

// Requester submits processing requests to one processor over one socket.
// Any number of requests may be outstanding; progress frames and results
// are routed to their request by ID.
type Requester struct {
	transport *transport.Transport
	server    net.Addr
	logger    *log.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingRequest
	closed  bool
}

// NewRequester creates a requester. Call Listen before Submit.
func NewRequester(cfg RequesterConfig) (*Requester, error) {
	if cfg.Transport == nil {
		return nil, errors.New("requester requires a transport")
	}
	if cfg.Server == nil {
		return nil, errors.New("requester requires a server address")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Requester{
		transport: cfg.Transport,
		server:    cfg.Server,
		logger:    logger,
		pending:   make(map[uuid.UUID]*pendingRequest),
	}, nil
}

// Listen receives progress and results until ctx is done or the transport
// is closed. Outstanding Submit calls fail with ErrRequesterClosed when
// Listen returns.
func (r *Requester) Listen(ctx context.Context) error {
	err := r.transport.ReceiveLoop(ctx, transport.Handlers{
		OnPayload:  r.onPayload,
		OnProgress: r.onProgress,
	})

	r.mu.Lock()
	r.closed = true
	for id, pr := range r.pending {
		close(pr.result)
		delete(r.pending, id)
	}
	r.mu.Unlock()
	return err
}

// Pending returns the number of outstanding requests.
func (r *Requester) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Submit sends req and waits for its result. A nil request ID is replaced
// with a fresh one. onProgress receives strictly increasing percentages and
// may be nil. A StatusError result is returned with a nil error; use
// Result.Err to inspect it.
func (r *Requester) Submit(ctx context.Context, req *types.ProcessingRequest, onProgress ProgressFunc) (*types.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	pr := &pendingRequest{
		id:         req.ID,
		onProgress: onProgress,
		result:     make(chan *types.Result, 1),
	}
	if err := r.register(pr); err != nil {
		return nil, err
	}
	defer r.unregister(pr.id)

	r.logger.Info("sending request", map[string]any{
		"request_id": req.ID.String(),
		"server":     r.server.String(),
		"bytes":      len(payload),
		"mode":       req.Mode.String(),
		"workers":    req.WorkerCount(),
	})
	if err := r.transport.Send(ctx, payload, r.server); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-pr.result:
		if !ok {
			return nil, ErrRequesterClosed
		}
		return res, nil
	}
}

func (r *Requester) register(pr *pendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRequesterClosed
	}
	if _, dup := r.pending[pr.id]; dup {
		return fmt.Errorf("request %s already pending", pr.id)
	}
	r.pending[pr.id] = pr
	return nil
}

func (r *Requester) unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// lookup finds the pending request for id. A nil id resolves to the only
// outstanding request, if there is exactly one.
func (r *Requester) lookup(id uuid.UUID) *pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != uuid.Nil {
		return r.pending[id]
	}
	if len(r.pending) != 1 {
		return nil
	}
	for _, pr := range r.pending {
		return pr
	}
	return nil
}

func (r *Requester) onProgress(from net.Addr, p wire.Progress) {
	pr := r.lookup(p.RequestID)
	if pr == nil {
		r.logger.Debug("progress for unknown request dropped", map[string]any{
			"from":       from.String(),
			"request_id": p.RequestID.String(),
			"percent":    p.Percent,
		})
		return
	}
	pr.deliverProgress(p.Percent)
}

func (r *Requester) onPayload(from net.Addr, payload []byte) {
	res, err := wire.DecodeResult(payload)
	if err != nil {
		r.logger.Warn("malformed result discarded", map[string]any{
			"from":  from.String(),
			"bytes": len(payload),
			"error": err.Error(),
		})
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pr, ok := r.pending[res.RequestID]
	if !ok && res.RequestID == uuid.Nil && len(r.pending) == 1 {
		for _, only := range r.pending {
			pr, ok = only, true
		}
	}
	if !ok {
		r.logger.Warn("result for unknown request dropped", map[string]any{
			"from":       from.String(),
			"request_id": res.RequestID.String(),
		})
		return
	}

	// Remove under the lock so a duplicate result finds nothing.
	delete(r.pending, pr.id)
	pr.result <- res
}
