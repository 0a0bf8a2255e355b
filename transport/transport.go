// Package transport moves payloads of arbitrary size over an unreliable
// datagram socket.
//
// Send fragments a payload into DATA frames and writes them with a short
// pause between datagrams. ReceiveLoop reads datagrams, dispatches PROGRESS
// frames, and reassembles DATA frames per sender through an
// assembly.Registry. There is no acknowledgement or retransmission: a lost
// fragment leaves its assembly incomplete.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pithecene-io/bilat/assembly"
	"github.com/pithecene-io/bilat/log"
	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/wire"
)

// Defaults.
const (
	DefaultChunkSize      = wire.MaxChunkSize
	DefaultSendPause      = time.Millisecond
	DefaultReadBufferSize = 65536
)

// Config tunes a Transport. Zero values select defaults.
type Config struct {
	// ChunkSize is the fragment payload size (1..wire.MaxChunkSize).
	ChunkSize int
	// SendPause is the delay between consecutive datagrams of one payload.
	SendPause time.Duration
	// ReadBufferSize is the receive buffer size. Must hold wire.MaxDatagramSize.
	ReadBufferSize int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.SendPause == 0 {
		c.SendPause = DefaultSendPause
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.ChunkSize < 1 || c.ChunkSize > wire.MaxChunkSize {
		return fmt.Errorf("chunk size %d out of range (1..%d)", c.ChunkSize, wire.MaxChunkSize)
	}
	if c.SendPause < 0 {
		return fmt.Errorf("send pause %s must not be negative", c.SendPause)
	}
	if c.ReadBufferSize < wire.MaxDatagramSize {
		return fmt.Errorf("read buffer %d smaller than max datagram %d", c.ReadBufferSize, wire.MaxDatagramSize)
	}
	return nil
}

// Handlers receives decoded traffic. Both callbacks run on per-datagram
// goroutines and must be safe for concurrent use. Nil callbacks drop the
// corresponding traffic.
type Handlers struct {
	// OnPayload is called once per completed reassembly.
	OnPayload func(from net.Addr, payload []byte)
	// OnProgress is called for every valid PROGRESS frame.
	OnProgress func(from net.Addr, p wire.Progress)
}

// Transport wraps a datagram socket.
type Transport struct {
	conn      net.PacketConn
	cfg       Config
	registry  *assembly.Registry
	logger    *log.Logger
	collector *metrics.Collector

	// sendLocks serializes payload sends per destination address.
	sendMu    sync.Mutex
	sendLocks map[string]*sync.Mutex
}

// New creates a transport over conn. logger and collector may be nil.
func New(conn net.PacketConn, cfg Config, logger *log.Logger, collector *metrics.Collector) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Transport{
		conn:      conn,
		cfg:       cfg.withDefaults(),
		registry:  assembly.NewRegistry(collector),
		logger:    logger,
		collector: collector,
		sendLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Listen opens a UDP socket on addr and wraps it.
func Listen(addr string, cfg Config, logger *log.Logger, collector *metrics.Collector) (*Transport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	t, err := New(conn, cfg, logger, collector)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

// LocalAddr returns the bound address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Registry returns the reassembly registry used by ReceiveLoop.
func (t *Transport) Registry() *assembly.Registry {
	return t.registry
}

// Close closes the underlying socket. A running ReceiveLoop returns.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) destLock(dst net.Addr) *sync.Mutex {
	key := dst.String()
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	mu, ok := t.sendLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		t.sendLocks[key] = mu
	}
	return mu
}

// Send fragments payload and writes every fragment to dst in part order,
// pausing SendPause between datagrams. Sends to one destination never
// interleave. Returns on the first write error or when ctx is done.
func (t *Transport) Send(ctx context.Context, payload []byte, dst net.Addr) error {
	fragments, err := wire.Split(payload, t.cfg.ChunkSize)
	if err != nil {
		return err
	}

	mu := t.destLock(dst)
	mu.Lock()
	defer mu.Unlock()

	for i, f := range fragments {
		if i > 0 {
			select {
			case <-ctx.Done():
				t.collector.IncSendFailure()
				return ctx.Err()
			case <-time.After(t.cfg.SendPause):
			}
		}
		datagram := wire.EncodeFragment(f)
		if _, err := t.conn.WriteTo(datagram, dst); err != nil {
			t.collector.IncSendFailure()
			return fmt.Errorf("failed to send part %d/%d to %s: %w", f.PartIndex, f.TotalParts, dst, err)
		}
		t.collector.AddDatagramSent(len(datagram))
	}

	t.collector.IncPayloadSent()
	t.logger.Debug("payload sent", map[string]any{
		"dst":   dst.String(),
		"bytes": len(payload),
		"parts": len(fragments),
	})
	return nil
}

// SendProgress writes one PROGRESS frame to dst. Progress frames are not
// serialized with payload sends.
func (t *Transport) SendProgress(dst net.Addr, p wire.Progress) error {
	datagram := wire.EncodeProgress(p)
	if _, err := t.conn.WriteTo(datagram, dst); err != nil {
		t.collector.IncSendFailure()
		return fmt.Errorf("failed to send progress to %s: %w", dst, err)
	}
	t.collector.AddDatagramSent(len(datagram))
	t.collector.IncProgressSent()
	return nil
}

// ReceiveLoop reads datagrams until ctx is done or the socket is closed,
// handling each one on its own goroutine. It waits for in-flight handlers
// before returning. Returns nil on cancellation or close.
func (t *Transport) ReceiveLoop(ctx context.Context, h Handlers) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	// Clear a deadline left by a previous cancelled loop.
	if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("failed to reset read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, t.cfg.ReadBufferSize)
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		t.collector.IncDatagramReceived()

		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handle(from, datagram, h)
		}()
	}
}

func (t *Transport) handle(from net.Addr, datagram []byte, h Handlers) {
	msg, err := wire.DecodeDatagram(datagram)
	if err != nil {
		kind, _ := wire.FrameErrorKindOf(err)
		t.collector.IncMalformed(kind.String())
		t.logger.Warn("malformed datagram discarded", map[string]any{
			"from":  from.String(),
			"bytes": len(datagram),
			"kind":  kind.String(),
			"error": err.Error(),
		})
		return
	}

	switch m := msg.(type) {
	case *wire.Progress:
		t.collector.IncProgressReceived()
		if h.OnProgress != nil {
			h.OnProgress(from, *m)
		}
	case *wire.Fragment:
		t.logger.Debug("received part", map[string]any{
			"from":  from.String(),
			"part":  m.PartIndex + 1,
			"total": m.TotalParts,
		})
		payload, done := t.registry.OnFragment(from.String(), *m)
		if done && h.OnPayload != nil {
			h.OnPayload(from, payload)
		}
	}
}
