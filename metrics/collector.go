// Package metrics provides in-process counters for one bilat peer.
//
// The Collector is a leaf package with no internal dependencies. It is shared
// by the transport, the assembly registry and the processing runtime; all
// increment methods are nil-receiver safe so callers may pass a nil collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Transport
	DatagramsReceived  int64 `json:"datagrams_received"`
	DatagramsSent      int64 `json:"datagrams_sent"`
	BytesSent          int64 `json:"bytes_sent"`
	MalformedDatagrams int64 `json:"malformed_datagrams"`
	// MalformedByKind is keyed by wire.FrameErrorKind name.
	MalformedByKind        map[string]int64 `json:"malformed_by_kind"`
	ProgressFramesReceived int64            `json:"progress_frames_received"`
	ProgressFramesSent     int64            `json:"progress_frames_sent"`
	PayloadsSent           int64            `json:"payloads_sent"`
	SendFailures           int64            `json:"send_failures"`

	// Assembly registry
	FragmentsAccepted   int64 `json:"fragments_accepted"`
	FragmentsDuplicate  int64 `json:"fragments_duplicate"`
	AssembliesCompleted int64 `json:"assemblies_completed"`
	AssembliesReplaced  int64 `json:"assemblies_replaced"`

	// Processing runs
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`
	RunsRejected  int64 `json:"runs_rejected"`

	// Sinks
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`
	PublishSuccess      int64 `json:"publish_success"`
	PublishFailure      int64 `json:"publish_failure"`

	// Dimensions (informational, set at construction)
	Role           string `json:"role"`
	Addr           string `json:"addr"`
	StorageBackend string `json:"storage_backend"`
}

// Collector accumulates counters for the lifetime of a peer.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	datagramsReceived      int64
	datagramsSent          int64
	bytesSent              int64
	malformedDatagrams     int64
	malformedByKind        map[string]int64
	progressFramesReceived int64
	progressFramesSent     int64
	payloadsSent           int64
	sendFailures           int64

	fragmentsAccepted   int64
	fragmentsDuplicate  int64
	assembliesCompleted int64
	assembliesReplaced  int64

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	runsRejected  int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	publishSuccess      int64
	publishFailure      int64

	role           string
	addr           string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when no archive is configured.
func NewCollector(role, addr, storageBackend string) *Collector {
	return &Collector{
		malformedByKind: make(map[string]int64),
		role:            role,
		addr:            addr,
		storageBackend:  storageBackend,
	}
}

// add increments one counter under the lock.
func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Transport ---

// IncDatagramReceived records one inbound datagram of any type.
func (c *Collector) IncDatagramReceived() {
	if c == nil {
		return
	}
	c.add(&c.datagramsReceived, 1)
}

// AddDatagramSent records one outbound datagram of n bytes.
func (c *Collector) AddDatagramSent(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.datagramsSent++
	c.bytesSent += int64(n)
	c.mu.Unlock()
}

// IncMalformed records a discarded datagram, classified by kind.
func (c *Collector) IncMalformed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.malformedDatagrams++
	c.malformedByKind[kind]++
	c.mu.Unlock()
}

// IncProgressReceived records an inbound progress frame.
func (c *Collector) IncProgressReceived() {
	if c == nil {
		return
	}
	c.add(&c.progressFramesReceived, 1)
}

// IncProgressSent records an outbound progress frame.
func (c *Collector) IncProgressSent() {
	if c == nil {
		return
	}
	c.add(&c.progressFramesSent, 1)
}

// IncPayloadSent records a fully transmitted payload (all fragments written).
func (c *Collector) IncPayloadSent() {
	if c == nil {
		return
	}
	c.add(&c.payloadsSent, 1)
}

// IncSendFailure records a payload or progress frame that failed to send.
func (c *Collector) IncSendFailure() {
	if c == nil {
		return
	}
	c.add(&c.sendFailures, 1)
}

// --- Assembly registry ---

// IncFragmentAccepted records a fragment stored in an assembly.
func (c *Collector) IncFragmentAccepted() {
	if c == nil {
		return
	}
	c.add(&c.fragmentsAccepted, 1)
}

// IncFragmentDuplicate records a fragment ignored as a duplicate.
func (c *Collector) IncFragmentDuplicate() {
	if c == nil {
		return
	}
	c.add(&c.fragmentsDuplicate, 1)
}

// IncAssemblyCompleted records a completed reassembly.
func (c *Collector) IncAssemblyCompleted() {
	if c == nil {
		return
	}
	c.add(&c.assembliesCompleted, 1)
}

// IncAssemblyReplaced records an in-flight assembly discarded because the
// same sender started a new transfer.
func (c *Collector) IncAssemblyReplaced() {
	if c == nil {
		return
	}
	c.add(&c.assembliesReplaced, 1)
}

// --- Processing runs ---

// IncRunStarted records a processing run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted, 1)
}

// IncRunCompleted records a run whose result was sent.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.add(&c.runsCompleted, 1)
}

// IncRunFailed records a run that failed after it was accepted
// (codec, worker or send failure).
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed, 1)
}

// IncRunRejected records a request rejected before processing began.
func (c *Collector) IncRunRejected() {
	if c == nil {
		return
	}
	c.add(&c.runsRejected, 1)
}

// --- Sinks ---

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess, 1)
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure, 1)
}

// IncPublishSuccess records a completion event published downstream.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.add(&c.publishSuccess, 1)
}

// IncPublishFailure records a completion event that could not be published.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.add(&c.publishFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.malformedByKind))
	for k, v := range c.malformedByKind {
		byKind[k] = v
	}

	return Snapshot{
		DatagramsReceived:      c.datagramsReceived,
		DatagramsSent:          c.datagramsSent,
		BytesSent:              c.bytesSent,
		MalformedDatagrams:     c.malformedDatagrams,
		MalformedByKind:        byKind,
		ProgressFramesReceived: c.progressFramesReceived,
		ProgressFramesSent:     c.progressFramesSent,
		PayloadsSent:           c.payloadsSent,
		SendFailures:           c.sendFailures,

		FragmentsAccepted:   c.fragmentsAccepted,
		FragmentsDuplicate:  c.fragmentsDuplicate,
		AssembliesCompleted: c.assembliesCompleted,
		AssembliesReplaced:  c.assembliesReplaced,

		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,
		RunsRejected:  c.runsRejected,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		PublishSuccess:      c.publishSuccess,
		PublishFailure:      c.publishFailure,

		Role:           c.role,
		Addr:           c.addr,
		StorageBackend: c.storageBackend,
	}
}

// Fields flattens the snapshot counters into a map for structured logging.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"datagrams_received":       s.DatagramsReceived,
		"datagrams_sent":           s.DatagramsSent,
		"bytes_sent":               s.BytesSent,
		"malformed_datagrams":      s.MalformedDatagrams,
		"progress_frames_received": s.ProgressFramesReceived,
		"progress_frames_sent":     s.ProgressFramesSent,
		"payloads_sent":            s.PayloadsSent,
		"send_failures":            s.SendFailures,
		"fragments_accepted":       s.FragmentsAccepted,
		"fragments_duplicate":      s.FragmentsDuplicate,
		"assemblies_completed":     s.AssembliesCompleted,
		"assemblies_replaced":      s.AssembliesReplaced,
		"runs_started":             s.RunsStarted,
		"runs_completed":           s.RunsCompleted,
		"runs_failed":              s.RunsFailed,
		"runs_rejected":            s.RunsRejected,
		"archive_write_success":    s.ArchiveWriteSuccess,
		"archive_write_failure":    s.ArchiveWriteFailure,
		"publish_success":          s.PublishSuccess,
		"publish_failure":          s.PublishFailure,
	}
}
