// Package assembly reassembles fragmented payloads per sender.
//
// A Registry holds at most one in-flight assembly per sender address.
// Fragments may arrive in any order, duplicated, and from concurrent
// goroutines. Lock order is assembly.mu then Registry.mu; the registry lock
// is never held while acquiring an assembly lock.
//
// After a transfer completes, the registry remembers the digest of each of
// its parts for that sender. Late copies of those parts are dropped until a
// fragment that differs arrives, so a duplicate can neither complete the
// transfer a second time nor leak into the sender's next transfer.
package assembly

import (
	"sync"

	"github.com/zeebo/blake3"

	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/wire"
)

// assembly collects the parts of one in-flight transfer.
type assembly struct {
	mu sync.Mutex
	// total is fixed at creation and may be read without mu.
	total uint32
	parts map[uint32][]byte
	// done is set once the assembly has completed or been superseded.
	done bool
}

// tombstone holds the part digests of a sender's last completed transfer.
type tombstone struct {
	total   uint32
	digests map[uint32][32]byte
}

// matches reports whether f is a copy of a part of the completed transfer.
func (t *tombstone) matches(f wire.Fragment) bool {
	if t.total != f.TotalParts {
		return false
	}
	d, ok := t.digests[f.PartIndex]
	return ok && d == blake3.Sum256(f.Payload)
}

// Registry maps sender keys to in-flight assemblies.
type Registry struct {
	mu         sync.Mutex
	assemblies map[string]*assembly
	completed  map[string]*tombstone
	collector  *metrics.Collector
}

// NewRegistry creates an empty registry. collector may be nil.
func NewRegistry(collector *metrics.Collector) *Registry {
	return &Registry{
		assemblies: make(map[string]*assembly),
		completed:  make(map[string]*tombstone),
		collector:  collector,
	}
}

// acquire returns the sender's assembly for f's transfer, creating it when
// absent and replacing it when its part count differs. It returns nil when
// f is a late copy of a part of the sender's last completed transfer.
func (r *Registry) acquire(sender string, f wire.Fragment) *assembly {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.completed[sender]; ok {
		if t.matches(f) {
			return nil
		}
		delete(r.completed, sender)
	}

	total := f.TotalParts
	a, ok := r.assemblies[sender]
	if ok && a.total == total {
		return a
	}
	if ok {
		r.collector.IncAssemblyReplaced()
	}
	a = &assembly{
		total: total,
		parts: make(map[uint32][]byte, total),
	}
	r.assemblies[sender] = a
	return a
}

// release removes a from the registry if it is still the sender's current
// assembly and records t as the sender's completed transfer. Reports
// whether a was current.
func (r *Registry) release(sender string, a *assembly, t *tombstone) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.assemblies[sender] != a {
		return false
	}
	delete(r.assemblies, sender)
	r.completed[sender] = t
	return true
}

// OnFragment records f for sender. When f completes the sender's assembly,
// the concatenated payload (ascending part order) is returned with true and
// the assembly is removed. Completion is reported exactly once per assembly.
//
// Invalid fragments, duplicates and fragments for an assembly that already
// completed are dropped. The fragment payload is copied.
func (r *Registry) OnFragment(sender string, f wire.Fragment) ([]byte, bool) {
	if err := f.Validate(); err != nil {
		return nil, false
	}

	a := r.acquire(sender, f)
	if a == nil {
		r.collector.IncFragmentDuplicate()
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		r.collector.IncFragmentDuplicate()
		return nil, false
	}
	if _, dup := a.parts[f.PartIndex]; dup {
		r.collector.IncFragmentDuplicate()
		return nil, false
	}

	a.parts[f.PartIndex] = append([]byte(nil), f.Payload...)
	r.collector.IncFragmentAccepted()

	if uint32(len(a.parts)) < a.total {
		return nil, false
	}

	// Complete. Mark done before releasing so concurrent holders of this
	// assembly drop their fragments.
	a.done = true
	t := &tombstone{total: a.total, digests: make(map[uint32][32]byte, len(a.parts))}
	for i, part := range a.parts {
		t.digests[i] = blake3.Sum256(part)
	}
	if !r.release(sender, a, t) {
		// Superseded by a transfer with a different part count.
		return nil, false
	}

	fragments := make([]wire.Fragment, 0, a.total)
	for i, part := range a.parts {
		fragments = append(fragments, wire.Fragment{PartIndex: i, TotalParts: a.total, Payload: part})
	}
	a.parts = nil
	payload, err := wire.Join(fragments)
	if err != nil {
		return nil, false
	}
	r.collector.IncAssemblyCompleted()
	return payload, true
}

// Pending returns the number of in-flight assemblies.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assemblies)
}

// Progress returns how many parts of sender's in-flight assembly have
// arrived, and the part count. ok is false when none is in flight.
func (r *Registry) Progress(sender string) (received, total uint32, ok bool) {
	r.mu.Lock()
	a, ok := r.assemblies[sender]
	r.mu.Unlock()
	if !ok {
		return 0, 0, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(len(a.parts)), a.total, true
}
