package wire

import (
	"fmt"
	"sort"
)

// PartCount returns the number of fragments Split produces for a payload of
// size n. An empty payload still occupies one (empty) fragment.
func PartCount(n, chunkSize int) int {
	if n == 0 {
		return 1
	}
	return (n + chunkSize - 1) / chunkSize
}

// Split cuts payload into fragments of at most chunkSize bytes. Every
// fragment except possibly the last holds exactly chunkSize bytes. Fragment
// payloads alias payload.
func Split(payload []byte, chunkSize int) ([]Fragment, error) {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d out of range (1..%d)", chunkSize, MaxChunkSize)
	}

	total := PartCount(len(payload), chunkSize)
	if uint64(total) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("payload of %d bytes needs %d parts, exceeds uint32", len(payload), total)
	}

	fragments := make([]Fragment, total)
	for i := range total {
		start := i * chunkSize
		end := min(start+chunkSize, len(payload))
		fragments[i] = Fragment{
			PartIndex:  uint32(i),
			TotalParts: uint32(total),
			Payload:    payload[start:end],
		}
	}
	return fragments, nil
}

// Join concatenates fragments in ascending PartIndex order regardless of the
// order they are given in. It fails if any part is missing or duplicated.
func Join(fragments []Fragment) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no fragments")
	}

	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartIndex < sorted[j].PartIndex })

	total := sorted[0].TotalParts
	if uint32(len(sorted)) != total {
		return nil, fmt.Errorf("have %d fragments, want %d", len(sorted), total)
	}

	size := 0
	for i, f := range sorted {
		if f.PartIndex != uint32(i) || f.TotalParts != total {
			return nil, fmt.Errorf("fragment %d/%d out of sequence at position %d", f.PartIndex, f.TotalParts, i)
		}
		size += len(f.Payload)
	}

	out := make([]byte, 0, size)
	for _, f := range sorted {
		out = append(out, f.Payload...)
	}
	return out, nil
}
