// Package wire implements the datagram framing shared by the requester and
// the processor.
//
// Every datagram starts with a one-byte frame type. DATA frames carry one
// fragment of a larger payload behind an 8-byte little-endian header
// (partIndex, totalParts). PROGRESS frames carry a short UTF-8 control text.
// The tag makes classification exact; no size or prefix heuristics are used.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Size constants.
const (
	// MaxChunkSize is the maximum fragment payload size in bytes.
	MaxChunkSize = 60000
	// TagSize is the size of the frame type tag.
	TagSize = 1
	// FragmentHeaderSize is the size of the partIndex/totalParts header.
	FragmentHeaderSize = 8
	// MaxDatagramSize is the largest datagram this protocol produces.
	MaxDatagramSize = TagSize + FragmentHeaderSize + MaxChunkSize
	// MaxProgressSize bounds the PROGRESS frame body.
	MaxProgressSize = 128
)

// FrameType is the first byte of every datagram.
type FrameType byte

const (
	// FrameData tags a payload fragment.
	FrameData FrameType = 0x01
	// FrameProgress tags a progress control message.
	FrameProgress FrameType = 0x02
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "data"
	case FrameProgress:
		return "progress"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// FrameErrorKind classifies datagram decoding errors.
type FrameErrorKind int

const (
	// FrameErrorEmpty indicates a zero-length datagram.
	FrameErrorEmpty FrameErrorKind = iota
	// FrameErrorTruncated indicates a datagram shorter than its header.
	FrameErrorTruncated
	// FrameErrorBadIndex indicates totalParts == 0 or partIndex >= totalParts.
	FrameErrorBadIndex
	// FrameErrorTooLarge indicates a chunk or control body over its limit.
	FrameErrorTooLarge
	// FrameErrorUnknownType indicates an unrecognized frame type tag.
	FrameErrorUnknownType
	// FrameErrorDecode indicates an unparsable progress body.
	FrameErrorDecode
)

// String returns the kind name used in logs and metrics.
func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorEmpty:
		return "empty"
	case FrameErrorTruncated:
		return "truncated"
	case FrameErrorBadIndex:
		return "bad_index"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorUnknownType:
		return "unknown_type"
	case FrameErrorDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FrameError represents a datagram decoding error. A FrameError never
// affects other transfers; the offending datagram is discarded.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// FrameErrorKindOf returns the kind of a FrameError in err's chain.
func FrameErrorKindOf(err error) (FrameErrorKind, bool) {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind, true
	}
	return 0, false
}

// Fragment is one bounded piece of a payload.
type Fragment struct {
	PartIndex  uint32
	TotalParts uint32
	Payload    []byte
}

// Validate checks the fragment invariants.
func (f *Fragment) Validate() error {
	if f.TotalParts == 0 {
		return &FrameError{Kind: FrameErrorBadIndex, Msg: "total parts is zero"}
	}
	if f.PartIndex >= f.TotalParts {
		return &FrameError{
			Kind: FrameErrorBadIndex,
			Msg:  fmt.Sprintf("part index %d out of range for %d parts", f.PartIndex, f.TotalParts),
		}
	}
	if len(f.Payload) > MaxChunkSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("chunk size %d exceeds maximum %d", len(f.Payload), MaxChunkSize),
		}
	}
	return nil
}

// EncodeFragment encodes f as a DATA datagram.
func EncodeFragment(f Fragment) []byte {
	buf := make([]byte, TagSize+FragmentHeaderSize+len(f.Payload))
	buf[0] = byte(FrameData)
	binary.LittleEndian.PutUint32(buf[1:5], f.PartIndex)
	binary.LittleEndian.PutUint32(buf[5:9], f.TotalParts)
	copy(buf[9:], f.Payload)
	return buf
}

// DecodeDatagram classifies and decodes a datagram. Returns either
// *Fragment or *Progress.
//
// The returned Fragment's Payload aliases datagram; callers that keep it past
// the lifetime of the read buffer must copy the datagram first.
func DecodeDatagram(datagram []byte) (any, error) {
	if len(datagram) == 0 {
		return nil, &FrameError{Kind: FrameErrorEmpty, Msg: "empty datagram"}
	}

	switch FrameType(datagram[0]) {
	case FrameData:
		return DecodeFragment(datagram[TagSize:])
	case FrameProgress:
		return DecodeProgress(datagram[TagSize:])
	default:
		return nil, &FrameError{
			Kind: FrameErrorUnknownType,
			Msg:  fmt.Sprintf("unknown frame type 0x%02x", datagram[0]),
		}
	}
}

// DecodeFragment decodes a DATA frame body (the datagram without its tag).
func DecodeFragment(body []byte) (*Fragment, error) {
	if len(body) < FragmentHeaderSize {
		return nil, &FrameError{
			Kind: FrameErrorTruncated,
			Msg:  fmt.Sprintf("fragment header truncated: %d bytes", len(body)),
		}
	}

	f := &Fragment{
		PartIndex:  binary.LittleEndian.Uint32(body[0:4]),
		TotalParts: binary.LittleEndian.Uint32(body[4:8]),
		Payload:    body[FragmentHeaderSize:],
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
