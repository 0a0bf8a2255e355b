// Package types defines core domain types shared by the requester and the
// processor: processing requests, pixel buffers and results.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrInvalidRequest is the sentinel wrapped by every parameter validation
// failure. Use errors.Is(err, ErrInvalidRequest).
var ErrInvalidRequest = errors.New("invalid processing request")

// Mode selects single- or multi-worker processing.
// Values are wire constants (4-byte int in the request payload).
type Mode int32

const (
	// ModeSingleThread runs the filter on one worker regardless of
	// the requested worker count.
	ModeSingleThread Mode = 0
	// ModeMultiThread runs the filter on RequestedWorkers workers.
	ModeMultiThread Mode = 1
)

// String returns the mode name used in logs, config and events.
func (m Mode) String() string {
	switch m {
	case ModeSingleThread:
		return "single"
	case ModeMultiThread:
		return "multi"
	default:
		return fmt.Sprintf("unknown(%d)", int32(m))
	}
}

// ParseMode parses a mode name ("single" or "multi").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single", "single-thread":
		return ModeSingleThread, nil
	case "multi", "multi-thread":
		return ModeMultiThread, nil
	default:
		return 0, fmt.Errorf("invalid mode: %q (must be single or multi)", s)
	}
}

// ProcessingRequest is a bilateral filter job as carried in the request
// payload. ID correlates progress frames and the result with the pending
// request on the requester side.
type ProcessingRequest struct {
	ID               uuid.UUID
	Mode             Mode
	RequestedWorkers int
	// Diameter is the filter window side length. Must be odd and positive.
	Diameter   int
	SigmaColor float64
	SigmaSpace float64
	// Image holds encoded image bytes (PNG, JPEG, GIF or BMP).
	Image []byte
}

// WorkerCount returns the effective number of workers for the request.
// No upper bound is enforced.
func (r *ProcessingRequest) WorkerCount() int {
	if r.Mode == ModeSingleThread {
		return 1
	}
	return r.RequestedWorkers
}

// Validate checks the filter parameters. It does not inspect the image bytes;
// decoding failures are reported by the codec.
func (r *ProcessingRequest) Validate() error {
	switch r.Mode {
	case ModeSingleThread:
	case ModeMultiThread:
		if r.RequestedWorkers <= 0 {
			return fmt.Errorf("%w: worker count must be positive, got %d", ErrInvalidRequest, r.RequestedWorkers)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, int32(r.Mode))
	}

	if r.Diameter <= 0 || r.Diameter%2 == 0 {
		return fmt.Errorf("%w: diameter must be odd and positive, got %d", ErrInvalidRequest, r.Diameter)
	}
	// Written as !(x > 0) so NaN is rejected too.
	if !(r.SigmaColor > 0) || math.IsInf(r.SigmaColor, 0) {
		return fmt.Errorf("%w: sigma_color must be positive and finite, got %v", ErrInvalidRequest, r.SigmaColor)
	}
	if !(r.SigmaSpace > 0) || math.IsInf(r.SigmaSpace, 0) {
		return fmt.Errorf("%w: sigma_space must be positive and finite, got %v", ErrInvalidRequest, r.SigmaSpace)
	}
	return nil
}
