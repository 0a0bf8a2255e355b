package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ResultStatus is the one-byte status carried in the result payload.
type ResultStatus uint8

const (
	// StatusOK means Image holds the encoded filtered image.
	StatusOK ResultStatus = 0
	// StatusError means Message describes why the request failed.
	StatusError ResultStatus = 1
)

// String returns the status name.
func (s ResultStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Result is the processor's answer to a ProcessingRequest.
type Result struct {
	RequestID uuid.UUID
	Status    ResultStatus
	// Image is the PNG-encoded output (StatusOK only).
	Image []byte
	// Message is the failure description (StatusError only).
	Message string
}

// Outcome classifies how a processing run ended on the processor.
type Outcome string

const (
	// OutcomeSuccess indicates the filtered image was sent back.
	OutcomeSuccess Outcome = "success"
	// OutcomeRejected indicates invalid parameters or a malformed payload.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCodecError indicates the image bytes could not be decoded.
	OutcomeCodecError Outcome = "codec_error"
	// OutcomeWorkerFailure indicates at least one worker failed.
	OutcomeWorkerFailure Outcome = "worker_failure"
	// OutcomeSendFailure indicates the result could not be transmitted.
	OutcomeSendFailure Outcome = "send_failure"
)

// ErrRemoteFailure is wrapped by Result.Err for StatusError results.
var ErrRemoteFailure = errors.New("remote processing failed")

// Err returns nil for StatusOK results and an error wrapping
// ErrRemoteFailure with the remote message otherwise.
func (r *Result) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRemoteFailure, r.Message)
}
