package runtime

import (
	"errors"

	"github.com/pithecene-io/bilat/imagecodec"
	"github.com/pithecene-io/bilat/types"
	"github.com/pithecene-io/bilat/wire"
)

// Exit codes of the request command.
const (
	ExitCodeCompleted    = 0 // result image received
	ExitCodeRemoteError  = 1 // processor answered with an error result
	ExitCodeTransport    = 2 // no answer: send failure, timeout, cancel
	ExitCodeInvalidInput = 3 // invalid arguments or input
)

// ClassifyFailure maps a processing error to the outcome reported for the
// run. Errors that match nothing known are treated as worker failures.
func ClassifyFailure(err error) types.Outcome {
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, wire.ErrMalformedPayload):
		return types.OutcomeRejected
	case errors.Is(err, imagecodec.ErrCorruptImage):
		return types.OutcomeCodecError
	default:
		return types.OutcomeWorkerFailure
	}
}

// ExitCodeFor maps a Requester.Submit outcome to an exit code.
func ExitCodeFor(res *types.Result, err error) int {
	switch {
	case err != nil && errors.Is(err, types.ErrInvalidRequest):
		return ExitCodeInvalidInput
	case err != nil, res == nil:
		return ExitCodeTransport
	case res.Status != types.StatusOK:
		return ExitCodeRemoteError
	default:
		return ExitCodeCompleted
	}
}
