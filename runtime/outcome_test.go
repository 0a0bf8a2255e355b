package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pithecene-io/bilat/imagecodec"
	"github.com/pithecene-io/bilat/types"
	"github.com/pithecene-io/bilat/wire"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.Outcome
	}{
		{"nil", nil, types.OutcomeSuccess},
		{"invalid params", fmt.Errorf("%w: diameter must be odd", types.ErrInvalidRequest), types.OutcomeRejected},
		{"malformed payload", fmt.Errorf("decode: %w", wire.ErrMalformedPayload), types.OutcomeRejected},
		{"codec", fmt.Errorf("%w: unknown format", imagecodec.ErrCorruptImage), types.OutcomeCodecError},
		{"worker", errors.Join(&WorkerError{Worker: 1, Err: errors.New("boom")}), types.OutcomeWorkerFailure},
		{"unknown", errors.New("other"), types.OutcomeWorkerFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyFailure(tt.err); got != tt.want {
				t.Errorf("ClassifyFailure = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		res  *types.Result
		err  error
		want int
	}{
		{"success", &types.Result{Status: types.StatusOK}, nil, ExitCodeCompleted},
		{"remote error", &types.Result{Status: types.StatusError, Message: "boom"}, nil, ExitCodeRemoteError},
		{"invalid request", nil, fmt.Errorf("%w: bad mode", types.ErrInvalidRequest), ExitCodeInvalidInput},
		{"timeout", nil, context.DeadlineExceeded, ExitCodeTransport},
		{"listener stopped", nil, ErrRequesterClosed, ExitCodeTransport},
		{"no result", nil, nil, ExitCodeTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.res, tt.err); got != tt.want {
				t.Errorf("ExitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}
}
