package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/pithecene-io/bilat/types"
)

// ErrMalformedPayload is wrapped by request and result payload decoding
// failures.
var ErrMalformedPayload = errors.New("malformed payload")

// requestHeaderSize is the fixed part of a request payload:
// id(16) mode(4) workers(4) diameter(4) sigmaColor(8) sigmaSpace(8) imageLen(4).
const requestHeaderSize = 16 + 4 + 4 + 4 + 8 + 8 + 4

// resultHeaderSize is id(16) status(1).
const resultHeaderSize = 16 + 1

// requestHeader mirrors the fixed request fields in wire order.
type requestHeader struct {
	ID         [16]byte
	Mode       int32
	Workers    int32
	Diameter   int32
	SigmaColor float64
	SigmaSpace float64
	ImageLen   int32
}

// EncodeRequest serializes a request payload (little-endian).
func EncodeRequest(req *types.ProcessingRequest) ([]byte, error) {
	if len(req.Image) > math.MaxInt32 {
		return nil, fmt.Errorf("image of %d bytes exceeds int32 length field", len(req.Image))
	}
	for name, v := range map[string]int{"workers": req.RequestedWorkers, "diameter": req.Diameter} {
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("%s %d does not fit int32", name, v)
		}
	}

	hdr := requestHeader{
		ID:         req.ID,
		Mode:       int32(req.Mode),
		Workers:    int32(req.RequestedWorkers),
		Diameter:   int32(req.Diameter),
		SigmaColor: req.SigmaColor,
		SigmaSpace: req.SigmaSpace,
		ImageLen:   int32(len(req.Image)),
	}

	var buf bytes.Buffer
	buf.Grow(requestHeaderSize + len(req.Image))
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("encode request header: %w", err)
	}
	buf.Write(req.Image)
	return buf.Bytes(), nil
}

// DecodeRequest parses a request payload. Parameters are not validated here;
// call ProcessingRequest.Validate. The image slice aliases payload.
func DecodeRequest(payload []byte) (*types.ProcessingRequest, error) {
	if len(payload) < requestHeaderSize {
		return nil, fmt.Errorf("%w: request header truncated: %d bytes", ErrMalformedPayload, len(payload))
	}

	var hdr requestHeader
	if err := binary.Read(bytes.NewReader(payload[:requestHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	image := payload[requestHeaderSize:]
	if hdr.ImageLen < 0 || int(hdr.ImageLen) > len(image) {
		return nil, fmt.Errorf("%w: image length %d, %d bytes available", ErrMalformedPayload, hdr.ImageLen, len(image))
	}

	return &types.ProcessingRequest{
		ID:               uuid.UUID(hdr.ID),
		Mode:             types.Mode(hdr.Mode),
		RequestedWorkers: int(hdr.Workers),
		Diameter:         int(hdr.Diameter),
		SigmaColor:       hdr.SigmaColor,
		SigmaSpace:       hdr.SigmaSpace,
		Image:            image[:hdr.ImageLen],
	}, nil
}

// PeekRequestID extracts the request ID from a payload that may otherwise be
// malformed, so a rejection can still be routed to the requester.
func PeekRequestID(payload []byte) (uuid.UUID, bool) {
	if len(payload) < 16 {
		return uuid.Nil, false
	}
	return uuid.UUID(payload[:16]), true
}

// EncodeResult serializes a result payload: id, status byte, then the image
// (StatusOK) or the UTF-8 message (StatusError).
func EncodeResult(res *types.Result) []byte {
	body := res.Image
	if res.Status != types.StatusOK {
		body = []byte(res.Message)
	}

	buf := make([]byte, resultHeaderSize+len(body))
	copy(buf[:16], res.RequestID[:])
	buf[16] = byte(res.Status)
	copy(buf[resultHeaderSize:], body)
	return buf
}

// DecodeResult parses a result payload. The image slice aliases payload.
func DecodeResult(payload []byte) (*types.Result, error) {
	if len(payload) < resultHeaderSize {
		return nil, fmt.Errorf("%w: result header truncated: %d bytes", ErrMalformedPayload, len(payload))
	}

	res := &types.Result{
		RequestID: uuid.UUID(payload[:16]),
		Status:    types.ResultStatus(payload[16]),
	}
	body := payload[resultHeaderSize:]

	switch res.Status {
	case types.StatusOK:
		res.Image = body
	case types.StatusError:
		res.Message = string(body)
	default:
		return nil, fmt.Errorf("%w: unknown result status %d", ErrMalformedPayload, payload[16])
	}
	return res, nil
}
