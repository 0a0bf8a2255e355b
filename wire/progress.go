package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// progressPrefix starts every PROGRESS frame body.
const progressPrefix = "PROGRESS"

// Progress reports aggregate worker completion for one request.
// RequestID is uuid.Nil when the sender did not attach one.
type Progress struct {
	Percent   int
	RequestID uuid.UUID
}

// Text renders the control body: PROGRESS|<percent>[|<request-id>].
func (p Progress) Text() string {
	if p.RequestID == uuid.Nil {
		return fmt.Sprintf("%s|%d", progressPrefix, p.Percent)
	}
	return fmt.Sprintf("%s|%d|%s", progressPrefix, p.Percent, p.RequestID)
}

// EncodeProgress encodes p as a PROGRESS datagram.
func EncodeProgress(p Progress) []byte {
	text := p.Text()
	buf := make([]byte, TagSize+len(text))
	buf[0] = byte(FrameProgress)
	copy(buf[TagSize:], text)
	return buf
}

// DecodeProgress decodes a PROGRESS frame body (the datagram without its tag).
func DecodeProgress(body []byte) (*Progress, error) {
	if len(body) > MaxProgressSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("progress body %d bytes exceeds maximum %d", len(body), MaxProgressSize),
		}
	}

	parts := strings.Split(string(body), "|")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != progressPrefix {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("malformed progress body %q", body)}
	}

	percent, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "invalid progress percentage", Err: err}
	}
	if percent < 0 || percent > 100 {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("progress percentage %d out of range", percent)}
	}

	p := &Progress{Percent: percent}
	if len(parts) == 3 {
		id, err := uuid.Parse(parts[2])
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "invalid progress request id", Err: err}
		}
		p.RequestID = id
	}
	return p, nil
}
