// Package adapter defines the completion-notification boundary.
//
// Adapters publish request completion notifications to downstream systems
// after the processor has answered (or failed to answer) a request. The
// processor owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EventTypeRequestCompleted is the EventType of every RequestCompletedEvent.
const EventTypeRequestCompleted = "request_completed"

// RequestCompletedEvent is the payload published when a processing run ends.
type RequestCompletedEvent struct {
	ContractVersion string `json:"contract_version" msgpack:"contract_version"`
	EventType       string `json:"event_type" msgpack:"event_type"` // always "request_completed"
	RequestID       string `json:"request_id" msgpack:"request_id"`
	Peer            string `json:"peer" msgpack:"peer"`
	Mode            string `json:"mode" msgpack:"mode"`
	Workers         int    `json:"workers" msgpack:"workers"`
	Width           int    `json:"width" msgpack:"width"`
	Height          int    `json:"height" msgpack:"height"`
	Outcome         string `json:"outcome" msgpack:"outcome"` // success, rejected, codec_error, ...
	Message         string `json:"message,omitempty" msgpack:"message,omitempty"`
	StoragePath     string `json:"storage_path,omitempty" msgpack:"storage_path,omitempty"`
	ResultBytes     int    `json:"result_bytes" msgpack:"result_bytes"`
	Timestamp       string `json:"timestamp" msgpack:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms" msgpack:"duration_ms"`
}

// Encoding selects the event serialization.
type Encoding string

const (
	// EncodingJSON serializes events as JSON (default).
	EncodingJSON Encoding = "json"
	// EncodingMsgpack serializes events as MessagePack.
	EncodingMsgpack Encoding = "msgpack"
)

// ParseEncoding validates an encoding name. Empty selects JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingMsgpack:
		return EncodingMsgpack, nil
	default:
		return "", fmt.Errorf("invalid encoding %q (must be json or msgpack)", s)
	}
}

// ContentType returns the MIME type for the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// Marshal serializes event with the encoding.
func (e Encoding) Marshal(event *RequestCompletedEvent) ([]byte, error) {
	switch e {
	case "", EncodingJSON:
		return json.Marshal(event)
	case EncodingMsgpack:
		return msgpack.Marshal(event)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", e)
	}
}

// Unmarshal decodes data produced by Marshal.
func (e Encoding) Unmarshal(data []byte) (*RequestCompletedEvent, error) {
	var event RequestCompletedEvent
	var err error
	switch e {
	case "", EncodingJSON:
		err = json.Unmarshal(data, &event)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, &event)
	default:
		err = fmt.Errorf("unsupported encoding %q", e)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Adapter publishes request completion events to a downstream system.
type Adapter interface {
	// Publish sends a request completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RequestCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
