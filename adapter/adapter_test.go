package adapter

import "testing"

func sampleEvent() *RequestCompletedEvent {
	return &RequestCompletedEvent{
		ContractVersion: "0.3.0",
		EventType:       EventTypeRequestCompleted,
		RequestID:       "5f1c9a62-3a7e-4c55-9d2b-1d1f0e2c6a10",
		Peer:            "127.0.0.1:50123",
		Mode:            "multi",
		Workers:         4,
		Width:           640,
		Height:          480,
		Outcome:         "success",
		ResultBytes:     12345,
		Timestamp:       "2026-02-07T12:00:00Z",
		DurationMs:      250,
	}
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", EncodingJSON, false},
		{"json", EncodingJSON, false},
		{"msgpack", EncodingMsgpack, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEncoding(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEncoding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEncoding(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncoding_RoundTrip(t *testing.T) {
	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := enc.Marshal(sampleEvent())
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := enc.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if *got != *sampleEvent() {
				t.Errorf("round trip = %+v", got)
			}
		})
	}
}

func TestEncoding_ContentType(t *testing.T) {
	if EncodingJSON.ContentType() != "application/json" {
		t.Error("json content type")
	}
	if EncodingMsgpack.ContentType() != "application/msgpack" {
		t.Error("msgpack content type")
	}
}
