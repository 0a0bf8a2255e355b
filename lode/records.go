package lode

import (
	"time"

	"github.com/pithecene-io/bilat/metrics"
	"github.com/pithecene-io/bilat/types"
)

// RecordKind discriminator values.
const (
	RecordKindResult  = "result"
	RecordKindMetrics = "metrics"
)

// ResultFileName is the sidecar file name of a stored result image.
const ResultFileName = "result.png"

// ResultRecord describes one finished processing run.
type ResultRecord struct {
	RequestID   string
	Peer        string
	Mode        string
	Workers     int
	Width       int
	Height      int
	Outcome     types.Outcome
	Message     string
	ResultBytes int
	Duration    time.Duration
	CompletedAt time.Time
}

// Day returns the partition day (UTC, YYYY-MM-DD).
func (r *ResultRecord) Day() string {
	return dayOf(r.CompletedAt)
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// toResultRecordMap converts a result into the stored record map.
// storagePath is empty when no image was stored.
func toResultRecordMap(r *ResultRecord, storagePath string) map[string]any {
	m := map[string]any{
		"record_kind":  RecordKindResult,
		"request_id":   r.RequestID,
		"peer":         r.Peer,
		"mode":         r.Mode,
		"workers":      r.Workers,
		"width":        r.Width,
		"height":       r.Height,
		"outcome":      string(r.Outcome),
		"result_bytes": r.ResultBytes,
		"duration_ms":  r.Duration.Milliseconds(),
		"completed_at": r.CompletedAt.UTC().Format(time.RFC3339Nano),
		"day":          r.Day(),
	}
	if r.Message != "" {
		m["message"] = r.Message
	}
	if storagePath != "" {
		m["storage_path"] = storagePath
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot into the stored record map.
func toMetricsRecordMap(snap metrics.Snapshot, at time.Time) map[string]any {
	m := snap.Fields()
	m["record_kind"] = RecordKindMetrics
	m["role"] = snap.Role
	m["addr"] = snap.Addr
	m["storage_backend"] = snap.StorageBackend
	m["malformed_by_kind"] = snap.MalformedByKind
	m["recorded_at"] = at.UTC().Format(time.RFC3339Nano)
	m["day"] = dayOf(at)
	return m
}
