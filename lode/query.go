package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordFound is returned when no matching record exists.
var ErrNoRecordFound = errors.New("no matching record found")

// QueryLatest returns the most recent record of the given kind. When
// requestID is non-empty only result records for that request match.
func QueryLatest(ctx context.Context, ds lode.Dataset, kind, requestID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshots", ds.ID()))
	}

	// Snapshots are ordered by creation time; walk newest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHasPartition(snap, "record_kind", kind) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != kind {
				continue
			}
			if requestID != "" && record["request_id"] != requestID {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoRecordFound
}
