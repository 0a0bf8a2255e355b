package lode

import (
	"strings"

	"github.com/justapithecus/lode/lode"
)

// NewDataset creates the results dataset over factory. Reads and writes
// share the layout and codec.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("record_kind", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// snapshotHasPartition reports whether any file of snap lies in the
// key=value partition. An empty value matches every snapshot.
func snapshotHasPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so record_kind=result never matches record_kind=results.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
