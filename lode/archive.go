// Package lode archives processing results in a Lode store.
//
// Each run produces one JSONL record in a Hive-partitioned dataset
// (record_kind/day). Successful runs also store the result PNG as a sidecar
// file under the dataset's partitions/ prefix.
package lode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/bilat/metrics"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "bilat"

// Config configures an Archive.
type Config struct {
	// Dataset is the Lode dataset ID (default "bilat").
	Dataset string
}

// Archive writes result records, result images and metrics snapshots.
// Safe for concurrent use.
type Archive struct {
	dataset lode.Dataset
	config  Config

	// writeMu serializes dataset writes; each write commits a snapshot.
	writeMu sync.Mutex

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewArchive creates an archive over the given store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchive(cfg Config, factory lode.StoreFactory) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}, nil
}

// NewFSArchive creates an archive rooted at a local directory.
func NewFSArchive(cfg Config, root string) (*Archive, error) {
	return NewArchive(cfg, lode.NewFSFactory(root))
}

// Dataset returns the underlying dataset for reads.
func (a *Archive) Dataset() lode.Dataset {
	return a.dataset
}

// getOrCreateStore lazily initializes the Store from the factory.
func (a *Archive) getOrCreateStore() (lode.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.storeFactory()
	})
	return a.store, a.storeErr
}

// ResultPath computes the sidecar path of a result image.
// Format: datasets/<dataset>/partitions/day=<d>/outcome=<o>/request_id=<id>/files/result.png
func (a *Archive) ResultPath(rec *ResultRecord) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/outcome=%s/request_id=%s/files/%s",
		a.config.Dataset,
		rec.Day(),
		rec.Outcome,
		rec.RequestID,
		ResultFileName,
	)
}

// Record stores a run. When image is non-empty it is written first as a
// sidecar file; the record then carries its path. Returns the storage path
// (empty when no image was stored).
func (a *Archive) Record(ctx context.Context, rec *ResultRecord, image []byte) (string, error) {
	var path string
	if len(image) > 0 {
		store, err := a.getOrCreateStore()
		if err != nil {
			return "", WrapInitError(err, a.config.Dataset)
		}
		path = a.ResultPath(rec)
		if err := store.Put(ctx, path, bytes.NewReader(image)); err != nil {
			return "", WrapWriteError(err, path)
		}
	}

	if err := a.write(ctx, toResultRecordMap(rec, path)); err != nil {
		return path, err
	}
	return path, nil
}

// WriteMetrics stores a metrics snapshot record.
func (a *Archive) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	return a.write(ctx, toMetricsRecordMap(snap, at))
}

func (a *Archive) write(ctx context.Context, record map[string]any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if _, err := a.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/%s", a.config.Dataset, record["record_kind"]))
	}
	return nil
}

// ReadFile reads a stored sidecar file.
func (a *Archive) ReadFile(ctx context.Context, path string) ([]byte, error) {
	store, err := a.getOrCreateStore()
	if err != nil {
		return nil, WrapInitError(err, a.config.Dataset)
	}
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, WrapReadError(err, path)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapReadError(err, path)
	}
	return data, nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}
