package l2cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
)

// PendingSource is the subset of the vector the batch writer needs.
type PendingSource interface {
	GetPendingChanges() (dirty map[string]alert.Alert, tombstoned []string)
	ClearDirtyFlags(fingerprints []string)
	ClearRemovedFlags(fingerprints []string)
}

// BatchWriter periodically flushes the vector's pending changes into a
// Store.
type BatchWriter struct {
	store    *Store
	source   PendingSource
	interval time.Duration
	logger   *slog.Logger
}

// NewBatchWriter creates a BatchWriter that flushes every interval.
func NewBatchWriter(store *Store, source PendingSource, interval time.Duration, logger *slog.Logger) *BatchWriter {
	return &BatchWriter{store: store, source: source, interval: interval, logger: logger}
}

// Run blocks, flushing on each tick until ctx is cancelled, then performs one
// final flush before returning.
func (w *BatchWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *BatchWriter) flush(ctx context.Context) {
	dirty, tombstoned := w.source.GetPendingChanges()
	if len(dirty) == 0 && len(tombstoned) == 0 {
		return
	}

	if len(dirty) > 0 {
		written := w.store.SaveBatch(ctx, dirty)
		if len(written) > 0 {
			w.source.ClearDirtyFlags(written)
		}
	}
	if len(tombstoned) > 0 {
		removed := w.store.RemoveBatch(ctx, tombstoned)
		if len(removed) > 0 {
			w.source.ClearRemovedFlags(removed)
		}
	}
}
