// Package vector implements the Alerts Vector (L1): the single authoritative
// in-memory map of fingerprint -> Alert, with dirty/tombstone write-behind
// tracking and crash-recovery boot from L2.
package vector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
)

// Persistence is the subset of the L2 store the vector needs to boot.
type Persistence interface {
	LoadAll(ctx context.Context) (map[string]alert.Alert, error)
}

// Metrics receives lifecycle counter increments. A nil Metrics is valid;
// calls are no-ops.
type Metrics interface {
	IncCreated()
	IncResolved()
	IncUnknown()
}

type noopMetrics struct{}

func (noopMetrics) IncCreated()  {}
func (noopMetrics) IncResolved() {}
func (noopMetrics) IncUnknown()  {}

// Vector is the L1 alerts store. The zero value is not usable; use New.
type Vector struct {
	logger  *slog.Logger
	metrics Metrics

	mu            sync.Mutex
	alerts        map[string]alert.Alert
	dirty         map[string]struct{}
	tombstoned    map[string]struct{}
	crashRecovery bool
}

// New creates an empty Vector.
func New(logger *slog.Logger, metrics Metrics) *Vector {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Vector{
		logger:     logger,
		metrics:    metrics,
		alerts:     make(map[string]alert.Alert),
		dirty:      make(map[string]struct{}),
		tombstoned: make(map[string]struct{}),
	}
}

// InitializeFromL2 loads every alert persisted in L2 into L1. A non-empty
// load puts the vector into crash-recovery mode; an empty load (or any
// error, which is swallowed) boots fresh.
func (v *Vector) InitializeFromL2(ctx context.Context, p Persistence) {
	loaded, err := p.LoadAll(ctx)
	if err != nil {
		v.logger.Warn("L2 load failed at boot, starting fresh", "error", err)
		return
	}
	if len(loaded) == 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for fp, a := range loaded {
		v.alerts[fp] = a
	}
	v.crashRecovery = true
}

// CrashRecovery reports whether the vector booted from a non-empty L2 load.
func (v *Vector) CrashRecovery() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.crashRecovery
}

// UpdateAlert inserts or replaces an alert. A CANCEL for a fingerprint never
// seen before is silently dropped. Returns true if the vector was mutated.
func (v *Vector) UpdateAlert(a alert.Alert) bool {
	if a.Fingerprint == "" {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	existing, ok := v.alerts[a.Fingerprint]
	if !ok && a.Status == alert.StatusCancel {
		return false
	}

	a.LastSeen = time.Now()
	if !ok || existing.Status != a.Status {
		v.incLifecycleCounterLocked(a.Status)
	}

	v.alerts[a.Fingerprint] = a
	v.dirty[a.Fingerprint] = struct{}{}
	delete(v.tombstoned, a.Fingerprint)
	return true
}

func (v *Vector) incLifecycleCounterLocked(s alert.Status) {
	switch s {
	case alert.StatusCreate:
		v.metrics.IncCreated()
	case alert.StatusCancel:
		v.metrics.IncResolved()
	case alert.StatusUnknown:
		v.metrics.IncUnknown()
	}
}

// RemoveAlert deletes a fingerprint from L1 and marks it tombstoned for L2
// write-behind removal. Returns whether the fingerprint was present.
func (v *Vector) RemoveAlert(fingerprint string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.alerts[fingerprint]; !ok {
		return false
	}
	delete(v.alerts, fingerprint)
	v.tombstoned[fingerprint] = struct{}{}
	delete(v.dirty, fingerprint)
	v.metrics.IncResolved()
	return true
}

// Get returns the current alert for a fingerprint, if present.
func (v *Vector) Get(fingerprint string) (alert.Alert, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.alerts[fingerprint]
	return a, ok
}

// GetSnapshot returns a copy of every alert in the vector, ordered by
// (priority ascending, timestamp ascending).
func (v *Vector) GetSnapshot() []alert.Alert {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]alert.Alert, 0, len(v.alerts))
	for _, a := range v.alerts {
		out = append(out, a)
	}
	sortByPriorityThenTimestamp(out)
	return out
}

// Size returns the number of alerts currently in the vector.
func (v *Vector) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.alerts)
}

// CleanupExpiredAlerts removes every CREATE entry whose lastSeen is older
// than ttl, tombstoning each. Returns the number removed.
func (v *Vector) CleanupExpiredAlerts(ttl time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	removed := 0
	for fp, a := range v.alerts {
		if a.Status != alert.StatusCreate {
			continue
		}
		if now.Sub(a.LastSeen) > ttl {
			delete(v.alerts, fp)
			v.tombstoned[fp] = struct{}{}
			delete(v.dirty, fp)
			removed++
		}
	}
	return removed
}

// GetPendingChanges atomically reads the dirty and tombstoned sets for the
// batch writer: dirty fingerprints paired with their current alert value,
// and tombstoned fingerprints (which no longer have a live alert).
func (v *Vector) GetPendingChanges() (dirty map[string]alert.Alert, tombstoned []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dirty = make(map[string]alert.Alert, len(v.dirty))
	for fp := range v.dirty {
		if a, ok := v.alerts[fp]; ok {
			dirty[fp] = a
		}
	}
	tombstoned = make([]string, 0, len(v.tombstoned))
	for fp := range v.tombstoned {
		tombstoned = append(tombstoned, fp)
	}
	return dirty, tombstoned
}

// ClearDirtyFlags removes the given fingerprints from the dirty set, called
// after a successful L2 SaveBatch.
func (v *Vector) ClearDirtyFlags(fingerprints []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, fp := range fingerprints {
		delete(v.dirty, fp)
	}
}

// ClearRemovedFlags removes the given fingerprints from the tombstoned set,
// called after a successful L2 RemoveBatch.
func (v *Vector) ClearRemovedFlags(fingerprints []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, fp := range fingerprints {
		delete(v.tombstoned, fp)
	}
}

func sortByPriorityThenTimestamp(alerts []alert.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Priority != alerts[j].Priority {
			return alerts[i].Priority < alerts[j].Priority
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
}
