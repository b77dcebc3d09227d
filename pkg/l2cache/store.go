package l2cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
)

// Config holds the write-behind retry and circuit-breaker policy.
type Config struct {
	MaxWriteRetries int
	WriteRetryDelay time.Duration
	CircuitBreaker  breaker.Config
}

// Metrics receives L2 write outcomes. A nil Metrics is valid.
type Metrics interface {
	IncL2WriteSuccess()
	IncL2WriteFailure()
	SetL2Available(bool)
}

type noopMetrics struct{}

func (noopMetrics) IncL2WriteSuccess()  {}
func (noopMetrics) IncL2WriteFailure()  {}
func (noopMetrics) SetL2Available(bool) {}

// Store is the L2 persistence layer: a MapClient guarded by a circuit
// breaker and linear-backoff retries.
type Store struct {
	client  MapClient
	cfg     Config
	logger  *slog.Logger
	metrics Metrics
	cb      *breaker.Breaker

	available atomic.Bool
}

// NewStore creates a Store. It optimistically reports available until the
// first failed write.
func NewStore(client MapClient, cfg Config, logger *slog.Logger, metrics Metrics) *Store {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s := &Store{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		cb:      breaker.New(cfg.CircuitBreaker, logger),
	}
	s.available.Store(true)
	return s
}

// IsAvailable reports the last known L2 reachability.
func (s *Store) IsAvailable() bool {
	return s.available.Load()
}

// LoadAll reads every persisted alert. It is attempted unconditionally once
// at boot, with no circuit-breaker check. Corrupt records are logged and
// skipped; an unreachable or empty store yields an empty map.
func (s *Store) LoadAll(ctx context.Context) (map[string]alert.Alert, error) {
	raw, err := s.client.Entries(ctx)
	if err != nil {
		s.logger.Warn("L2 LoadAll failed", "error", err)
		return map[string]alert.Alert{}, nil
	}

	out := make(map[string]alert.Alert, len(raw))
	for fp, v := range raw {
		var a alert.Alert
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			s.logger.Warn("L2 record corrupt, skipping", "fingerprint", fp, "error", err)
			continue
		}
		out[fp] = a
	}
	return out, nil
}

// SaveBatch persists every alert in the batch, guarded by the circuit
// breaker. Returns the subset of fingerprints that were successfully
// written so the caller can clear only those dirty flags.
func (s *Store) SaveBatch(ctx context.Context, batch map[string]alert.Alert) []string {
	if !s.cb.IsAllowed() {
		return nil
	}

	var written []string
	for fp, a := range batch {
		payload, err := json.Marshal(a)
		if err != nil {
			s.logger.Error("L2 encode failed, skipping fingerprint", "fingerprint", fp, "error", err)
			continue
		}
		if s.writeWithRetry(ctx, fp, func() error { return s.client.Set(ctx, fp, string(payload)) }) {
			written = append(written, fp)
		}
	}
	return written
}

// RemoveBatch removes every fingerprint in the batch, guarded by the circuit
// breaker. Returns the subset successfully removed.
func (s *Store) RemoveBatch(ctx context.Context, fingerprints []string) []string {
	if !s.cb.IsAllowed() {
		return nil
	}

	var removed []string
	for _, fp := range fingerprints {
		if s.writeWithRetry(ctx, fp, func() error { return s.client.Remove(ctx, fp) }) {
			removed = append(removed, fp)
		}
	}
	return removed
}

// writeWithRetry retries op up to MaxWriteRetries times with linearly
// increasing delay, records the outcome on the breaker, and updates
// availability/metrics.
func (s *Store) writeWithRetry(ctx context.Context, fingerprint string, op func() error) bool {
	var lastErr error
	cancelled := false
	for attempt := 0; attempt <= s.cfg.MaxWriteRetries && !cancelled; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				cancelled = true
			case <-time.After(s.cfg.WriteRetryDelay * time.Duration(attempt)):
			}
		}
		if cancelled {
			break
		}
		if err := op(); err != nil {
			lastErr = err
			continue
		}
		s.cb.RecordSuccess()
		s.available.Store(true)
		s.metrics.SetL2Available(true)
		s.metrics.IncL2WriteSuccess()
		return true
	}

	s.cb.RecordFailure()
	s.available.Store(false)
	s.metrics.SetL2Available(false)
	s.metrics.IncL2WriteFailure()
	if s.cb.ShouldLog() {
		s.logger.Error("L2 write failed after retries", "fingerprint", fingerprint, "error", lastErr)
	}
	return false
}
