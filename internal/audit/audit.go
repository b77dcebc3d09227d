// Package audit implements an append-only audit trail: every NOC decision
// dispatch outcome, every watchdog arm/expire transition, and the
// crash-recovery cancel batch are written as a row to Postgres via a small
// buffered async writer. This is pure observability; nothing in the
// dispatch pipeline reads it back, and a write failure is logged and never
// blocks dispatch.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind distinguishes the three event families this package records.
type Kind string

const (
	KindNocDecision   Kind = "noc_decision"
	KindWatchdog      Kind = "watchdog_transition"
	KindCrashRecovery Kind = "crash_recovery_cancel"
)

// Entry is a single audit row.
type Entry struct {
	Kind          Kind
	Action        string // e.g. "sent", "suppressed", "skipped", "failed", "armed", "expired"
	Fingerprint   string
	CorrelationID string
	Detail        json.RawMessage
	OccurredAt    time.Time
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// schemaDDL bootstraps the append-only table. A single idempotent
// statement is enough for one table with no future revisions expected.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS audit_log (
	id             BIGSERIAL PRIMARY KEY,
	kind           TEXT NOT NULL,
	action         TEXT NOT NULL,
	fingerprint    TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	detail         JSONB,
	occurred_at    TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the audit_log table if it does not already exist.
// Call once at startup before Start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaDDL)
	return err
}

// NewWriter creates an audit Writer. Call Start to begin processing
// entries. A nil pool is accepted for tests and for deployments that don't
// want an audit trail; entries are then logged and discarded.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine exits after flushing
// pending entries once the context is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning is
// logged.
func (w *Writer) Log(entry Entry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"kind", entry.Kind, "action", entry.Action, "fingerprint", entry.Fingerprint)
	}
}

// LogDecision is a convenience wrapper around Log for NOC dispatch outcomes.
func (w *Writer) LogDecision(fingerprint, correlationID, action string, detail json.RawMessage) {
	w.Log(Entry{Kind: KindNocDecision, Action: action, Fingerprint: fingerprint, CorrelationID: correlationID, Detail: detail})
}

// LogWatchdogTransition is a convenience wrapper around Log for watchdog
// arm/expire transitions.
func (w *Writer) LogWatchdogTransition(action string, detail json.RawMessage) {
	w.Log(Entry{Kind: KindWatchdog, Action: action, Detail: detail})
}

// LogCrashRecoveryCancel is a convenience wrapper around Log for the
// crash-recovery cancel batch.
func (w *Writer) LogCrashRecoveryCancel(correlationID string, fingerprints []string) {
	detail, _ := json.Marshal(map[string]any{"fingerprints": fingerprints, "count": len(fingerprints)})
	w.Log(Entry{Kind: KindCrashRecovery, Action: "cancelled", CorrelationID: correlationID, Detail: detail})
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []Entry) {
	if w.pool == nil {
		for _, e := range entries {
			w.logger.Info("audit entry (no pool configured)", "kind", e.Kind, "action", e.Action, "fingerprint", e.Fingerprint)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO audit_log (kind, action, fingerprint, correlation_id, detail, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			string(e.Kind), e.Action, e.Fingerprint, e.CorrelationID, e.Detail, e.OccurredAt,
		)
	}

	br := w.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			w.logger.Error("writing audit log entry", "error", err)
		}
	}
}
