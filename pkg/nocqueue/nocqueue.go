// Package nocqueue implements the FIFO NOC queue worker: it dequeues
// decisions produced by the snapshot service and dispatches them to the NOC
// HTTP endpoint, honoring the suppression cache and a short duplicate
// window.
package nocqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/slack"
	"github.com/wisbric/argusd/pkg/suppression"
)

// Transport is the egress NOC protocol: POST <endpoint> with the alert
// payload, or a batch of cancels.
type Transport interface {
	PostAlert(ctx context.Context, a alert.Alert, correlationID string) error
	PostCancels(ctx context.Context, alerts []alert.Alert, correlationID string) error
}

// VectorAccess is the subset of the alerts vector the worker needs to
// re-read alerts before dispatch and remove them after.
type VectorAccess interface {
	Get(fingerprint string) (alert.Alert, bool)
	RemoveAlert(fingerprint string) bool
}

// Metrics receives NOC dispatch outcome counters. A nil Metrics is valid.
type Metrics interface {
	IncNocDecision(kind alert.DecisionKind)
	IncNocSent()
	IncNocSuppressed()
	SetQueueDepth(int)
}

type noopMetrics struct{}

func (noopMetrics) IncNocDecision(alert.DecisionKind) {}
func (noopMetrics) IncNocSent()                       {}
func (noopMetrics) IncNocSuppressed()                 {}
func (noopMetrics) SetQueueDepth(int)                 {}

// AuditLogger records a dispatch outcome to the append-only audit trail.
// A nil AuditLogger is valid; entries are simply not recorded.
type AuditLogger interface {
	LogDecision(fingerprint, correlationID, action string, detail json.RawMessage)
}

// Notifier mirrors a dispatch outcome into a secondary, best-effort,
// human-facing sink. A nil Notifier is valid; PostDecision is skipped.
type Notifier interface {
	PostDecision(ctx context.Context, info slack.AlertInfo, action string)
}

type noopAuditLogger struct{}

func (noopAuditLogger) LogDecision(string, string, string, json.RawMessage) {}

type noopNotifier struct{}

func (noopNotifier) PostDecision(context.Context, slack.AlertInfo, string) {}

// Worker is the FIFO NOC queue worker.
type Worker struct {
	vector      VectorAccess
	transport   Transport
	suppression *suppression.Cache
	metrics     Metrics
	audit       AuditLogger
	notifier    Notifier
	logger      *slog.Logger

	duplicateWindow time.Duration
	cleanupInterval time.Duration

	mu       sync.Mutex
	queue    []alert.Decision
	recently map[string]time.Time
}

// New creates a Worker.
func New(vec VectorAccess, transport Transport, supp *suppression.Cache, metrics Metrics, logger *slog.Logger, duplicateWindow, cleanupInterval time.Duration) *Worker {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Worker{
		vector:          vec,
		transport:       transport,
		suppression:     supp,
		metrics:         metrics,
		audit:           noopAuditLogger{},
		notifier:        noopNotifier{},
		logger:          logger,
		duplicateWindow: duplicateWindow,
		cleanupInterval: cleanupInterval,
		recently:        make(map[string]time.Time),
	}
}

// WithAudit attaches an audit trail sink, replacing the no-op default.
func (w *Worker) WithAudit(a AuditLogger) *Worker {
	if a != nil {
		w.audit = a
	}
	return w
}

// WithNotifier attaches a secondary human-facing notification sink,
// replacing the no-op default.
func (w *Worker) WithNotifier(n Notifier) *Worker {
	if n != nil {
		w.notifier = n
	}
	return w
}

func alertInfo(a alert.Alert, correlationID string) slack.AlertInfo {
	return slack.AlertInfo{
		Fingerprint:   a.Fingerprint,
		Name:          a.Name,
		Summary:       a.Summary,
		Priority:      a.Priority,
		Source:        a.Source,
		CorrelationID: correlationID,
	}
}

func auditDetail(a alert.Alert) json.RawMessage {
	detail, _ := json.Marshal(map[string]any{"name": a.Name, "source": a.Source, "priority": a.Priority})
	return detail
}

// Enqueue appends a decision to the FIFO.
func (w *Worker) Enqueue(d alert.Decision) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, d)
	w.metrics.SetQueueDepth(len(w.queue))
}

// GetQueueDepth returns the current FIFO length.
func (w *Worker) GetQueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// WasRecentlyEnqueued reports whether fingerprint was marked within the
// configured duplicate window.
func (w *Worker) WasRecentlyEnqueued(fingerprint string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.recently[fingerprint]
	if !ok {
		return false
	}
	return time.Since(t) < w.duplicateWindow
}

// MarkAsEnqueued records that fingerprint was just enqueued, for duplicate
// suppression.
func (w *Worker) MarkAsEnqueued(fingerprint string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recently[fingerprint] = time.Now()
}

func (w *Worker) dequeue() (alert.Decision, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return alert.Decision{}, false
	}
	d := w.queue[0]
	w.queue = w.queue[1:]
	w.metrics.SetQueueDepth(len(w.queue))
	return d, true
}

func (w *Worker) evictStaleMarks() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for fp, t := range w.recently {
		if now.Sub(t) >= w.duplicateWindow {
			delete(w.recently, fp)
		}
	}
}

// Run blocks, ticking every cleanupInterval: it evicts stale duplicate
// marks, cleans the suppression cache, and dispatches at most one queued
// decision, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.evictStaleMarks()
			w.suppression.Cleanup()
			if d, ok := w.dequeue(); ok {
				w.dispatch(ctx, d)
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, d alert.Decision) {
	w.metrics.IncNocDecision(d.Kind)
	switch d.Kind {
	case alert.HandleCreate:
		w.handleCreate(ctx, d)
	case alert.HandleUnknown:
		w.handleUnknown(ctx, d)
	case alert.HandleCancels:
		w.handleCancels(ctx, d)
	}
}

func (w *Worker) handleCreate(ctx context.Context, d alert.Decision) {
	a, ok := w.vector.Get(d.Fingerprint)
	if !ok || a.Status != alert.StatusCreate {
		return
	}
	if w.suppression.ShouldSuppress(a) {
		w.metrics.IncNocSuppressed()
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "suppressed", auditDetail(a))
		return
	}
	if !a.SendToNoc {
		w.suppression.MarkAsSent(a)
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "skipped", auditDetail(a))
		return
	}
	if err := w.transport.PostAlert(ctx, a, d.CorrelationID); err != nil {
		w.logger.Error("noc post failed for CREATE", "fingerprint", a.Fingerprint, "error", err)
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "failed", auditDetail(a))
		return
	}
	w.suppression.MarkAsSent(a)
	w.metrics.IncNocSent()
	w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "sent", auditDetail(a))
	w.notifier.PostDecision(ctx, alertInfo(a, d.CorrelationID), "CREATE")
}

func (w *Worker) handleUnknown(ctx context.Context, d alert.Decision) {
	a, ok := w.vector.Get(d.Fingerprint)
	if !ok || a.Status != alert.StatusUnknown {
		return
	}
	if w.suppression.ShouldSuppress(a) {
		w.metrics.IncNocSuppressed()
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "suppressed", auditDetail(a))
		return
	}
	if a.SendToNoc {
		if err := w.transport.PostAlert(ctx, a, d.CorrelationID); err != nil {
			// not removed and not marked-as-sent: the next snapshot
			// re-evaluates the fingerprint.
			w.logger.Error("noc post failed for UNKNOWN", "fingerprint", a.Fingerprint, "error", err)
			w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "failed", auditDetail(a))
			return
		}
		w.suppression.MarkAsSent(a)
		w.metrics.IncNocSent()
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "sent", auditDetail(a))
		w.notifier.PostDecision(ctx, alertInfo(a, d.CorrelationID), "UNKNOWN")
	} else {
		w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "skipped", auditDetail(a))
	}
	// UNKNOWN is one-shot: remove after a successful post or a config skip.
	w.vector.RemoveAlert(a.Fingerprint)
}

func (w *Worker) handleCancels(ctx context.Context, d alert.Decision) {
	var stillCancel []alert.Alert
	for _, fp := range d.Fingerprints {
		a, ok := w.vector.Get(fp)
		if !ok || a.Status != alert.StatusCancel {
			continue
		}
		stillCancel = append(stillCancel, a)
	}
	if len(stillCancel) == 0 {
		return
	}

	var toSend []alert.Alert
	for _, a := range stillCancel {
		if a.SendToNoc {
			toSend = append(toSend, a)
		}
	}
	if len(toSend) > 0 {
		if err := w.transport.PostCancels(ctx, toSend, d.CorrelationID); err != nil {
			w.logger.Error("noc post failed for CANCELS batch", "count", len(toSend), "error", err)
			for _, a := range toSend {
				w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "failed", auditDetail(a))
			}
			// intentional: a failed CANCEL POST still falls through to
			// removal below; CANCELs are never re-sent.
		} else {
			w.metrics.IncNocSent()
			for _, a := range toSend {
				w.audit.LogDecision(a.Fingerprint, d.CorrelationID, "sent", auditDetail(a))
				w.notifier.PostDecision(ctx, alertInfo(a, d.CorrelationID), "CANCEL")
			}
		}
	}

	for _, a := range stillCancel {
		w.vector.RemoveAlert(a.Fingerprint)
	}
}
