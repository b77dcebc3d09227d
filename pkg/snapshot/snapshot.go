// Package snapshot implements the snapshot service: it reads a point-in-time
// view of the alerts vector and enqueues NOC decisions from it.
package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
)

// Vector is the subset of the alerts vector the snapshot service needs.
type Vector interface {
	CleanupExpiredAlerts(ttl time.Duration) int
	GetSnapshot() []alert.Alert
	UpdateAlert(a alert.Alert) bool
}

// Queue is the subset of the NOC queue worker the snapshot service needs.
type Queue interface {
	Enqueue(d alert.Decision)
	WasRecentlyEnqueued(fingerprint string) bool
	MarkAsEnqueued(fingerprint string)
	GetQueueDepth() int
}

// Metrics receives vector/queue gauge updates. A nil Metrics is valid.
type Metrics interface {
	SetVectorSize(int)
	SetVectorByStatus(status alert.Status, n int)
	SetQueueDepth(int)
	IncExpired(n int)
	ObserveSnapshotDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) SetVectorSize(int)                     {}
func (noopMetrics) SetVectorByStatus(alert.Status, int)   {}
func (noopMetrics) SetQueueDepth(int)                     {}
func (noopMetrics) IncExpired(int)                        {}
func (noopMetrics) ObserveSnapshotDuration(time.Duration) {}

// AuditLogger records the crash-recovery cancel batch to the append-only
// audit trail. A nil AuditLogger is valid.
type AuditLogger interface {
	LogCrashRecoveryCancel(correlationID string, fingerprints []string)
}

type noopAuditLogger struct{}

func (noopAuditLogger) LogCrashRecoveryCancel(string, []string) {}

// Service is the snapshot service.
type Service struct {
	vector  Vector
	queue   Queue
	metrics Metrics
	audit   AuditLogger
	ttl     time.Duration
}

// New creates a Service.
func New(vector Vector, queue Queue, metrics Metrics, ttl time.Duration) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{vector: vector, queue: queue, metrics: metrics, audit: noopAuditLogger{}, ttl: ttl}
}

// WithAudit attaches an audit trail sink, replacing the no-op default.
func (s *Service) WithAudit(a AuditLogger) *Service {
	if a != nil {
		s.audit = a
	}
	return s
}

// TakeSnapshot reads the current vector, enqueues at most one CREATE, at
// most one UNKNOWN, and every not-recently-enqueued CANCEL as a single
// batch.
func (s *Service) TakeSnapshot(correlationID string) {
	start := time.Now()
	defer func() { s.metrics.ObserveSnapshotDuration(time.Since(start)) }()

	expired := s.vector.CleanupExpiredAlerts(s.ttl)
	if expired > 0 {
		s.metrics.IncExpired(expired)
	}

	alerts := s.vector.GetSnapshot()
	s.updateGauges(alerts)

	var cancelFingerprints []string
	createEnqueued := false
	unknownEnqueued := false

	for _, a := range alerts {
		switch a.Status {
		case alert.StatusCreate:
			if createEnqueued || s.queue.WasRecentlyEnqueued(a.Fingerprint) {
				continue
			}
			s.queue.Enqueue(alert.NewCreateDecision(a.Fingerprint, correlationID, start))
			s.queue.MarkAsEnqueued(a.Fingerprint)
			createEnqueued = true
		case alert.StatusUnknown:
			if unknownEnqueued || s.queue.WasRecentlyEnqueued(a.Fingerprint) {
				continue
			}
			s.queue.Enqueue(alert.NewUnknownDecision(a.Fingerprint, correlationID, start))
			s.queue.MarkAsEnqueued(a.Fingerprint)
			unknownEnqueued = true
		case alert.StatusCancel:
			if s.queue.WasRecentlyEnqueued(a.Fingerprint) {
				continue
			}
			cancelFingerprints = append(cancelFingerprints, a.Fingerprint)
		}
	}

	if len(cancelFingerprints) > 0 {
		s.queue.Enqueue(alert.NewCancelsDecision(cancelFingerprints, correlationID, start))
		for _, fp := range cancelFingerprints {
			s.queue.MarkAsEnqueued(fp)
		}
	}

	s.metrics.SetQueueDepth(s.queue.GetQueueDepth())
}

// TakeCrashRecoverySnapshot runs exactly once on crash-recovery boot: it
// takes a snapshot, drops every IGNORE entry, rewrites every remaining entry
// to CANCEL with a "[CRASH RECOVERY]" summary prefix, and enqueues them as a
// single HandleCancels batch. No CREATEs or UNKNOWNs leave via this path.
func (s *Service) TakeCrashRecoverySnapshot(correlationID string) {
	start := time.Now()
	defer func() { s.metrics.ObserveSnapshotDuration(time.Since(start)) }()

	s.vector.CleanupExpiredAlerts(s.ttl)
	alerts := s.vector.GetSnapshot()
	s.updateGauges(alerts)

	var fingerprints []string
	for _, a := range alerts {
		if a.Status == alert.StatusIgnore {
			continue
		}
		a.Status = alert.StatusCancel
		a.Summary = CrashRecoverySummaryPrefix(a.Summary)
		s.vector.UpdateAlert(a)
		fingerprints = append(fingerprints, a.Fingerprint)
	}
	if len(fingerprints) == 0 {
		return
	}

	s.queue.Enqueue(alert.NewCancelsDecision(fingerprints, correlationID, start))
	for _, fp := range fingerprints {
		s.queue.MarkAsEnqueued(fp)
	}
	s.audit.LogCrashRecoveryCancel(correlationID, fingerprints)
	s.metrics.SetQueueDepth(s.queue.GetQueueDepth())
}

// CrashRecoverySummaryPrefix rewrites a summary for the crash-recovery
// cancel path.
func CrashRecoverySummaryPrefix(summary string) string {
	if strings.HasPrefix(summary, "[CRASH RECOVERY]") {
		return summary
	}
	return fmt.Sprintf("[CRASH RECOVERY] %s", summary)
}

func (s *Service) updateGauges(alerts []alert.Alert) {
	s.metrics.SetVectorSize(len(alerts))
	counts := map[alert.Status]int{}
	for _, a := range alerts {
		counts[a.Status]++
	}
	for _, st := range []alert.Status{alert.StatusCreate, alert.StatusCancel, alert.StatusIgnore, alert.StatusUnknown} {
		s.metrics.SetVectorByStatus(st, counts[st])
	}
}
