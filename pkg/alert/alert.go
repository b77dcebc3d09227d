// Package alert defines the normalised Alert record, its lifecycle status,
// and the NOC dispatch decisions derived from it.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusCreate  Status = "CREATE"
	StatusCancel  Status = "CANCEL"
	StatusIgnore  Status = "IGNORE"
	StatusUnknown Status = "UNKNOWN"
)

// Reserved priorities for non-Prometheus sources (lower value = more severe).
const (
	PriorityPrometheusDown  = -3
	PriorityKSMDown         = -2
	PriorityWatchdogExpired = -1
)

// PriorityUnset represents "missing" priority for a Prometheus alert that
// declared none; it sorts after every declared priority.
const PriorityUnset = int(^uint(0) >> 1) // max int, stands in for +Inf

// Alert is the normalised record shared by every source (push, K8s layer,
// watchdog) and consumed by the vector, suppression cache and NOC worker.
type Alert struct {
	Priority       int
	Name           string
	Summary        string
	Description    string
	Payload        string
	Source         string
	Fingerprint    string
	Status         Status
	SendToNoc      bool
	SuppressWindow *time.Duration
	Timestamp      time.Time
	LastSeen       time.Time
	Annotations    map[string]string
	ExecutionID    string

	// PrometheusPayload holds the original push-alert payload when Source is
	// "prometheus_push"; nil for alerts synthesized by the K8s layer service
	// or the watchdog.
	PrometheusPayload *PushAlert
}

// NocBehavior is the {sendToNoc, payload, suppressWindow} triple a source
// attaches to a synthesized alert for a given status.
type NocBehavior struct {
	SendToNoc      bool
	Payload        string
	SuppressWindow *time.Duration
}

// PushAlert is the wire shape of one element of the POST /api/v2/alerts body.
type PushAlert struct {
	Status         string            `json:"status,omitempty"`
	SendToNoc      *bool             `json:"sendToNoc,omitempty"`
	SuppressWindow string            `json:"suppressWindow,omitempty"`
	Labels         map[string]string `json:"labels" validate:"required"`
	Annotations    map[string]string `json:"annotations"`
	StartsAt       time.Time         `json:"startsAt" validate:"required"`
	EndsAt         *time.Time        `json:"endsAt,omitempty"`
	GeneratorURL   string            `json:"generatorURL,omitempty"`
}

// IsFiring infers firing state: explicit status=="firing" wins; otherwise a
// nil/zero/future EndsAt means firing.
func (p PushAlert) IsFiring() bool {
	if p.Status != "" {
		return strings.EqualFold(p.Status, "firing")
	}
	if p.EndsAt == nil || p.EndsAt.IsZero() {
		return true
	}
	return p.EndsAt.After(time.Now())
}

// Fingerprint computes a stable identity for a push alert: SHA-256 hex
// (first 16 bytes) of its labels, sorted by key and joined
// deterministically, so the same label set always maps to the same vector
// entry regardless of which instance computed it.
func (p PushAlert) Fingerprint() string {
	keys := make([]string, 0, len(p.Labels))
	for k := range p.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p.Labels[k])
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:16])
}

// Name returns the conventional "alertname" label, used to recognize the
// configured watchdog name.
func (p PushAlert) Name() string {
	return p.Labels["alertname"]
}
