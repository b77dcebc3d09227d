package alert

import (
	"strconv"
	"time"

	"github.com/wisbric/argusd/pkg/durationfmt"
)

// SourcePrometheusPush is the fixed source tag for push-ingested alerts.
const SourcePrometheusPush = "prometheus_push"

// ToAlertDto normalises a push alert into an Alert. priority is parsed from
// the "priority" label; a missing or unparsable value becomes PriorityUnset
// (lowest priority). executionID is assigned fresh by the caller per
// ingestion.
func ToAlertDto(p PushAlert, executionID string) Alert {
	priority := PriorityUnset
	if raw, ok := p.Labels["priority"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			priority = n
		}
	}

	status := StatusCreate
	if !p.IsFiring() {
		status = StatusCancel
	}

	sendToNoc := true
	if p.SendToNoc != nil {
		sendToNoc = *p.SendToNoc
	}

	var suppressWindow *time.Duration
	if p.SuppressWindow != "" {
		if d, err := durationfmt.Parse(p.SuppressWindow); err == nil {
			suppressWindow = &d
		}
	}

	now := time.Now()
	return Alert{
		Priority:          priority,
		Name:              p.Name(),
		Summary:           p.Annotations["summary"],
		Description:       p.Annotations["description"],
		Source:            SourcePrometheusPush,
		Fingerprint:       p.Fingerprint(),
		Status:            status,
		SendToNoc:         sendToNoc,
		SuppressWindow:    suppressWindow,
		Timestamp:         p.StartsAt,
		LastSeen:          now,
		Annotations:       p.Annotations,
		ExecutionID:       executionID,
		PrometheusPayload: &p,
	}
}
