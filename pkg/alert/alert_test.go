package alert

import (
	"testing"
	"time"
)

func TestFingerprintDeterministic(t *testing.T) {
	p1 := PushAlert{Labels: map[string]string{"alertname": "X", "instance": "a"}}
	p2 := PushAlert{Labels: map[string]string{"instance": "a", "alertname": "X"}}
	if p1.Fingerprint() != p2.Fingerprint() {
		t.Fatalf("fingerprint should be order-independent over labels")
	}
}

func TestFingerprintDiffersOnLabelChange(t *testing.T) {
	p1 := PushAlert{Labels: map[string]string{"alertname": "X"}}
	p2 := PushAlert{Labels: map[string]string{"alertname": "Y"}}
	if p1.Fingerprint() == p2.Fingerprint() {
		t.Fatalf("fingerprints should differ for different labels")
	}
}

func TestIsFiringExplicitStatus(t *testing.T) {
	p := PushAlert{Status: "firing"}
	if !p.IsFiring() {
		t.Fatalf("expected firing")
	}
	p.Status = "resolved"
	if p.IsFiring() {
		t.Fatalf("expected not firing")
	}
}

func TestIsFiringFromEndsAt(t *testing.T) {
	p := PushAlert{}
	if !p.IsFiring() {
		t.Fatalf("nil endsAt should mean firing")
	}
	past := time.Now().Add(-time.Hour)
	p.EndsAt = &past
	if p.IsFiring() {
		t.Fatalf("past endsAt should mean not firing")
	}
	future := time.Now().Add(time.Hour)
	p.EndsAt = &future
	if !p.IsFiring() {
		t.Fatalf("future endsAt should mean firing")
	}
}

func TestToAlertDtoPriorityMissing(t *testing.T) {
	p := PushAlert{Labels: map[string]string{"alertname": "X"}, Status: "firing", StartsAt: time.Now()}
	a := ToAlertDto(p, "exec-1")
	if a.Priority != PriorityUnset {
		t.Fatalf("expected PriorityUnset, got %d", a.Priority)
	}
	if a.Status != StatusCreate {
		t.Fatalf("expected CREATE for firing alert")
	}
}

func TestToAlertDtoCancelOnResolved(t *testing.T) {
	p := PushAlert{Labels: map[string]string{"alertname": "X"}, Status: "resolved", StartsAt: time.Now()}
	a := ToAlertDto(p, "exec-1")
	if a.Status != StatusCancel {
		t.Fatalf("expected CANCEL for resolved alert")
	}
}

func TestToAlertDtoPriorityParsed(t *testing.T) {
	p := PushAlert{Labels: map[string]string{"alertname": "X", "priority": "5"}, Status: "firing", StartsAt: time.Now()}
	a := ToAlertDto(p, "exec-1")
	if a.Priority != 5 {
		t.Fatalf("expected priority 5, got %d", a.Priority)
	}
}
