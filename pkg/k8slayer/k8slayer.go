// Package k8slayer runs the Prometheus-pod and kube-state-metrics-pod health
// checks in parallel each poll, derives a combined layer status, and always
// emits exactly two alerts (one per pod).
package k8slayer

import (
	"context"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/podhealth"
)

// LayerStatus is the combined health of the Prometheus and KSM pods.
type LayerStatus int

const (
	Healthy LayerStatus = iota
	Degraded
	Partial
	Critical
	LayerUnknown
)

func (s LayerStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Partial:
		return "partial"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Fingerprints for the two alerts this service always emits.
const (
	FingerprintPrometheus = "k8s-layer-prometheus"
	FingerprintKSM        = "k8s-layer-ksm"
)

// PodConfig names the pod this check targets and the NOC behaviour it
// attaches to CREATE/UNKNOWN alerts.
type PodConfig struct {
	LabelSelector      string
	ContainerName      string
	CreateNocBehavior  alert.NocBehavior
	UnknownNocBehavior alert.NocBehavior
}

// State is the combined result of one poll, as reported over
// GET /api/k8s/health.
type State struct {
	Layer      LayerStatus
	Prometheus podhealth.Result
	KSM        podhealth.Result
}

// Service orchestrates the two pod checks and alert generation.
type Service struct {
	checker    *podhealth.Checker
	prometheus PodConfig
	ksm        PodConfig
}

// New creates a Service.
func New(checker *podhealth.Checker, prometheus, ksm PodConfig) *Service {
	return &Service{checker: checker, prometheus: prometheus, ksm: ksm}
}

// BreakerState returns the current state of the shared Kubernetes API
// circuit breaker, for GET /api/k8s/circuit-breaker.
func (s *Service) BreakerState() breaker.State {
	return s.checker.BreakerState()
}

// GetStateAsync runs both pod checks in parallel and combines them.
func (s *Service) GetStateAsync(ctx context.Context) State {
	var prom, ksm podhealth.Result
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		prom = s.checker.CheckPod(ctx, s.prometheus.LabelSelector, s.prometheus.ContainerName)
	}()
	go func() {
		defer wg.Done()
		ksm = s.checker.CheckPod(ctx, s.ksm.LabelSelector, s.ksm.ContainerName)
	}()
	wg.Wait()

	return State{Layer: combine(prom.Status, ksm.Status), Prometheus: prom, KSM: ksm}
}

// combine derives the layer status from the Prom x KSM pair. Prometheus
// status dominates; KSM only refines a healthy Prometheus.
func combine(prom, ksm podhealth.Status) LayerStatus {
	switch prom {
	case podhealth.Down, podhealth.Unstable:
		return Critical
	case podhealth.Unknown:
		return LayerUnknown
	}
	// prom == Healthy from here
	switch ksm {
	case podhealth.Down:
		return Degraded
	case podhealth.Unknown:
		return Partial
	case podhealth.Unstable:
		return Degraded
	default:
		return Healthy
	}
}

// statusToAlertStatus maps one pod's own health result to the alert status
// it produces: Healthy -> IGNORE, Unknown -> UNKNOWN, anything else -> CREATE.
func statusToAlertStatus(s podhealth.Status) alert.Status {
	switch s {
	case podhealth.Healthy:
		return alert.StatusIgnore
	case podhealth.Unknown:
		return alert.StatusUnknown
	default:
		return alert.StatusCreate
	}
}

// GenerateAlerts builds the two alerts this poll always emits, tagging both
// with executionID so they share one lifecycle trace correlator.
func (s *Service) GenerateAlerts(state State, executionID string) []alert.Alert {
	now := time.Now()
	promAlert := buildAlert(FingerprintPrometheus, alert.PriorityPrometheusDown, "Prometheus pod", state.Prometheus, s.prometheus, executionID, now)
	ksmAlert := buildAlert(FingerprintKSM, alert.PriorityKSMDown, "kube-state-metrics pod", state.KSM, s.ksm, executionID, now)
	return []alert.Alert{promAlert, ksmAlert}
}

func buildAlert(fingerprint string, priority int, name string, result podhealth.Result, cfg PodConfig, executionID string, now time.Time) alert.Alert {
	status := statusToAlertStatus(result.Status)

	a := alert.Alert{
		Priority:    priority,
		Name:        name,
		Summary:     result.Reason,
		Source:      "k8s_layer",
		Fingerprint: fingerprint,
		Status:      status,
		Timestamp:   now,
		LastSeen:    now,
		ExecutionID: executionID,
	}

	var behavior alert.NocBehavior
	switch status {
	case alert.StatusCreate:
		behavior = cfg.CreateNocBehavior
	case alert.StatusUnknown:
		behavior = cfg.UnknownNocBehavior
	}
	a.SendToNoc = behavior.SendToNoc
	a.Payload = behavior.Payload
	a.SuppressWindow = behavior.SuppressWindow
	return a
}
