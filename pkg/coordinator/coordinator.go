// Package coordinator implements the top-level scheduler: it fans the three
// alert sources (push ingestion, K8s poll, watchdog) into the alerts
// vector and drives the crash-recovery vs. normal boot state machine.
package coordinator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/k8slayer"
)

// Vector is the subset of the alerts vector the coordinator drives.
type Vector interface {
	UpdateAlert(a alert.Alert) bool
	CrashRecovery() bool
}

// K8sLayer is the subset of the K8s layer service the coordinator polls.
type K8sLayer interface {
	GetStateAsync(ctx context.Context) k8slayer.State
	GenerateAlerts(state k8slayer.State, executionID string) []alert.Alert
	BreakerState() breaker.State
}

// SnapshotService is the subset of the snapshot service the coordinator
// drives on a timer.
type SnapshotService interface {
	TakeSnapshot(correlationID string)
	TakeCrashRecoverySnapshot(correlationID string)
}

// WatchdogHandle is the subset of the watchdog the coordinator drives.
type WatchdogHandle interface {
	RecordHeartbeat()
	Start()
}

// Metrics receives ingestion/poll counters. A nil Metrics is valid.
type Metrics interface {
	IncReceived()
	IncFiltered()
	ObserveK8sPollDuration(d time.Duration)
	SetGracePeriodActive(bool)
	SetBreakerState(name string, state int)
}

type noopMetrics struct{}

func (noopMetrics) IncReceived()                         {}
func (noopMetrics) IncFiltered()                         {}
func (noopMetrics) ObserveK8sPollDuration(time.Duration) {}
func (noopMetrics) SetGracePeriodActive(bool)            {}
func (noopMetrics) SetBreakerState(string, int)          {}

// Config holds the coordinator's scheduling policy.
type Config struct {
	WatchdogAlertName string
	K8sPollInterval   time.Duration
	SnapshotInterval  time.Duration
	NormalGracePeriod time.Duration
}

// Coordinator is the top-level scheduler.
type Coordinator struct {
	cfg      Config
	vector   Vector
	k8s      K8sLayer
	snapshot SnapshotService
	watchdog WatchdogHandle
	metrics  Metrics
	logger   *slog.Logger

	mu                  sync.Mutex
	lastAlertReceivedAt time.Time
	snapshotStarted     bool
	lastK8sState        k8slayer.State
}

// New creates a Coordinator.
func New(cfg Config, vec Vector, k8s K8sLayer, snap SnapshotService, wd WatchdogHandle, metrics Metrics, logger *slog.Logger) *Coordinator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Coordinator{cfg: cfg, vector: vec, k8s: k8s, snapshot: snap, watchdog: wd, metrics: metrics, logger: logger}
}

// Run boots the coordinator and blocks, driving its timers until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.watchdog.Start()

	if c.vector.CrashRecovery() {
		c.bootCrashRecovery(ctx)
	} else {
		c.bootNormal(ctx)
	}

	c.runK8sPollLoop(ctx)
}

func (c *Coordinator) bootCrashRecovery(ctx context.Context) {
	c.logger.Info("booting in crash-recovery mode")

	execID := newCorrelationID("exec")
	state := c.k8s.GetStateAsync(ctx)
	for _, a := range c.k8s.GenerateAlerts(state, execID) {
		c.vector.UpdateAlert(a)
	}
	c.mu.Lock()
	c.lastK8sState = state
	c.mu.Unlock()

	c.snapshot.TakeCrashRecoverySnapshot(newCorrelationID("snapshot"))
	c.metrics.SetGracePeriodActive(false)
	c.startSnapshotLoop(ctx)
}

func (c *Coordinator) bootNormal(ctx context.Context) {
	c.metrics.SetGracePeriodActive(true)
	time.AfterFunc(c.cfg.NormalGracePeriod, func() {
		c.metrics.SetGracePeriodActive(false)
		c.snapshot.TakeSnapshot(newCorrelationID("snapshot"))
		c.startSnapshotLoop(ctx)
	})
}

func (c *Coordinator) startSnapshotLoop(ctx context.Context) {
	c.mu.Lock()
	if c.snapshotStarted {
		c.mu.Unlock()
		return
	}
	c.snapshotStarted = true
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.snapshot.TakeSnapshot(newCorrelationID("snapshot"))
			}
		}
	}()
}

func (c *Coordinator) runK8sPollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.K8sPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollK8s(ctx)
		}
	}
}

func (c *Coordinator) pollK8s(ctx context.Context) {
	start := time.Now()
	corrID := newCorrelationID("poll")
	execID := newCorrelationID("exec")
	state := c.k8s.GetStateAsync(ctx)
	for _, a := range c.k8s.GenerateAlerts(state, execID) {
		c.vector.UpdateAlert(a)
	}
	c.metrics.ObserveK8sPollDuration(time.Since(start))
	c.metrics.SetBreakerState("k8s", int(c.k8s.BreakerState()))
	c.logger.Debug("k8s poll complete",
		"correlation_id", corrID,
		"execution_id", execID,
		"layer_status", state.Layer.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	c.mu.Lock()
	c.lastK8sState = state
	c.mu.Unlock()
}

// LastK8sState returns the most recently polled K8s layer state, for
// GET /api/k8s/health.
func (c *Coordinator) LastK8sState() k8slayer.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastK8sState
}

// K8sBreakerState returns the current Kubernetes API circuit breaker state,
// for GET /api/k8s/circuit-breaker.
func (c *Coordinator) K8sBreakerState() breaker.State {
	return c.k8s.BreakerState()
}

// ReceiveAlerts normalises and routes one push-ingested batch.
// correlationID identifies the batch; an empty value gets a fresh push ID.
func (c *Coordinator) ReceiveAlerts(alerts []alert.PushAlert, correlationID string) {
	if correlationID == "" {
		correlationID = newCorrelationID("push")
	}

	c.mu.Lock()
	c.lastAlertReceivedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("received push batch", "correlation_id", correlationID, "count", len(alerts))

	for _, p := range alerts {
		c.metrics.IncReceived()

		if platform, ok := p.Labels["platform"]; !ok || !strings.EqualFold(platform, "argus") {
			c.metrics.IncFiltered()
			continue
		}

		execID := newCorrelationID("exec")

		if p.Name() == c.cfg.WatchdogAlertName && p.IsFiring() {
			c.watchdog.RecordHeartbeat()
			continue
		}

		c.vector.UpdateAlert(alert.ToAlertDto(p, execID))
	}
}

// LastAlertReceivedAt returns the timestamp of the most recent
// ReceiveAlerts call.
func (c *Coordinator) LastAlertReceivedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAlertReceivedAt
}
