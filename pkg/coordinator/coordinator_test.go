package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/k8slayer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVector struct {
	mu            sync.Mutex
	updated       []alert.Alert
	crashRecovery bool
}

func (v *fakeVector) UpdateAlert(a alert.Alert) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updated = append(v.updated, a)
	return true
}

func (v *fakeVector) CrashRecovery() bool { return v.crashRecovery }

func (v *fakeVector) snapshot() []alert.Alert {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]alert.Alert, len(v.updated))
	copy(out, v.updated)
	return out
}

type fakeK8sLayer struct {
	calls atomic.Int32
}

func (k *fakeK8sLayer) GetStateAsync(ctx context.Context) k8slayer.State {
	k.calls.Add(1)
	return k8slayer.State{Layer: k8slayer.Healthy}
}

func (k *fakeK8sLayer) GenerateAlerts(state k8slayer.State, executionID string) []alert.Alert {
	return []alert.Alert{
		{Fingerprint: k8slayer.FingerprintPrometheus, Status: alert.StatusIgnore},
		{Fingerprint: k8slayer.FingerprintKSM, Status: alert.StatusIgnore},
	}
}

func (k *fakeK8sLayer) BreakerState() breaker.State { return breaker.Closed }

type fakeSnapshot struct {
	normalCalls atomic.Int32
	crashCalls  atomic.Int32
}

func (s *fakeSnapshot) TakeSnapshot(correlationID string)              { s.normalCalls.Add(1) }
func (s *fakeSnapshot) TakeCrashRecoverySnapshot(correlationID string) { s.crashCalls.Add(1) }

type fakeWatchdog struct {
	started    atomic.Int32
	heartbeats atomic.Int32
}

func (w *fakeWatchdog) Start()           { w.started.Add(1) }
func (w *fakeWatchdog) RecordHeartbeat() { w.heartbeats.Add(1) }

func TestReceiveAlertsFiltersNonArgusPlatform(t *testing.T) {
	vec := &fakeVector{}
	wd := &fakeWatchdog{}
	c := New(Config{WatchdogAlertName: "watchdog"}, vec, &fakeK8sLayer{}, &fakeSnapshot{}, wd, nil, testLogger())

	c.ReceiveAlerts([]alert.PushAlert{
		{Labels: map[string]string{"alertname": "Foo", "platform": "other"}, Status: "firing"},
		{Labels: map[string]string{"alertname": "Bar", "platform": "argus"}, Status: "firing"},
	}, "push-test1")

	got := vec.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one alert to pass the platform filter, got %d", len(got))
	}
}

func TestReceiveAlertsRoutesWatchdogHeartbeat(t *testing.T) {
	vec := &fakeVector{}
	wd := &fakeWatchdog{}
	c := New(Config{WatchdogAlertName: "watchdog-heartbeat"}, vec, &fakeK8sLayer{}, &fakeSnapshot{}, wd, nil, testLogger())

	c.ReceiveAlerts([]alert.PushAlert{
		{Labels: map[string]string{"alertname": "watchdog-heartbeat", "platform": "argus"}, Status: "firing"},
	}, "push-test2")

	if wd.heartbeats.Load() != 1 {
		t.Fatalf("expected watchdog alert to be routed to RecordHeartbeat, not the vector")
	}
	if len(vec.snapshot()) != 0 {
		t.Fatalf("watchdog heartbeat alert should not be written to the vector")
	}
}

func TestPollK8sAlwaysWritesTwoAlerts(t *testing.T) {
	vec := &fakeVector{}
	k8s := &fakeK8sLayer{}
	c := New(Config{}, vec, k8s, &fakeSnapshot{}, &fakeWatchdog{}, nil, testLogger())

	c.pollK8s(context.Background())

	if got := vec.snapshot(); len(got) != 2 {
		t.Fatalf("expected exactly 2 alerts written per poll, got %d", len(got))
	}
	if k8s.calls.Load() != 1 {
		t.Fatalf("expected exactly one GetStateAsync call per poll")
	}
}

func TestBootCrashRecoveryTakesCrashSnapshot(t *testing.T) {
	vec := &fakeVector{crashRecovery: true}
	snap := &fakeSnapshot{}
	wd := &fakeWatchdog{}
	c := New(Config{K8sPollInterval: time.Hour, SnapshotInterval: time.Hour}, vec, &fakeK8sLayer{}, snap, wd, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.watchdog.Start()
	c.bootCrashRecovery(ctx)

	if snap.crashCalls.Load() != 1 {
		t.Fatalf("expected exactly one crash-recovery snapshot on crash-recovery boot")
	}
	if snap.normalCalls.Load() != 0 {
		t.Fatalf("expected no normal snapshot during crash-recovery boot")
	}
}

func TestBootNormalDefersSnapshotUntilGracePeriod(t *testing.T) {
	vec := &fakeVector{}
	snap := &fakeSnapshot{}
	c := New(Config{NormalGracePeriod: 15 * time.Millisecond, SnapshotInterval: time.Hour}, vec, &fakeK8sLayer{}, snap, &fakeWatchdog{}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.bootNormal(ctx)
	if snap.normalCalls.Load() != 0 {
		t.Fatalf("expected no snapshot before grace period elapses")
	}

	time.Sleep(40 * time.Millisecond)
	if snap.normalCalls.Load() != 1 {
		t.Fatalf("expected exactly one snapshot once the grace period elapses, got %d", snap.normalCalls.Load())
	}
}
