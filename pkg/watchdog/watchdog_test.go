package watchdog

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpiresAfterTimeoutNoHeartbeat(t *testing.T) {
	var fired atomic.Bool
	w := New(Config{Timeout: 20 * time.Millisecond}, true, func() { fired.Store(true) }, nil, testLogger())
	w.RecordHeartbeat()

	time.Sleep(40 * time.Millisecond)
	if !fired.Load() {
		t.Fatalf("expected onExpire to fire after timeout")
	}
	if !w.IsExpired() {
		t.Fatalf("expected expired flag set")
	}
}

func TestHeartbeatResetsTimer(t *testing.T) {
	var fired atomic.Bool
	w := New(Config{Timeout: 30 * time.Millisecond}, true, func() { fired.Store(true) }, nil, testLogger())
	w.RecordHeartbeat()

	time.Sleep(15 * time.Millisecond)
	w.RecordHeartbeat() // should push expiry out again
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("expected timer reset by second heartbeat to prevent expiry")
	}
}

func TestNoTimerDuringGracePeriod(t *testing.T) {
	var fired atomic.Bool
	w := New(Config{Timeout: 5 * time.Millisecond, NormalGracePeriod: time.Hour}, false, func() { fired.Store(true) }, nil, testLogger())
	w.RecordHeartbeat()
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("expected no expiry timer armed during grace period")
	}
}

func TestCrashRecoveryUsesCrashGrace(t *testing.T) {
	w := New(Config{Timeout: time.Hour, NormalGracePeriod: time.Hour, CrashRecoveryGracePeriod: 0}, true, nil, nil, testLogger())
	if w.gracePeriod() != 0 {
		t.Fatalf("expected crash recovery grace period to be used")
	}
}

func TestStartArmsWithoutHeartbeat(t *testing.T) {
	var fired atomic.Bool
	w := New(Config{Timeout: 10 * time.Millisecond, NormalGracePeriod: 0}, false, func() { fired.Store(true) }, nil, testLogger())
	w.Start()
	time.Sleep(30 * time.Millisecond)
	if !fired.Load() {
		t.Fatalf("expected watchdog to expire from Start() alone, no heartbeat received")
	}
}

func TestOnHeartbeatCallback(t *testing.T) {
	var calls atomic.Int32
	w := New(Config{Timeout: time.Hour}, true, nil, func() { calls.Add(1) }, testLogger())
	w.RecordHeartbeat()
	w.RecordHeartbeat()
	if calls.Load() != 2 {
		t.Fatalf("expected onHeartbeat invoked once per RecordHeartbeat, got %d", calls.Load())
	}
}
