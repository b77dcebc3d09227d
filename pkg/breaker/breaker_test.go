package breaker

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTripsAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenDuration: time.Hour, SuccessThreshold: 2}, testLogger())
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != Closed {
			t.Fatalf("expected Closed after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected Open after 3 failures, got %v", b.State())
	}
}

func TestHalfOpenAfterOpenDuration(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond, SuccessThreshold: 1}, testLogger())
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected Open")
	}
	time.Sleep(15 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen after openDuration elapsed, got %v", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Millisecond, SuccessThreshold: 2}, testLogger())
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen")
	}
	b.RecordSuccess()
	if b.State() != HalfOpen {
		t.Fatalf("expected still HalfOpen after 1 success")
	}
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected Closed after successThreshold successes")
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Millisecond, SuccessThreshold: 2}, testLogger())
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	_ = b.State()
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected Open after failure in HalfOpen")
	}
}

func TestIsAllowed(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Hour, SuccessThreshold: 1}, testLogger())
	if !b.IsAllowed() {
		t.Fatalf("expected allowed while closed")
	}
	b.RecordFailure()
	if b.IsAllowed() {
		t.Fatalf("expected refused while open")
	}
}

func TestShouldLogSuppression(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Hour, SuccessThreshold: 1, SuppressedLogInterval: time.Hour}, testLogger())
	b.RecordFailure()
	if !b.ShouldLog() {
		t.Fatalf("expected first log while open to be allowed")
	}
	if b.ShouldLog() {
		t.Fatalf("expected second log within interval to be suppressed")
	}
}
