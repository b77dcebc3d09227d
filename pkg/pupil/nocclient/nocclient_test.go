package nocclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/pupil/recovery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePoster struct {
	mu       sync.Mutex
	err      error
	attempts int
	posted   []nocclient.Message
}

func (f *fakePoster) Post(_ context.Context, msg nocclient.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, msg)
	return nil
}

type fakeShutdown struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeShutdown) RequestShutdown(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func testConfig() Config {
	return Config{MaxRetries: 2, RetryDelay: time.Millisecond, RetryMultiplier: 2}
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	poster := &fakePoster{}
	c := New(poster, testConfig(), nil, nil, "pupil-1", testLogger())

	if err := c.Send(context.Background(), nocclient.Message{Name: "n"}, true, "corr-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if poster.attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", poster.attempts)
	}
}

func TestSendToNocFalseIsNoop(t *testing.T) {
	poster := &fakePoster{err: errors.New("should never be called")}
	c := New(poster, testConfig(), nil, nil, "pupil-1", testLogger())

	if err := c.Send(context.Background(), nocclient.Message{}, false, "corr-1"); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
	if poster.attempts != 0 {
		t.Fatalf("expected no attempts, got %d", poster.attempts)
	}
}

func TestSendExhaustedPersistsAndRequestsShutdown(t *testing.T) {
	poster := &fakePoster{err: errors.New("HTTP 500")}
	store := recovery.New(t.TempDir(), "recovery.json")
	shutdown := &fakeShutdown{}
	c := New(poster, testConfig(), store, shutdown, "pupil-1", testLogger())

	err := c.Send(context.Background(), nocclient.Message{Name: "n", Summary: "s"}, true, "corr-6")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if poster.attempts != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", poster.attempts)
	}

	rec, ok, loadErr := store.Load()
	if loadErr != nil || !ok {
		t.Fatalf("expected recovery record persisted, ok=%v err=%v", ok, loadErr)
	}
	if rec.FailureReason != "HTTP 500" || rec.CorrelationID != "corr-6" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(shutdown.reasons) != 1 {
		t.Fatalf("expected one shutdown request, got %d", len(shutdown.reasons))
	}
}

func TestReplayRecoveryPostsAndDeletes(t *testing.T) {
	store := recovery.New(t.TempDir(), "recovery.json")

	failing := &fakePoster{err: errors.New("HTTP 500")}
	c := New(failing, testConfig(), store, nil, "pupil-1", testLogger())
	_ = c.Send(context.Background(), nocclient.Message{Name: "n", Summary: "down"}, true, "corr-7")

	// next boot: the endpoint is healthy again
	healthy := &fakePoster{}
	c2 := New(healthy, testConfig(), store, nil, "pupil-1", testLogger())
	if err := c2.ReplayRecovery(context.Background()); err != nil {
		t.Fatalf("ReplayRecovery: %v", err)
	}

	if len(healthy.posted) != 1 {
		t.Fatalf("expected one replay post, got %d", len(healthy.posted))
	}
	if !strings.HasPrefix(healthy.posted[0].Summary, "[RECOVERY] ") {
		t.Fatalf("expected summary prefixed, got %q", healthy.posted[0].Summary)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatalf("expected recovery file deleted after successful replay")
	}
}

func TestReplayRecoveryLeavesFileOnFailure(t *testing.T) {
	store := recovery.New(t.TempDir(), "recovery.json")

	failing := &fakePoster{err: errors.New("HTTP 500")}
	c := New(failing, testConfig(), store, nil, "pupil-1", testLogger())
	_ = c.Send(context.Background(), nocclient.Message{Name: "n"}, true, "corr-8")

	stillFailing := &fakePoster{err: errors.New("HTTP 500")}
	c2 := New(stillFailing, testConfig(), store, nil, "pupil-1", testLogger())
	if err := c2.ReplayRecovery(context.Background()); err == nil {
		t.Fatal("expected replay failure propagated")
	}
	if _, ok, _ := store.Load(); !ok {
		t.Fatalf("expected recovery file left in place for the next boot")
	}
}

func TestReplayRecoveryNoFile(t *testing.T) {
	store := recovery.New(t.TempDir(), "recovery.json")
	c := New(&fakePoster{}, testConfig(), store, nil, "pupil-1", testLogger())
	if err := c.ReplayRecovery(context.Background()); err != nil {
		t.Fatalf("expected no-op with no recovery file, got %v", err)
	}
}
