package pupil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/pupil/events"
	"github.com/wisbric/argusd/pkg/watchdog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNocPoster struct {
	mu   sync.Mutex
	sent []nocclient.Message
	err  error
}

func (f *fakeNocPoster) Send(_ context.Context, msg nocclient.Message, _ bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNocPoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testWatchdogConfig() watchdog.Config {
	return watchdog.Config{
		Timeout:                  20 * time.Millisecond,
		NormalGracePeriod:        0,
		CrashRecoveryGracePeriod: 0,
	}
}

func TestSidecar_HeartbeatThenExpiry_PostsRememberedDetails(t *testing.T) {
	noc := &fakeNocPoster{}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())
	s.Start()
	defer s.Stop()

	msg := events.Message{
		Type:          events.Heartbeat,
		CorrelationID: "corr-1",
		NocDetails:    []byte(`{"priority":1,"name":"n","summary":"s"}`),
	}
	if err := s.handleHeartbeat(context.Background(), msg); err != nil {
		t.Fatalf("handleHeartbeat: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for noc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if noc.count() != 1 {
		t.Fatalf("expected one NOC post after expiry, got %d", noc.count())
	}
	if noc.sent[0].CorrelationID != "corr-1" {
		t.Fatalf("correlation id = %q, want corr-1", noc.sent[0].CorrelationID)
	}
	if noc.sent[0].Source != "pupil-1" {
		t.Fatalf("source = %q, want pupil-1", noc.sent[0].Source)
	}
}

func TestSidecar_ExpiryWithNoPriorHeartbeat_DoesNotPost(t *testing.T) {
	noc := &fakeNocPoster{}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())
	s.Start()
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)

	if noc.count() != 0 {
		t.Fatalf("expected no NOC post without prior heartbeat nocDetails, got %d", noc.count())
	}
}

func TestSidecar_HandleSendNocMessage_PostsImmediately(t *testing.T) {
	noc := &fakeNocPoster{}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())

	msg := events.Message{
		Type:          events.SendNocMessage,
		CorrelationID: "corr-2",
		NocDetails:    []byte(`{"priority":2,"name":"n2","summary":"s2"}`),
	}
	if err := s.handleSendNocMessage(context.Background(), msg); err != nil {
		t.Fatalf("handleSendNocMessage: %v", err)
	}
	if noc.count() != 1 {
		t.Fatalf("expected immediate NOC post, got %d", noc.count())
	}
}

func TestSidecar_HandleSendNocMessage_InvalidDetails(t *testing.T) {
	noc := &fakeNocPoster{}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())

	msg := events.Message{Type: events.SendNocMessage, CorrelationID: "corr-3"}
	if err := s.handleSendNocMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for missing nocDetails")
	}
	if noc.count() != 0 {
		t.Fatalf("expected no NOC post, got %d", noc.count())
	}
}

func TestSidecar_HandleSendNocMessage_NocError(t *testing.T) {
	noc := &fakeNocPoster{err: errors.New("noc unreachable")}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())

	msg := events.Message{
		Type:          events.SendNocMessage,
		CorrelationID: "corr-4",
		NocDetails:    []byte(`{"priority":1,"name":"n","summary":"s"}`),
	}
	if err := s.handleSendNocMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error propagated from noc client")
	}
}

func TestSidecar_RegisterHandlers(t *testing.T) {
	noc := &fakeNocPoster{}
	s := NewSidecar(testWatchdogConfig(), false, noc, "pupil-1", testLogger())
	r := events.New(2, time.Second, testLogger())
	s.RegisterHandlers(r)

	r.Start(context.Background())
	defer r.Stop()

	if err := r.Submit(context.Background(), events.Message{
		Type:          events.SendNocMessage,
		CorrelationID: "corr-5",
		NocDetails:    []byte(`{"priority":1,"name":"n","summary":"s"}`),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for noc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if noc.count() != 1 {
		t.Fatalf("expected dispatched handler to post to noc, got %d", noc.count())
	}
}
