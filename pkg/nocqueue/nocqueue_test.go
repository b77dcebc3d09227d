package nocqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/suppression"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVector struct {
	mu      sync.Mutex
	alerts  map[string]alert.Alert
	removed []string
}

func newFakeVector() *fakeVector {
	return &fakeVector{alerts: make(map[string]alert.Alert)}
}

func (f *fakeVector) Get(fingerprint string) (alert.Alert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[fingerprint]
	return a, ok
}

func (f *fakeVector) RemoveAlert(fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.alerts[fingerprint]
	delete(f.alerts, fingerprint)
	if ok {
		f.removed = append(f.removed, fingerprint)
	}
	return ok
}

type fakeTransport struct {
	mu            sync.Mutex
	postErr       error
	posted        []alert.Alert
	cancelsPosted [][]alert.Alert
}

func (f *fakeTransport) PostAlert(ctx context.Context, a alert.Alert, correlationID string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, a)
	return nil
}

func (f *fakeTransport) PostCancels(ctx context.Context, alerts []alert.Alert, correlationID string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelsPosted = append(f.cancelsPosted, alerts)
	return nil
}

func newWorker(vec *fakeVector, tr *fakeTransport) *Worker {
	supp := suppression.New(time.Hour, testLogger())
	return New(vec, tr, supp, nil, testLogger(), time.Minute, time.Hour)
}

func TestHandleCreateDispatchesAndMarksSent(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusCreate, SendToNoc: true}
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewCreateDecision("f1", "corr-1", time.Now()))

	if len(tr.posted) != 1 {
		t.Fatalf("expected 1 alert posted, got %d", len(tr.posted))
	}
}

func TestHandleCreateSkipsIfNoLongerCreate(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusCancel}
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewCreateDecision("f1", "corr-1", time.Now()))
	if len(tr.posted) != 0 {
		t.Fatalf("expected no post for stale CREATE decision")
	}
}

func TestHandleCreateSendToNocFalseMarksSentOnly(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusCreate, SendToNoc: false}
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewCreateDecision("f1", "corr-1", time.Now()))
	if len(tr.posted) != 0 {
		t.Fatalf("expected no POST when sendToNoc is false")
	}
}

func TestHandleUnknownRemovesAfterSuccess(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusUnknown, SendToNoc: true}
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewUnknownDecision("f1", "corr-1", time.Now()))
	if _, ok := vec.Get("f1"); ok {
		t.Fatalf("expected UNKNOWN alert removed after successful dispatch")
	}
}

func TestHandleUnknownKeepsOnPostFailure(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusUnknown, SendToNoc: true}
	tr := &fakeTransport{postErr: errors.New("boom")}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewUnknownDecision("f1", "corr-1", time.Now()))
	if _, ok := vec.Get("f1"); !ok {
		t.Fatalf("expected UNKNOWN alert retained on POST failure")
	}
}

func TestHandleUnknownSendToNocFalseStillRemoves(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusUnknown, SendToNoc: false}
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewUnknownDecision("f1", "corr-1", time.Now()))
	if len(tr.posted) != 0 {
		t.Fatalf("expected no POST when sendToNoc is false")
	}
	if _, ok := vec.Get("f1"); ok {
		t.Fatalf("expected UNKNOWN removed after a config skip (one-shot)")
	}
}

func TestHandleCancelsRemovesEvenOnPostFailure(t *testing.T) {
	vec := newFakeVector()
	vec.alerts["f1"] = alert.Alert{Fingerprint: "f1", Status: alert.StatusCancel, SendToNoc: true}
	vec.alerts["f2"] = alert.Alert{Fingerprint: "f2", Status: alert.StatusCancel, SendToNoc: false}
	tr := &fakeTransport{postErr: errors.New("boom")}
	w := newWorker(vec, tr)

	w.dispatch(context.Background(), alert.NewCancelsDecision([]string{"f1", "f2"}, "corr-1", time.Now()))

	if _, ok := vec.Get("f1"); ok {
		t.Fatalf("expected f1 removed despite POST failure")
	}
	if _, ok := vec.Get("f2"); ok {
		t.Fatalf("expected f2 removed (never sent, sendToNoc=false)")
	}
}

func TestWasRecentlyEnqueued(t *testing.T) {
	vec := newFakeVector()
	tr := &fakeTransport{}
	w := newWorker(vec, tr)

	if w.WasRecentlyEnqueued("f1") {
		t.Fatalf("expected not recently enqueued before any mark")
	}
	w.MarkAsEnqueued("f1")
	if !w.WasRecentlyEnqueued("f1") {
		t.Fatalf("expected recently enqueued right after marking")
	}
}
