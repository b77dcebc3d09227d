package l2cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
)

type fakeMapClient struct {
	mu      sync.Mutex
	data    map[string]string
	failSet bool
}

func newFakeMapClient() *fakeMapClient {
	return &fakeMapClient{data: make(map[string]string)}
}

func (f *fakeMapClient) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeMapClient) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("set failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeMapClient) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeMapClient) Entries(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		MaxWriteRetries: 1,
		WriteRetryDelay: time.Millisecond,
		CircuitBreaker:  breaker.Config{FailureThreshold: 2, OpenDuration: time.Hour, SuccessThreshold: 1},
	}
}

func TestSaveBatchAndLoadAll(t *testing.T) {
	client := newFakeMapClient()
	store := NewStore(client, testConfig(), testLogger(), nil)

	batch := map[string]alert.Alert{
		"f1": {Fingerprint: "f1", Status: alert.StatusCreate},
	}
	written := store.SaveBatch(context.Background(), batch)
	if len(written) != 1 {
		t.Fatalf("expected 1 written, got %d", len(written))
	}

	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := loaded["f1"]; !ok {
		t.Fatalf("expected f1 loaded back")
	}
}

func TestLoadAllSkipsCorruptRecords(t *testing.T) {
	client := newFakeMapClient()
	client.data["bad"] = "{not json"
	store := NewStore(client, testConfig(), testLogger(), nil)

	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected corrupt record skipped, got %d entries", len(loaded))
	}
}

func TestSaveBatchRetriesThenOpensBreaker(t *testing.T) {
	client := newFakeMapClient()
	client.failSet = true
	store := NewStore(client, testConfig(), testLogger(), nil)

	written := store.SaveBatch(context.Background(), map[string]alert.Alert{"f1": {Fingerprint: "f1"}})
	if len(written) != 0 {
		t.Fatalf("expected no writes to succeed")
	}
	if store.IsAvailable() {
		t.Fatalf("expected unavailable after failed write")
	}

	// second failing batch trips the breaker (failureThreshold=2)
	store.SaveBatch(context.Background(), map[string]alert.Alert{"f2": {Fingerprint: "f2"}})
	if store.cb.IsAllowed() {
		t.Fatalf("expected breaker open after threshold failures")
	}
}
