package querysync

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory storage.Store with per-op error injection.
type memStore struct {
	mu       sync.Mutex
	m        map[string][]byte
	setCalls int
	getErr   error
	setErr   error
	delErr   error
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	b, ok := s.m[name]
	return b, ok, nil
}

func (s *memStore) Set(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.m[name] = data
	return nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.m, name)
	return nil
}

func (s *memStore) Close(context.Context) error { return nil }

func (s *memStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCalls
}

// recordingHooks records everything reported into the sinks.
type recordingHooks struct {
	NopHooks
	mu           sync.Mutex
	discarded    []DiscardReason
	coalesced    int
	deferred     []error
	storage      []string
	cancelFailed []string
}

func (h *recordingHooks) SnapshotDiscarded(r DiscardReason) {
	h.mu.Lock()
	h.discarded = append(h.discarded, r)
	h.mu.Unlock()
}

func (h *recordingHooks) SaveCoalesced(string) {
	h.mu.Lock()
	h.coalesced++
	h.mu.Unlock()
}

func (h *recordingHooks) DeferredSaveFailed(_ string, err error) {
	h.mu.Lock()
	h.deferred = append(h.deferred, err)
	h.mu.Unlock()
}

func (h *recordingHooks) StorageError(op, _ string, _ error) {
	h.mu.Lock()
	h.storage = append(h.storage, op)
	h.mu.Unlock()
}

func (h *recordingHooks) CancelInFlightFailed(keyHash string, _ error) {
	h.mu.Lock()
	h.cancelFailed = append(h.cancelFailed, keyHash)
	h.mu.Unlock()
}

func newTestPersister(t *testing.T, opts PersistOptions) *Persister {
	t.Helper()
	p, err := NewPersister(opts)
	if err != nil {
		t.Fatalf("new persister: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewPersisterRequiresStore(t *testing.T) {
	if _, err := NewPersister(PersistOptions{}); err == nil {
		t.Fatal("nil store should be rejected")
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	store := newMemStore()
	p := newTestPersister(t, PersistOptions{Store: store, WriteThrottle: -1})

	payload := []byte("dehydrated cache")
	if err := p.Save(context.Background(), payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, reason, err := p.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if reason != DiscardNone {
		t.Fatalf("reason = %v", reason)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestRestoreColdStart(t *testing.T) {
	p := newTestPersister(t, PersistOptions{Store: newMemStore()})
	got, reason, err := p.Restore(context.Background())
	if err != nil || reason != DiscardNone || got != nil {
		t.Fatalf("cold start = (%v, %v, %v), want (nil, none, nil)", got, reason, err)
	}
}

func TestRestoreReadErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("disk on fire")
	p := newTestPersister(t, PersistOptions{Store: store})
	_, _, err := p.Restore(context.Background())
	if !errors.Is(err, store.getErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestRestoreVersionMismatchDiscardsAndDeletes(t *testing.T) {
	store := newMemStore()
	hooks := &recordingHooks{}
	writer := newTestPersister(t, PersistOptions{Store: store, Version: "1", WriteThrottle: -1})
	if err := writer.Save(context.Background(), []byte("v1 shape")); err != nil {
		t.Fatalf("save: %v", err)
	}

	reader := newTestPersister(t, PersistOptions{Store: store, Version: "2", Hooks: hooks})
	got, reason, err := reader.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got != nil || reason != DiscardVersionMismatch {
		t.Fatalf("got (%q, %v), want (nil, version-mismatch)", got, reason)
	}
	if _, ok, _ := store.Get(context.Background(), "querysync"); ok {
		t.Fatal("invalid snapshot should be deleted, not kept")
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.discarded) != 1 || hooks.discarded[0] != DiscardVersionMismatch {
		t.Fatalf("discard hook = %v", hooks.discarded)
	}
}

func TestRestoreCorruptDiscards(t *testing.T) {
	store := newMemStore()
	store.m["querysync"] = []byte("definitely not a snapshot")
	p := newTestPersister(t, PersistOptions{Store: store})
	got, reason, err := p.Restore(context.Background())
	if err != nil || got != nil || reason != DiscardDecode {
		t.Fatalf("got (%q, %v, %v), want (nil, decode, nil)", got, reason, err)
	}
}

func TestRestoreExpired(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()

	p := newTestPersister(t, PersistOptions{Store: store, MaxAge: time.Hour, WriteThrottle: -1})
	p.now = func() time.Time { return base }
	if err := p.Save(context.Background(), []byte("aging")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Exactly at the bound: still valid.
	p.now = func() time.Time { return base.Add(time.Hour) }
	got, reason, err := p.Restore(context.Background())
	if err != nil || reason != DiscardNone || got == nil {
		t.Fatalf("at the bound: (%q, %v, %v)", got, reason, err)
	}

	// One millisecond past: expired.
	p.now = func() time.Time { return base.Add(time.Hour + time.Millisecond) }
	got, reason, err = p.Restore(context.Background())
	if err != nil || got != nil || reason != DiscardExpired {
		t.Fatalf("past the bound: (%q, %v, %v)", got, reason, err)
	}
}

func TestRestoreToleratesFutureSnapshot(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	p := newTestPersister(t, PersistOptions{Store: store, MaxAge: time.Hour, WriteThrottle: -1})

	p.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := p.Save(context.Background(), []byte("from the future")); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.now = func() time.Time { return base }
	got, reason, err := p.Restore(context.Background())
	if err != nil || reason != DiscardNone || got == nil {
		t.Fatalf("clock-skewed snapshot rejected: (%q, %v, %v)", got, reason, err)
	}
}

func TestSaveThrottleCoalesces(t *testing.T) {
	store := newMemStore()
	hooks := &recordingHooks{}
	p := newTestPersister(t, PersistOptions{
		Store:         store,
		WriteThrottle: 150 * time.Millisecond,
		Hooks:         hooks,
	})

	if err := p.Save(context.Background(), []byte("one")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.writes() != 1 {
		t.Fatalf("leading save should write through, writes = %d", store.writes())
	}
	if err := p.Save(context.Background(), []byte("two")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := p.Save(context.Background(), []byte("three")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.writes() != 1 {
		t.Fatalf("in-window saves should defer, writes = %d", store.writes())
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.writes() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.writes() != 2 {
		t.Fatalf("trailing write never fired, writes = %d", store.writes())
	}

	got, reason, err := p.Restore(context.Background())
	if err != nil || reason != DiscardNone {
		t.Fatalf("restore: (%v, %v)", reason, err)
	}
	if !bytes.Equal(got, []byte("three")) {
		t.Fatalf("trailing write should carry the newest payload, got %q", got)
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if hooks.coalesced != 2 {
		t.Fatalf("coalesced hook fired %d times, want 2", hooks.coalesced)
	}
}

func TestSaveUnthrottledWritesEveryTime(t *testing.T) {
	store := newMemStore()
	p := newTestPersister(t, PersistOptions{Store: store, WriteThrottle: -1})
	for i := 0; i < 3; i++ {
		if err := p.Save(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if store.writes() != 3 {
		t.Fatalf("writes = %d, want 3", store.writes())
	}
}

func TestSaveImmediateErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("quota exceeded")
	p := newTestPersister(t, PersistOptions{Store: store, WriteThrottle: -1})
	if err := p.Save(context.Background(), []byte("x")); !errors.Is(err, store.setErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestCloseFlushesPending(t *testing.T) {
	store := newMemStore()
	p, err := NewPersister(PersistOptions{Store: store, WriteThrottle: time.Hour})
	if err != nil {
		t.Fatalf("new persister: %v", err)
	}

	if err := p.Save(context.Background(), []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := p.Save(context.Background(), []byte("second")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.writes() != 1 {
		t.Fatalf("second save should be pending, writes = %d", store.writes())
	}

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.writes() != 2 {
		t.Fatalf("close should flush the pending save, writes = %d", store.writes())
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Save(context.Background(), []byte("late")); err == nil {
		t.Fatal("save after close should fail")
	}
}

func TestClearCancelsPendingSave(t *testing.T) {
	store := newMemStore()
	p := newTestPersister(t, PersistOptions{Store: store, WriteThrottle: 100 * time.Millisecond})

	if err := p.Save(context.Background(), []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := p.Save(context.Background(), []byte("stale state")); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.Clear(context.Background())

	time.Sleep(250 * time.Millisecond)
	if got, reason, err := p.Restore(context.Background()); got != nil || reason != DiscardNone || err != nil {
		t.Fatalf("cleared state resurrected: (%q, %v, %v)", got, reason, err)
	}
}

func TestSize(t *testing.T) {
	store := newMemStore()
	hooks := &recordingHooks{}
	p := newTestPersister(t, PersistOptions{Store: store, WriteThrottle: -1, Hooks: hooks})

	if got := p.Size(context.Background()); got != 0 {
		t.Fatalf("empty size = %d", got)
	}
	if err := p.Save(context.Background(), []byte("payload")); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, ok, _ := store.Get(context.Background(), "querysync")
	if !ok {
		t.Fatal("snapshot missing after save")
	}
	if got := p.Size(context.Background()); got != len(raw) {
		t.Fatalf("size = %d, want %d", got, len(raw))
	}

	store.getErr = errors.New("read failed")
	if got := p.Size(context.Background()); got != 0 {
		t.Fatalf("size on error = %d, want 0", got)
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.storage) != 1 || hooks.storage[0] != "size" {
		t.Fatalf("storage hook = %v", hooks.storage)
	}
}

func TestDecodeSnapshotShortCircuitOrder(t *testing.T) {
	// A snapshot that is both the wrong version and expired reports the
	// version mismatch: checks run decode, version, age.
	enc, err := encodeSnapshotAt([]byte("old"), "1", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, reason := DecodeSnapshot(enc, "2", time.Hour)
	if reason != DiscardVersionMismatch {
		t.Fatalf("reason = %v, want version-mismatch", reason)
	}

	if _, reason := DecodeSnapshot([]byte("garbage"), "2", time.Hour); reason != DiscardDecode {
		t.Fatalf("reason = %v, want decode", reason)
	}
}

func TestDiscardReasonString(t *testing.T) {
	if DiscardNone.String() != "none" || DiscardDecode.String() != "decode" ||
		DiscardVersionMismatch.String() != "version-mismatch" || DiscardExpired.String() != "expired" {
		t.Fatal("unexpected DiscardReason string form")
	}
}
