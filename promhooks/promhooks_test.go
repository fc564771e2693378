package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	qs "github.com/unkn0wn-root/querysync"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.SnapshotDiscarded(qs.DiscardExpired)
	h.SnapshotDiscarded(qs.DiscardExpired)
	h.SnapshotDiscarded(qs.DiscardDecode)
	h.StorageError("clear", "querysync", errors.New("boom"))
	h.SaveCoalesced("querysync")
	h.DeferredSaveFailed("querysync", errors.New("boom"))
	h.CancelInFlightFailed("abc123", errors.New("boom"))
	h.EntryEvicted("abc123")
	h.EntryEvicted("def456")

	if got := testutil.ToFloat64(h.snapshotsDiscarded.WithLabelValues("expired")); got != 2 {
		t.Errorf("discarded{expired} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(h.snapshotsDiscarded.WithLabelValues("decode")); got != 1 {
		t.Errorf("discarded{decode} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.storageErrors.WithLabelValues("clear")); got != 1 {
		t.Errorf("storage{clear} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.savesCoalesced); got != 1 {
		t.Errorf("coalesced = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.deferredSaveFails); got != 1 {
		t.Errorf("deferred failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.cancelFailures); got != 1 {
		t.Errorf("cancel failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.entriesEvicted); got != 2 {
		t.Errorf("evicted = %v, want 2", got)
	}
}

func TestNilRegistererUsesDefault(t *testing.T) {
	// Swap the default so the test does not pollute the process registry.
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	defer func() { prometheus.DefaultRegisterer = orig }()

	h := New(nil)
	h.EntryEvicted("abc")
	if got := testutil.ToFloat64(h.entriesEvicted); got != 1 {
		t.Fatalf("evicted = %v, want 1", got)
	}
}
