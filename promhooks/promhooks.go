// Package promhooks adapts querysync hook events onto Prometheus counters.
// Events aggregate across persisters and stores sharing one Hooks instance;
// wire a separate instance per component if you need them apart.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	qs "github.com/unkn0wn-root/querysync"
)

type Hooks struct {
	snapshotsDiscarded *prometheus.CounterVec
	storageErrors      *prometheus.CounterVec
	savesCoalesced     prometheus.Counter
	deferredSaveFails  prometheus.Counter
	cancelFailures     prometheus.Counter
	entriesEvicted     prometheus.Counter
}

var _ qs.Hooks = (*Hooks)(nil)

// New registers the querysync counters with reg and returns the sink.
// A nil reg registers with the default registry. Registering two instances
// with one registry panics, as duplicate collectors always do; keep one
// instance per registry.
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Hooks{
		snapshotsDiscarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querysync_snapshots_discarded_total",
				Help: "Restored snapshots rejected during validation",
			},
			[]string{"reason"},
		),
		storageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querysync_storage_errors_total",
				Help: "Swallowed storage failures by operation",
			},
			[]string{"op"},
		),
		savesCoalesced: f.NewCounter(
			prometheus.CounterOpts{
				Name: "querysync_saves_coalesced_total",
				Help: "Saves collapsed into a trailing throttled write",
			},
		),
		deferredSaveFails: f.NewCounter(
			prometheus.CounterOpts{
				Name: "querysync_deferred_save_failures_total",
				Help: "Trailing snapshot writes that failed",
			},
		),
		cancelFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "querysync_cancel_in_flight_failures_total",
				Help: "Mutation-start cancellations that failed",
			},
		),
		entriesEvicted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "querysync_entries_evicted_total",
				Help: "Cache entries evicted past their retention window",
			},
		),
	}
}

func (h *Hooks) SnapshotDiscarded(reason qs.DiscardReason) {
	h.snapshotsDiscarded.WithLabelValues(reason.String()).Inc()
}

func (h *Hooks) StorageError(op, _ string, _ error) {
	h.storageErrors.WithLabelValues(op).Inc()
}

func (h *Hooks) SaveCoalesced(string) {
	h.savesCoalesced.Inc()
}

func (h *Hooks) DeferredSaveFailed(string, error) {
	h.deferredSaveFails.Inc()
}

func (h *Hooks) CancelInFlightFailed(string, error) {
	h.cancelFailures.Inc()
}

func (h *Hooks) EntryEvicted(string) {
	h.entriesEvicted.Inc()
}
