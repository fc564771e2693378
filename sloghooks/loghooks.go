// Package sloghooks adapts querysync hook events onto log/slog, with
// sampling for the high-frequency events so a busy cache cannot flood the
// log.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	qs "github.com/unkn0wn-root/querysync"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SaveEvery  uint64 // coalesced saves
	EvictEvery uint64 // retention evictions

	// Optional key redactor. Defaults to SHA-256 prefix: canonical key
	// hashes encode caller data (ids, filters) and do not belong in logs
	// verbatim.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	saveCtr  atomic.Uint64
	evictCtr atomic.Uint64
}

var _ qs.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SnapshotDiscarded(reason qs.DiscardReason) {
	if h.l == nil {
		return
	}
	h.l.Info("querysync.snapshot_discarded",
		"reason", reason.String())
}

func (h *Hooks) StorageError(op, name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querysync.storage_error",
		"op", op,
		"name", name,
		"err", err)
}

func (h *Hooks) SaveCoalesced(name string) {
	if h.l == nil || !sample(h.opts.SaveEvery, &h.saveCtr) {
		return
	}
	h.l.Debug("querysync.save_coalesced",
		"name", name)
}

func (h *Hooks) DeferredSaveFailed(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querysync.deferred_save_failed",
		"name", name,
		"err", err)
}

func (h *Hooks) CancelInFlightFailed(keyHash string, err error) {
	if h.l == nil {
		return
	}
	h.l.Debug("querysync.cancel_in_flight_failed",
		"key", h.redact(keyHash),
		"err", err)
}

func (h *Hooks) EntryEvicted(keyHash string) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("querysync.entry_evicted",
		"key", h.redact(keyHash))
}
