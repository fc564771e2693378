package querysync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/querysync/internal/wire"
	"github.com/unkn0wn-root/querysync/storage"
)

// DiscardReason classifies why a restored snapshot was rejected. It is a
// typed outcome, not an error: any rejection means "treat the cache as a
// cold start", never a retry, never a partial apply.
type DiscardReason int

const (
	DiscardNone DiscardReason = iota
	DiscardDecode
	DiscardVersionMismatch
	DiscardExpired
)

func (r DiscardReason) String() string {
	switch r {
	case DiscardNone:
		return "none"
	case DiscardDecode:
		return "decode"
	case DiscardVersionMismatch:
		return "version-mismatch"
	case DiscardExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// EncodeSnapshot frames payload with the schema version and the current
// write time. The payload is an opaque blob owned by the execution engine;
// this layer never inspects it.
func EncodeSnapshot(payload []byte, version string) ([]byte, error) {
	return encodeSnapshotAt(payload, version, time.Now())
}

func encodeSnapshotAt(payload []byte, version string, at time.Time) ([]byte, error) {
	b, err := wire.EncodeSnapshot(version, at.UnixMilli(), payload)
	if err != nil {
		return nil, &SerializationError{Op: "encode snapshot", Err: err}
	}
	return b, nil
}

// DecodeSnapshot validates raw and returns its payload. Checks run in
// short-circuit order decode, version, age; the first failure wins and the
// whole snapshot is discarded. The age bound is inclusive: a snapshot read
// exactly maxAge after it was written is still valid, and one written in
// the future (clock adjustment) is not rejected.
func DecodeSnapshot(raw []byte, expectedVersion string, maxAge time.Duration) ([]byte, DiscardReason) {
	return decodeSnapshotAt(raw, expectedVersion, maxAge, time.Now())
}

func decodeSnapshotAt(raw []byte, expectedVersion string, maxAge time.Duration, now time.Time) ([]byte, DiscardReason) {
	snap, err := wire.DecodeSnapshot(raw)
	if err != nil {
		return nil, DiscardDecode
	}
	if snap.Version != expectedVersion {
		return nil, DiscardVersionMismatch
	}
	if now.UnixMilli()-snap.WrittenAt > maxAge.Milliseconds() {
		return nil, DiscardExpired
	}
	return snap.Payload, DiscardNone
}

// flushTimeout bounds deferred (trailing) storage writes, which run without
// a caller context.
const flushTimeout = 5 * time.Second

// PersistOptions configure a Persister. Only Store is required.
type PersistOptions struct {
	// Required
	Store storage.Store

	KeyPrefix     string        // storage entry name; "" => "querysync"
	Version       string        // schema version stamped into snapshots; "" => "1"
	MaxAge        time.Duration // restore rejects older snapshots; 0 => 24h
	WriteThrottle time.Duration // min gap between storage writes; 0 => 1s; negative => unthrottled
	Logger        Logger        // if nil, NopLogger is used
	Hooks         Hooks         // if nil, NopHooks is used
}

// Persister writes the engine's dehydrated cache to durable storage and
// restores it across restarts, rejecting snapshots that fail decode,
// version or age validation. One Persister owns one named storage entry;
// the entry is the entire cache, not per-key records.
type Persister struct {
	store    storage.Store
	name     string
	version  string
	maxAge   time.Duration
	throttle time.Duration
	log      Logger
	hooks    Hooks

	now func() time.Time

	mu        sync.Mutex
	lastWrite time.Time
	pending   []byte // latest encoded snapshot awaiting the trailing write
	timer     *time.Timer
	closed    bool
}

func NewPersister(opts PersistOptions) (*Persister, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("querysync: store is required")
	}
	return &Persister{
		store:    opts.Store,
		name:     coalesce(opts.KeyPrefix, "querysync"),
		version:  coalesce(opts.Version, "1"),
		maxAge:   coalesce(opts.MaxAge, 24*time.Hour),
		throttle: coalesce(opts.WriteThrottle, time.Second),
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:      time.Now,
	}, nil
}

// Save persists payload. The first save in a throttle window writes through
// before returning; later saves within the window collapse into a single
// trailing write carrying the newest payload. Errors from the immediate
// write are returned; errors from a trailing write surface through
// Hooks.DeferredSaveFailed since the caller is long gone.
func (p *Persister) Save(ctx context.Context, payload []byte) error {
	enc, err := encodeSnapshotAt(payload, p.version, p.now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("querysync: persister is closed")
	}
	if p.throttle > 0 {
		if p.timer != nil {
			// trailing write already armed; newest payload wins
			p.pending = enc
			p.mu.Unlock()
			p.hooks.SaveCoalesced(p.name)
			return nil
		}
		if since := p.now().Sub(p.lastWrite); since < p.throttle {
			p.pending = enc
			p.timer = time.AfterFunc(p.throttle-since, p.flushPending)
			p.mu.Unlock()
			p.hooks.SaveCoalesced(p.name)
			return nil
		}
	}
	p.lastWrite = p.now()
	p.mu.Unlock()

	return p.store.Set(ctx, p.name, enc)
}

func (p *Persister) flushPending() {
	p.mu.Lock()
	enc := p.pending
	p.pending = nil
	p.timer = nil
	p.lastWrite = p.now()
	closed := p.closed
	p.mu.Unlock()
	if enc == nil || closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.store.Set(ctx, p.name, enc); err != nil {
		p.hooks.DeferredSaveFailed(p.name, err)
		p.log.Warn("deferred snapshot save failed", Fields{"name": p.name, "err": err})
	}
}

// Restore loads the persisted snapshot. A missing entry is a cold start:
// (nil, DiscardNone, nil). An invalid snapshot is deleted from storage -
// discarded, never overwritten in place - and reported through the returned
// reason and the hooks sink; the error return carries storage read failures
// only.
func (p *Persister) Restore(ctx context.Context) ([]byte, DiscardReason, error) {
	raw, ok, err := p.store.Get(ctx, p.name)
	if err != nil {
		return nil, DiscardNone, err
	}
	if !ok {
		return nil, DiscardNone, nil
	}

	payload, reason := decodeSnapshotAt(raw, p.version, p.maxAge, p.now())
	if reason != DiscardNone {
		p.hooks.SnapshotDiscarded(reason)
		p.log.Info("persisted snapshot discarded", Fields{"name": p.name, "reason": reason.String()})
		if derr := p.store.Delete(ctx, p.name); derr != nil {
			p.hooks.StorageError("clear", p.name, derr)
		}
		return nil, reason, nil
	}
	return payload, DiscardNone, nil
}

// Clear drops the persisted snapshot and cancels any armed trailing save,
// so pre-clear state cannot resurrect. Best effort: storage failures are
// swallowed and reported to the hooks sink; the calling flow proceeds with
// the cache simply not cleared.
func (p *Persister) Clear(ctx context.Context) {
	p.mu.Lock()
	p.pending = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if err := p.store.Delete(ctx, p.name); err != nil {
		p.hooks.StorageError("clear", p.name, err)
		p.log.Warn("snapshot clear failed", Fields{"name": p.name, "err": err})
	}
}

// Size reports the stored snapshot's size in bytes. Best effort: 0 on
// absence or any failure, reported to the hooks sink.
func (p *Persister) Size(ctx context.Context) int {
	raw, ok, err := p.store.Get(ctx, p.name)
	if err != nil {
		p.hooks.StorageError("size", p.name, err)
		return 0
	}
	if !ok {
		return 0
	}
	return len(raw)
}

// Close flushes a pending trailing save and stops the persister. Further
// saves fail. Close does not close the underlying store; the store's owner
// does.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	enc := p.pending
	p.pending = nil
	p.mu.Unlock()

	if enc != nil {
		if err := p.store.Set(ctx, p.name, enc); err != nil {
			p.hooks.DeferredSaveFailed(p.name, err)
			return err
		}
	}
	return nil
}
