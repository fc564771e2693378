// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/querysync"
//	"github.com/unkn0wn-root/querysync/hooks/async"
//	"github.com/unkn0wn-root/querysync/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SaveEvery:  10, // sample logs: ~every 10th coalesced save
//	    EvictEvery: 1,  // log every eviction
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	p, _ := querysync.NewPersister(querysync.PersistOptions{
//	    Store: store,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
//
// Hook callbacks must be cheap and non-blocking; when a sink is not (it
// writes to a socket, a slow logger, a metrics push gateway), this wrapper
// moves the call off the hot path. Under backpressure events are dropped,
// never queued unboundedly.
package asynchook

import (
	"sync"

	qs "github.com/unkn0wn-root/querysync"
)

type Hooks struct {
	inner qs.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ qs.Hooks = (*Hooks)(nil)

func New(inner qs.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SnapshotDiscarded(r qs.DiscardReason) {
	h.try(func() { h.inner.SnapshotDiscarded(r) })
}
func (h *Hooks) StorageError(op, name string, err error) {
	h.try(func() { h.inner.StorageError(op, name, err) })
}
func (h *Hooks) SaveCoalesced(name string) { h.try(func() { h.inner.SaveCoalesced(name) }) }
func (h *Hooks) DeferredSaveFailed(name string, err error) {
	h.try(func() { h.inner.DeferredSaveFailed(name, err) })
}
func (h *Hooks) CancelInFlightFailed(keyHash string, err error) {
	h.try(func() { h.inner.CancelInFlightFailed(keyHash, err) })
}
func (h *Hooks) EntryEvicted(keyHash string) { h.try(func() { h.inner.EntryEvicted(keyHash) }) }
