// Package cachestore is the reference in-memory query cache behind the
// querysync.Engine interface: read-through fetching with per-strategy retry
// budgets, retention-based eviction, pattern invalidation, cancellation of
// in-flight fetches, and dehydrate/hydrate glue for the persister.
//
// Wiring with a persister:
//
//	store := cachestore.New(cachestore.Options{})
//	if payload, _, err := persister.Restore(ctx); err == nil {
//	    _ = store.Hydrate(payload)
//	}
//	// ... after writes:
//	if payload, err := store.Dehydrate(); err == nil {
//	    _ = persister.Save(ctx, payload)
//	}
package cachestore

import (
	"context"
	"sync"
	"time"

	qs "github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/codec"
)

type entry struct {
	key        qs.Key
	value      any
	updatedAt  time.Time     // freshness anchor: last authoritative or optimistic write
	lastAccess time.Time     // retention anchor
	retention  time.Duration // eviction window; qs.Forever = never evicted
	stale      bool          // marked by Invalidate; next fetch refetches
	hydrated   bool          // value is a restored generic shape until a typed fetch re-maps it
}

// Options tune the store. All fields have defaults.
type Options struct {
	// Policy applies to entries written outside a strategy-aware fetch
	// and is the strategy FetchDefault uses. nil => built-in defaults.
	Policy *qs.ExecutionPolicy

	// Codec encodes entry values for dehydration. nil => Msgpack.
	Codec codec.Codec[any]

	// SweepInterval is the retention janitor period. 0 => 1m; negative
	// disables the janitor (tests drive Sweep directly).
	SweepInterval time.Duration

	Logger qs.Logger // if nil, NopLogger is used
	Hooks  qs.Hooks  // if nil, NopHooks is used
}

// Store is an in-memory entry map addressed by the keys' canonical hashes.
// Safe for concurrent use.
type Store struct {
	policy qs.ExecutionPolicy
	codec  codec.Codec[any]
	log    qs.Logger
	hooks  qs.Hooks

	mu      sync.RWMutex
	entries map[string]*entry

	fmu      sync.Mutex
	inflight map[string][]*flight

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	now func() time.Time
}

// flight wraps a fetch's cancel func so concurrent fetches for one key stay
// individually identifiable.
type flight struct {
	cancel context.CancelFunc
}

var _ qs.Engine = (*Store)(nil)

// New builds a Store and starts its retention janitor.
func New(opts Options) *Store {
	policy := qs.NewExecutionPolicy(qs.PolicyOverrides{})
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	var c codec.Codec[any] = codec.Msgpack[any]{}
	if opts.Codec != nil {
		c = opts.Codec
	}
	log := qs.Logger(qs.NopLogger{})
	if opts.Logger != nil {
		log = opts.Logger
	}
	hooks := qs.Hooks(qs.NopHooks{})
	if opts.Hooks != nil {
		hooks = opts.Hooks
	}
	sweep := opts.SweepInterval
	if sweep == 0 {
		sweep = time.Minute
	}

	s := &Store{
		policy:   policy,
		codec:    c,
		log:      log,
		hooks:    hooks,
		entries:  make(map[string]*entry),
		inflight: make(map[string][]*flight),
		now:      time.Now,
	}
	if sweep > 0 {
		s.ticker = time.NewTicker(sweep)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Sweep()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// ReadCached returns the cached value for key and touches its retention
// window. Hydrated entries return their generic decoded shape until a typed
// fetch re-maps them.
func (s *Store) ReadCached(key qs.Key) (any, bool) {
	hash, err := key.Hash()
	if err != nil {
		return nil, false
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[hash]
	if !ok {
		return nil, false
	}
	e.lastAccess = now
	return e.value, true
}

// WriteCached stores value under key, visible to readers as soon as it
// returns. A write clears the stale mark - the writer asserts current
// knowledge. Retention stays as stamped by an earlier strategy-aware fetch;
// new entries get the default policy's window.
func (s *Store) WriteCached(key qs.Key, value any) {
	hash, err := key.Hash()
	if err != nil {
		s.log.Error("write dropped (unencodable key)", qs.Fields{"key": key.String(), "err": err})
		return
	}
	now := s.now()
	s.mu.Lock()
	if e, ok := s.entries[hash]; ok {
		e.value = value
		e.updatedAt = now
		e.lastAccess = now
		e.stale = false
		e.hydrated = false
	} else {
		s.entries[hash] = &entry{
			key:        cloneKey(key),
			value:      value,
			updatedAt:  now,
			lastAccess: now,
			retention:  s.policy.Retention,
		}
	}
	s.mu.Unlock()
}

// Invalidate marks every entry whose key matches pattern stale. Entries
// stay readable until a refetch replaces them.
func (s *Store) Invalidate(_ context.Context, pattern qs.Key) error {
	n := 0
	s.mu.Lock()
	for _, e := range s.entries {
		if e.key.Matches(pattern) {
			e.stale = true
			n++
		}
	}
	s.mu.Unlock()
	s.log.Debug("invalidated entries", qs.Fields{"pattern": pattern.String(), "count": n})
	return nil
}

// CancelInFlight cancels the contexts of outstanding fetches for key. Best
// effort: it abandons pending results, it does not abort work the fetch
// already applied.
func (s *Store) CancelInFlight(_ context.Context, key qs.Key) error {
	hash, err := key.Hash()
	if err != nil {
		return err
	}
	s.fmu.Lock()
	fs := s.inflight[hash]
	delete(s.inflight, hash)
	s.fmu.Unlock()
	for _, f := range fs {
		f.cancel()
	}
	return nil
}

// Sweep evicts entries unused past their retention. The janitor calls it
// on every tick; exported so tests can drive eviction deterministically.
func (s *Store) Sweep() {
	now := s.now()
	var evicted []string
	s.mu.Lock()
	for h, e := range s.entries {
		if e.retention == qs.Forever {
			continue
		}
		if now.Sub(e.lastAccess) > e.retention {
			delete(s.entries, h)
			evicted = append(evicted, h)
		}
	}
	s.mu.Unlock()
	for _, h := range evicted {
		s.hooks.EntryEvicted(h)
	}
}

// Clear drops every entry. In-flight fetches are unaffected; their results
// will repopulate the map.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the janitor and cancels outstanding fetches. Safe to call
// multiple times.
func (s *Store) Close(context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
		s.fmu.Lock()
		for _, fs := range s.inflight {
			for _, f := range fs {
				f.cancel()
			}
		}
		s.inflight = make(map[string][]*flight)
		s.fmu.Unlock()
	})
	return nil
}

// writeFetched installs an authoritative fetch result, stamping the
// strategy's retention and clearing stale/hydrated marks.
func (s *Store) writeFetched(key qs.Key, hash string, value any, strat qs.Strategy) {
	now := s.now()
	s.mu.Lock()
	if e, ok := s.entries[hash]; ok {
		e.value = value
		e.updatedAt = now
		e.lastAccess = now
		e.retention = strat.Retention
		e.stale = false
		e.hydrated = false
	} else {
		s.entries[hash] = &entry{
			key:        cloneKey(key),
			value:      value,
			updatedAt:  now,
			lastAccess: now,
			retention:  strat.Retention,
		}
	}
	s.mu.Unlock()
}

func (s *Store) registerFlight(hash string, cancel context.CancelFunc) (unregister func()) {
	f := &flight{cancel: cancel}
	s.fmu.Lock()
	s.inflight[hash] = append(s.inflight[hash], f)
	s.fmu.Unlock()
	return func() {
		s.fmu.Lock()
		defer s.fmu.Unlock()
		fs := s.inflight[hash]
		for i, g := range fs {
			if g == f {
				fs = append(fs[:i], fs[i+1:]...)
				break
			}
		}
		if len(fs) == 0 {
			delete(s.inflight, hash)
		} else {
			s.inflight[hash] = fs
		}
	}
}

// cloneKey copies the segment slice so later caller mutations cannot alias
// into stored state. Segment values themselves are shared.
func cloneKey(k qs.Key) qs.Key {
	return append(qs.Key(nil), k...)
}
