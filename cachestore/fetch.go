package cachestore

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"

	qs "github.com/unkn0wn-root/querysync"
)

// FetchFunc produces the authoritative value for a key. It must honor ctx:
// a canceled fetch's result is abandoned, never cached.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Fetch returns the cached value for key when it is fresh under strat,
// otherwise invokes fn and caches its result. Failures retry per the
// strategy's retry policy. Stale entries always refetch; a fetch error
// surfaces even when a stale value is still cached, so the caller decides
// whether to keep serving it.
func Fetch[T any](ctx context.Context, s *Store, key qs.Key, strat qs.Strategy, fn FetchFunc[T]) (T, error) {
	var zero T
	hash, err := key.Hash()
	if err != nil {
		return zero, err
	}
	if v, ok := cachedFresh[T](s, hash, strat); ok {
		return v, nil
	}
	return fetchRemote[T](ctx, s, key, hash, strat, fn)
}

func fetchRemote[T any](ctx context.Context, s *Store, key qs.Key, hash string, strat qs.Strategy, fn FetchFunc[T]) (T, error) {
	var zero T
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unregister := s.registerFlight(hash, cancel)
	defer unregister()

	attempts := strat.Retry.Attempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn(fctx)
		if err == nil {
			// A cancellation that raced the fetch's completion still
			// abandons the result.
			if cerr := fctx.Err(); cerr != nil {
				return zero, cerr
			}
			s.writeFetched(key, hash, v, strat)
			return v, nil
		}
		if fctx.Err() != nil {
			return zero, fctx.Err()
		}
		lastErr = err
		s.log.Debug("fetch attempt failed", qs.Fields{
			"key":     key.String(),
			"attempt": i + 1,
			"err":     err,
		})
	}
	return zero, lastErr
}

// FetchDefault is Fetch with the store's default strategy.
func FetchDefault[T any](ctx context.Context, s *Store, key qs.Key, fn FetchFunc[T]) (T, error) {
	return Fetch[T](ctx, s, key, s.policy.Strategy(), fn)
}

// cachedFresh returns the entry's value when it is present, typed, not
// stale, and fresh under strat. Hydrated entries hold generic decoded
// shapes; those are re-mapped through the wire codec into T and the typed
// value written back so later reads skip the remap.
func cachedFresh[T any](s *Store, hash string, strat qs.Strategy) (T, bool) {
	var zero T
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[hash]
	if !ok {
		return zero, false
	}
	if e.stale || !strat.Fresh(e.updatedAt, now) {
		return zero, false
	}
	e.lastAccess = now
	if v, ok := e.value.(T); ok {
		return v, true
	}
	if e.hydrated {
		if v, ok := remap[T](e.value); ok {
			e.value = v
			e.hydrated = false
			return v, true
		}
	}
	// Typed mismatch on a live entry: treat as a miss and refetch.
	return zero, false
}

// remap converts a hydrated generic shape (map[string]any, []any, ...)
// into T by round-tripping it through msgpack.
func remap[T any](v any) (T, bool) {
	var out T
	b, err := msgpack.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := msgpack.Unmarshal(b, &out); err != nil {
		return out, false
	}
	return out, true
}

// Refresh forces a refetch regardless of freshness, replacing the cached
// value on success. Only this key refetches; entries scoped under it are
// untouched.
func Refresh[T any](ctx context.Context, s *Store, key qs.Key, strat qs.Strategy, fn FetchFunc[T]) (T, error) {
	var zero T
	hash, err := key.Hash()
	if err != nil {
		return zero, err
	}
	return fetchRemote[T](ctx, s, key, hash, strat, fn)
}
