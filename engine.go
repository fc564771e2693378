package querysync

import "context"

// Engine is the narrow capability surface the mutation controller consumes
// from the query-execution engine. The engine owns fetch scheduling,
// subscriptions and the live cache; this package only needs these four
// operations. Package cachestore ships a reference implementation.
type Engine interface {
	// CancelInFlight signals the engine to abandon outstanding fetches
	// for key so a late response cannot clobber an optimistic write.
	// Best effort: it does not abort work already applied.
	CancelInFlight(ctx context.Context, key Key) error

	// ReadCached returns the cached value for key; ok=false means absent.
	ReadCached(key Key) (any, bool)

	// WriteCached stores value under key. The write is synchronous: a
	// read issued after WriteCached returns sees value.
	WriteCached(key Key, value any)

	// Invalidate marks every entry whose key matches pattern stale so
	// the next read refetches authoritative data.
	Invalidate(ctx context.Context, pattern Key) error
}
