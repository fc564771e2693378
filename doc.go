// Package querysync keeps a client-side cache of asynchronously fetched data
// in sync: it builds and matches hierarchical cache keys, resolves per-class
// freshness/retention strategies, persists the cache across process restarts
// with version and age validation, and drives optimistic mutations with
// rollback.
//
// Components:
//   - Key: ordered hierarchical cache key (prefix = broader scope) with
//     wildcard pattern matching for bulk invalidation.
//   - Strategies: immutable classification -> Strategy table, built once at
//     startup and handed to the execution engine.
//   - Persister: versioned, age-bounded snapshot persistence over a pluggable
//     storage.Store (Redis, SQLite, BigCache, Ristretto).
//   - Mutation[V, A]: one-shot optimistic mutation lifecycle against an
//     Engine (cancel -> snapshot -> optimistic write -> rollback/settle).
//
// The query-execution engine itself is external; the core talks to it through
// the narrow Engine interface. Package cachestore ships a reference in-memory
// implementation with read-through fetching and dehydrate/hydrate glue for
// the persister.
//
// Optimistic pattern:
//
//	m, _ := querysync.NewMutation[Todo, string](engine, querysync.MutationOptions[Todo, string]{
//	    Key:     querysync.DetailKey("todos", 42),
//	    Updater: func(prev Todo, title string) Todo { prev.Title = title; return prev },
//	})
//	err := m.Run(ctx, "buy milk", func(ctx context.Context) error {
//	    return api.Rename(ctx, 42, "buy milk")
//	})
package querysync
