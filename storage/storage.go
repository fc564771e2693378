// Package storage defines the durable byte-store capability snapshot
// persistence writes through.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a name (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// Snapshot validity (schema version, age) is enforced by the envelope on
// restore, not by storage expiry; a store MAY still drop entries on its own
// (bounded memory, TTL hygiene) since a missing snapshot is just a cold
// start.
package storage

import "context"

// Store is a named byte store. Must be safe for concurrent use.
type Store interface {
	// Get returns (data, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, name string) ([]byte, bool, error)

	// Set stores data under name, replacing any previous value.
	Set(ctx context.Context, name string, data []byte) error

	// Delete removes a name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
