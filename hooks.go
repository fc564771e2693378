package querysync

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The persister and the engine call them on hot paths, and only for
// failures the calling flow swallowed.
type Hooks interface {
	// A persisted snapshot was rejected on restore and deleted.
	// reason ∈ {DiscardDecode, DiscardVersionMismatch, DiscardExpired}
	SnapshotDiscarded(reason DiscardReason)

	// A best-effort storage operation failed and was swallowed.
	// op ∈ {"clear", "size"}
	StorageError(op, name string, err error)

	// A Save burst collapsed into the armed trailing write.
	SaveCoalesced(name string)

	// A deferred (trailing) save failed after its caller already returned.
	DeferredSaveFailed(name string, err error)

	// Cancelling in-flight reads failed during mutation begin.
	// The mutation proceeded anyway.
	CancelInFlightFailed(keyHash string, err error)

	// The retention janitor evicted an entry unused past its retention.
	EntryEvicted(keyHash string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SnapshotDiscarded(DiscardReason)    {}
func (NopHooks) StorageError(string, string, error) {}
func (NopHooks) SaveCoalesced(string)               {}
func (NopHooks) DeferredSaveFailed(string, error)   {}
func (NopHooks) CancelInFlightFailed(string, error) {}
func (NopHooks) EntryEvicted(string)                {}
