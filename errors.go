package querysync

import (
	"fmt"
)

// InvalidKeyError reports a key construction that cannot produce a usable
// address. Fatal to the calling operation; never retried.
type InvalidKeyError struct {
	Op     string // constructor that failed, e.g. "BuildKey"
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("querysync: %s: invalid key: %s", e.Op, e.Reason)
}

// UnknownStrategyError reports a Resolve against a classification the
// strategy set has no entry for. There is no silent fallback; callers
// register custom classifications explicitly.
type UnknownStrategyError struct {
	Classification Classification
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("querysync: unknown classification %q", string(e.Classification))
}

// SerializationError wraps an encode fault from a value codec, the snapshot
// envelope, or the canonical key encoder.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("querysync: %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// MutationStateError reports a lifecycle call against a Mutation in the
// wrong state (reusing a settled instance, settling before rollback, ...).
type MutationStateError struct {
	Op    string
	State MutationState
}

func (e *MutationStateError) Error() string {
	return fmt.Sprintf("querysync: %s: invalid in state %s", e.Op, e.State)
}
