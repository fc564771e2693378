package querysync

import (
	"context"
	"fmt"
)

// MutationState tracks the one-shot mutation lifecycle.
type MutationState int

const (
	StateIdle MutationState = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// MutationOptions configure a single optimistic mutation.
// Key and Updater are required.
type MutationOptions[V, A any] struct {
	// Key addresses the cached value the mutation speculates on.
	Key Key

	// Updater computes the optimistic value from the current cached
	// value. Only called when a value of type V is cached; an absent or
	// shape-incompatible entry is left untouched.
	Updater func(prev V, args A) V

	// DisableInvalidate keeps the optimistic value authoritative after a
	// confirmed write. Default false: success invalidates the key so the
	// next read refetches the server's actual value.
	DisableInvalidate bool

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// MutationContext is the view captured by Begin: the addressed key, the
// snapshot taken before the optimistic write, and the mutation args.
type MutationContext[V, A any] struct {
	Key Key

	// Previous is the typed snapshot. Zero when HadValue is false or the
	// cached value was not a V.
	Previous V

	// HadValue reports whether any value was cached at Begin. Absent is
	// a valid, distinct snapshot state, not an error.
	HadValue bool

	Args A
}

// Mutation drives exactly one optimistic mutation against an Engine:
// Idle -> Pending -> Committed | RolledBack. Instances are single-use and
// belong to the one flow driving the mutation; they are not safe for
// concurrent use. Calls outside the lifecycle order fail with
// *MutationStateError.
//
// Mutations targeting different keys proceed fully independently.
// Mutations targeting the SAME key are not coordinated: each Begin
// snapshots whatever is current, so interleaved completions on one key are
// last-writer-wins. Callers needing strict ordering serialize above this
// layer.
type Mutation[V, A any] struct {
	engine     Engine
	key        Key
	update     func(prev V, args A) V
	invalidate bool
	log        Logger
	hooks      Hooks

	state   MutationState
	prev    any // verbatim snapshot for rollback
	hadPrev bool
}

// NewMutation validates opts and returns a Mutation in StateIdle.
func NewMutation[V, A any](engine Engine, opts MutationOptions[V, A]) (*Mutation[V, A], error) {
	if engine == nil {
		return nil, fmt.Errorf("querysync: engine is required")
	}
	if len(opts.Key) == 0 {
		return nil, fmt.Errorf("querysync: key is required")
	}
	if opts.Updater == nil {
		return nil, fmt.Errorf("querysync: updater is required")
	}
	return &Mutation[V, A]{
		engine:     engine,
		key:        opts.Key,
		update:     opts.Updater,
		invalidate: !opts.DisableInvalidate,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		state:      StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (m *Mutation[V, A]) State() MutationState { return m.state }

// Begin starts the mutation: Idle -> Pending. In order it (1) cancels
// in-flight fetches for the key, best effort - a failure is reported and
// the mutation proceeds; (2) snapshots the current cached value; (3) iff a
// value of type V is present, writes the optimistic value synchronously,
// so any read after Begin returns sees it before the remote call resolves.
// When no value is cached nothing speculative is written - there is
// nothing safe to update.
func (m *Mutation[V, A]) Begin(ctx context.Context, args A) (MutationContext[V, A], error) {
	if m.state != StateIdle {
		return MutationContext[V, A]{}, &MutationStateError{Op: "Begin", State: m.state}
	}
	m.state = StatePending

	if err := m.engine.CancelInFlight(ctx, m.key); err != nil {
		m.hooks.CancelInFlightFailed(m.keyHash(), err)
		m.log.Warn("cancel in-flight failed; proceeding", Fields{"key": m.key.String(), "err": err})
	}

	mc := MutationContext[V, A]{Key: m.key, Args: args}
	if raw, ok := m.engine.ReadCached(m.key); ok {
		m.prev, m.hadPrev = raw, true
		mc.HadValue = true
		if prev, ok := raw.(V); ok {
			mc.Previous = prev
			m.engine.WriteCached(m.key, m.update(prev, args))
		} else {
			m.log.Debug("optimistic write skipped (cached shape is not V)", Fields{"key": m.key.String()})
		}
	}
	return mc, nil
}

// OnFailure rolls the mutation back: Pending -> RolledBack. The snapshot is
// written back verbatim iff one was present, fully undoing the speculative
// write. Restoring an in-memory value cannot fail, so rollback never blocks
// propagating the remote write's error.
func (m *Mutation[V, A]) OnFailure(ctx context.Context) error {
	if m.state != StatePending {
		return &MutationStateError{Op: "OnFailure", State: m.state}
	}
	m.state = StateRolledBack
	if m.hadPrev {
		m.engine.WriteCached(m.key, m.prev)
	}
	m.log.Debug("mutation rolled back", Fields{"key": m.key.String(), "restored": m.hadPrev})
	return nil
}

// OnSettled finishes the lifecycle once the remote write's outcome is
// known. On success: Pending -> Committed, and the key is invalidated so
// the next read replaces the optimistic value with authoritative data
// (unless DisableInvalidate was set); a failed invalidation leaves the
// mutation Committed and returns the error. On failure it is a no-op
// acknowledging a completed rollback - OnFailure must already have run.
func (m *Mutation[V, A]) OnSettled(ctx context.Context, succeeded bool) error {
	if !succeeded {
		if m.state != StateRolledBack {
			return &MutationStateError{Op: "OnSettled", State: m.state}
		}
		return nil
	}
	if m.state != StatePending {
		return &MutationStateError{Op: "OnSettled", State: m.state}
	}
	m.state = StateCommitted
	if !m.invalidate {
		return nil
	}
	if err := m.engine.Invalidate(ctx, m.key); err != nil {
		m.log.Warn("post-commit invalidation failed", Fields{"key": m.key.String(), "err": err})
		return err
	}
	return nil
}

// Run drives the full lifecycle around the delegated remote write:
// Begin, write, then rollback+settle on failure or settle on success.
// The remote write's error is passed through after rollback completes.
func (m *Mutation[V, A]) Run(ctx context.Context, args A, write func(context.Context) error) error {
	if _, err := m.Begin(ctx, args); err != nil {
		return err
	}
	if err := write(ctx); err != nil {
		_ = m.OnFailure(ctx)
		_ = m.OnSettled(ctx, false)
		return err
	}
	return m.OnSettled(ctx, true)
}

func (m *Mutation[V, A]) keyHash() string {
	h, err := m.key.Hash()
	if err != nil {
		return m.key.String()
	}
	return h
}
