package querysync

import (
	"math"
	"time"
)

// Classification buckets query data by volatility. Five canonical classes
// ship by default; callers may define arbitrary additional ones and bind
// them with Strategies.With.
type Classification string

const (
	ClassRealTime        Classification = "real-time"
	ClassUserScoped      Classification = "user-scoped"
	ClassReference       Classification = "reference"
	ClassPublicReadHeavy Classification = "public-read-heavy"
	ClassCustom          Classification = "custom"
)

// Refetch is the tri-state refetch trigger behavior.
type Refetch int

const (
	RefetchNever Refetch = iota
	RefetchIfStale
	RefetchAlways
)

func (r Refetch) String() string {
	switch r {
	case RefetchNever:
		return "never"
	case RefetchIfStale:
		return "if-stale"
	case RefetchAlways:
		return "always"
	default:
		return "unknown"
	}
}

// RetryPolicy caps fetch retries. Disabled wins over MaxAttempts.
type RetryPolicy struct {
	Disabled    bool
	MaxAttempts int
}

// Attempts returns the effective attempt budget: the initial try plus
// retries. Disabled or non-positive policies budget a single attempt.
func (p RetryPolicy) Attempts() int {
	if p.Disabled || p.MaxAttempts < 1 {
		return 1
	}
	return 1 + p.MaxAttempts
}

// Forever marks a window that never elapses: freshness Forever is never
// stale, retention Forever is never evicted.
const Forever = time.Duration(math.MaxInt64)

// Strategy is an immutable freshness/retention/refetch policy record.
// A zero Freshness means always stale. Freshness and Retention are
// independent consumer-facing signals; neither bounds the other.
type Strategy struct {
	Freshness          time.Duration
	Retention          time.Duration
	RefetchOnMount     Refetch
	RefetchOnFocus     Refetch
	RefetchOnReconnect Refetch
	Retry              RetryPolicy
}

// Fresh reports whether a value written at writtenAt is still fresh at now.
func (s Strategy) Fresh(writtenAt, now time.Time) bool {
	if s.Freshness == Forever {
		return true
	}
	if s.Freshness <= 0 {
		return false
	}
	return now.Sub(writtenAt) < s.Freshness
}

// Strategies is an immutable classification -> Strategy set. Build one at
// process start and hand it to the execution engine by reference; With
// derives extended sets without mutating shared state, so no locking is
// needed around reads.
type Strategies struct {
	byClass map[Classification]Strategy
}

// DefaultStrategies returns the canonical set.
func DefaultStrategies() *Strategies {
	return &Strategies{byClass: map[Classification]Strategy{
		ClassRealTime: {
			Freshness:          0, // always stale
			Retention:          time.Minute,
			RefetchOnMount:     RefetchAlways,
			RefetchOnFocus:     RefetchAlways,
			RefetchOnReconnect: RefetchAlways,
			Retry:              RetryPolicy{MaxAttempts: 1},
		},
		ClassUserScoped: {
			Freshness:          2 * time.Minute,
			Retention:          15 * time.Minute,
			RefetchOnMount:     RefetchIfStale,
			RefetchOnFocus:     RefetchIfStale,
			RefetchOnReconnect: RefetchIfStale,
			Retry:              RetryPolicy{MaxAttempts: 3},
		},
		ClassReference: {
			Freshness:          12 * time.Hour,
			Retention:          Forever,
			RefetchOnMount:     RefetchNever,
			RefetchOnFocus:     RefetchNever,
			RefetchOnReconnect: RefetchIfStale,
			Retry:              RetryPolicy{MaxAttempts: 3},
		},
		ClassPublicReadHeavy: {
			Freshness:          10 * time.Minute,
			Retention:          time.Hour,
			RefetchOnMount:     RefetchIfStale,
			RefetchOnFocus:     RefetchNever,
			RefetchOnReconnect: RefetchIfStale,
			Retry:              RetryPolicy{MaxAttempts: 3},
		},
		ClassCustom: {
			Freshness:          5 * time.Minute,
			Retention:          24 * time.Hour,
			RefetchOnMount:     RefetchNever,
			RefetchOnFocus:     RefetchNever,
			RefetchOnReconnect: RefetchIfStale,
			Retry:              RetryPolicy{MaxAttempts: 3},
		},
	}}
}

// With returns a copy of s with c bound to st; last write wins. s itself is
// never modified.
func (s *Strategies) With(c Classification, st Strategy) *Strategies {
	m := make(map[Classification]Strategy, len(s.byClass)+1)
	for k, v := range s.byClass {
		m[k] = v
	}
	m[c] = st
	return &Strategies{byClass: m}
}

// Resolve returns the strategy bound to c. Unknown classifications fail
// with *UnknownStrategyError; there is no fallback.
func (s *Strategies) Resolve(c Classification) (Strategy, error) {
	st, ok := s.byClass[c]
	if !ok {
		return Strategy{}, &UnknownStrategyError{Classification: c}
	}
	return st, nil
}

// ExecutionPolicy is the process-wide default the execution engine applies
// to every query lacking an explicit strategy.
type ExecutionPolicy struct {
	Freshness          time.Duration
	Retention          time.Duration
	RefetchOnMount     Refetch
	RefetchOnFocus     Refetch
	RefetchOnReconnect Refetch
	Retry              RetryPolicy
}

// PolicyOverrides carries optional per-field overrides for
// NewExecutionPolicy. Nil fields keep the built-in default.
type PolicyOverrides struct {
	Freshness          *time.Duration
	Retention          *time.Duration
	RefetchOnMount     *Refetch
	RefetchOnFocus     *Refetch
	RefetchOnReconnect *Refetch
	Retry              *RetryPolicy
}

// NewExecutionPolicy merges o over the built-in defaults: freshness 5m,
// retention 24h, 3 retry attempts, refetch on reconnect only when stale,
// never on mount or focus.
func NewExecutionPolicy(o PolicyOverrides) ExecutionPolicy {
	return ExecutionPolicy{
		Freshness:          deref(o.Freshness, 5*time.Minute),
		Retention:          deref(o.Retention, 24*time.Hour),
		RefetchOnMount:     deref(o.RefetchOnMount, RefetchNever),
		RefetchOnFocus:     deref(o.RefetchOnFocus, RefetchNever),
		RefetchOnReconnect: deref(o.RefetchOnReconnect, RefetchIfStale),
		Retry:              deref(o.Retry, RetryPolicy{MaxAttempts: 3}),
	}
}

// Strategy returns the policy in Strategy form for engine paths that
// consume the strategy record.
func (p ExecutionPolicy) Strategy() Strategy {
	return Strategy{
		Freshness:          p.Freshness,
		Retention:          p.Retention,
		RefetchOnMount:     p.RefetchOnMount,
		RefetchOnFocus:     p.RefetchOnFocus,
		RefetchOnReconnect: p.RefetchOnReconnect,
		Retry:              p.Retry,
	}
}
