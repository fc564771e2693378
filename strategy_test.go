package querysync

import (
	"errors"
	"testing"
	"time"
)

func TestRetryAttempts(t *testing.T) {
	tests := []struct {
		policy RetryPolicy
		want   int
	}{
		{RetryPolicy{}, 1},
		{RetryPolicy{MaxAttempts: 3}, 4},
		{RetryPolicy{MaxAttempts: -2}, 1},
		{RetryPolicy{Disabled: true, MaxAttempts: 5}, 1},
	}
	for _, tt := range tests {
		if got := tt.policy.Attempts(); got != tt.want {
			t.Errorf("%+v: attempts = %d, want %d", tt.policy, got, tt.want)
		}
	}
}

func TestStrategyFresh(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s := Strategy{Freshness: time.Minute}
	if !s.Fresh(base, base.Add(30*time.Second)) {
		t.Error("inside the window should be fresh")
	}
	if s.Fresh(base, base.Add(time.Minute)) {
		t.Error("exactly at the window edge should be stale")
	}
	if s.Fresh(base, base.Add(2*time.Minute)) {
		t.Error("past the window should be stale")
	}

	zero := Strategy{}
	if zero.Fresh(base, base) {
		t.Error("zero freshness means always stale")
	}

	ever := Strategy{Freshness: Forever}
	if !ever.Fresh(base, base.Add(1000*time.Hour)) {
		t.Error("Forever freshness never goes stale")
	}
}

func TestDefaultStrategiesResolve(t *testing.T) {
	s := DefaultStrategies()
	for _, c := range []Classification{
		ClassRealTime, ClassUserScoped, ClassReference, ClassPublicReadHeavy, ClassCustom,
	} {
		if _, err := s.Resolve(c); err != nil {
			t.Errorf("Resolve(%s): %v", c, err)
		}
	}

	rt, err := s.Resolve(ClassRealTime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rt.Freshness != 0 || rt.RefetchOnFocus != RefetchAlways {
		t.Fatalf("real-time strategy = %+v", rt)
	}

	ref, err := s.Resolve(ClassReference)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ref.Retention != Forever {
		t.Fatalf("reference retention = %v, want Forever", ref.Retention)
	}
}

func TestResolveUnknownClassification(t *testing.T) {
	_, err := DefaultStrategies().Resolve(Classification("made-up"))
	var uerr *UnknownStrategyError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want UnknownStrategyError", err)
	}
	if uerr.Classification != "made-up" {
		t.Fatalf("classification = %q", uerr.Classification)
	}
}

func TestStrategiesWithDoesNotMutate(t *testing.T) {
	base := DefaultStrategies()
	custom := Strategy{Freshness: time.Second, Retention: time.Minute}

	derived := base.With(Classification("search"), custom)
	if _, err := derived.Resolve(Classification("search")); err != nil {
		t.Fatalf("derived set should know the new classification: %v", err)
	}
	if _, err := base.Resolve(Classification("search")); err == nil {
		t.Fatal("With must not mutate the receiver")
	}

	// Overriding an existing classification leaves the base untouched too.
	faster := base.With(ClassReference, Strategy{Freshness: time.Second})
	got, err := faster.Resolve(ClassReference)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Freshness != time.Second {
		t.Fatalf("override not applied: %+v", got)
	}
	orig, err := base.Resolve(ClassReference)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if orig.Freshness != 12*time.Hour {
		t.Fatalf("base mutated: %+v", orig)
	}
}

func TestNewExecutionPolicyDefaults(t *testing.T) {
	p := NewExecutionPolicy(PolicyOverrides{})
	if p.Freshness != 5*time.Minute {
		t.Errorf("freshness = %v", p.Freshness)
	}
	if p.Retention != 24*time.Hour {
		t.Errorf("retention = %v", p.Retention)
	}
	if p.RefetchOnMount != RefetchNever || p.RefetchOnFocus != RefetchNever {
		t.Error("mount/focus refetch should default to never")
	}
	if p.RefetchOnReconnect != RefetchIfStale {
		t.Errorf("reconnect refetch = %v", p.RefetchOnReconnect)
	}
	if p.Retry.Attempts() != 4 {
		t.Errorf("retry attempts = %d", p.Retry.Attempts())
	}
}

func TestNewExecutionPolicyOverrides(t *testing.T) {
	fresh := time.Second
	mount := RefetchAlways
	retry := RetryPolicy{Disabled: true}
	p := NewExecutionPolicy(PolicyOverrides{
		Freshness:      &fresh,
		RefetchOnMount: &mount,
		Retry:          &retry,
	})
	if p.Freshness != time.Second {
		t.Errorf("freshness override ignored: %v", p.Freshness)
	}
	if p.RefetchOnMount != RefetchAlways {
		t.Errorf("mount override ignored: %v", p.RefetchOnMount)
	}
	if p.Retry.Attempts() != 1 {
		t.Errorf("retry override ignored: %+v", p.Retry)
	}
	// Untouched fields keep their defaults.
	if p.Retention != 24*time.Hour {
		t.Errorf("retention = %v", p.Retention)
	}
}

func TestExecutionPolicyStrategy(t *testing.T) {
	p := NewExecutionPolicy(PolicyOverrides{})
	s := p.Strategy()
	if s.Freshness != p.Freshness || s.Retention != p.Retention || s.Retry != p.Retry {
		t.Fatalf("converted strategy diverges: %+v vs %+v", s, p)
	}
}

func TestRefetchString(t *testing.T) {
	if RefetchNever.String() != "never" || RefetchIfStale.String() != "if-stale" || RefetchAlways.String() != "always" {
		t.Fatal("unexpected Refetch string form")
	}
}
