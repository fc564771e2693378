package querysync

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// deref returns def when p is nil - otherwise *p. Used for override fields
// whose zero value is meaningful (a zero freshness window means always
// stale, so absence must be a nil pointer, not a zero).
func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
