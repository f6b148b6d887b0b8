package domain

// Opt stands in for the source's UNSET sentinel: it distinguishes "field
// not provided" (Opt{} zero value) from "field provided, possibly nil".
// Update inputs use Opt[T] for every optional column so the data access
// layer only writes (and only audits) fields the caller actually set.
type Opt[T any] struct {
	Value T
	set   bool
}

// Set wraps a value as an explicitly-provided field.
func Set[T any](v T) Opt[T] {
	return Opt[T]{Value: v, set: true}
}

// Unset returns the zero Opt — "not provided".
func Unset[T any]() Opt[T] {
	return Opt[T]{}
}

// IsSet reports whether the caller provided this field.
func (o Opt[T]) IsSet() bool {
	return o.set
}
