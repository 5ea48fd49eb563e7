package message

import "encoding/json"

// Opt is an explicitly optional field. An absent Opt is omitted from the encoding (with the
// omitzero tag option) and a missing or null JSON field decodes as absent, so the zero
// value of T stays a legitimate value.
type Opt[T any] struct {
	v   T
	set bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, set: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.v, o.set
}

// Present reports whether a value is set.
func (o Opt[T]) Present() bool {
	return o.set
}

// Or returns the value when present, otherwise def.
func (o Opt[T]) Or(def T) T {
	if o.set {
		return o.v
	}
	return def
}

// IsZero lets encoding/json omit absent values under omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.set
}

// MarshalJSON encodes the value, or null when absent.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

// UnmarshalJSON decodes a present value; null leaves the Opt absent.
func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Opt[T]{v: v, set: true}
	return nil
}
