// Package optional distinguishes a field that was left out of a partial update from one
// that was explicitly set, including explicitly set to null.
package optional

import "encoding/json"

type Value[T any] struct {
	Set   bool
	Value T
}

func Of[T any](v T) Value[T] {
	return Value[T]{Set: true, Value: v}
}

// UnmarshalJSON is only invoked when the key is present, so reaching it marks the field set.
func (o *Value[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

func (o Value[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
