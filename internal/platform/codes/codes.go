// Package codes holds the closed sets of short internal codes that are stored
// as text and exposed as Go string types.
package codes

import (
	"fmt"
	"strings"
)

// Enum is the set of valid values for one internal code type.
type Enum[T ~string] struct {
	name   string
	values []T
	index  map[T]struct{}
}

func New[T ~string](name string, values ...T) Enum[T] {
	idx := make(map[T]struct{}, len(values))
	for _, v := range values {
		idx[v] = struct{}{}
	}
	return Enum[T]{name: name, values: values, index: idx}
}

func (e Enum[T]) Name() string { return e.name }

func (e Enum[T]) Valid(v T) bool {
	_, ok := e.index[v]
	return ok
}

// Parse accepts any letter case and surrounding space.
func (e Enum[T]) Parse(s string) (T, error) {
	v := T(strings.ToUpper(strings.TrimSpace(s)))
	if !e.Valid(v) {
		return "", fmt.Errorf("unknown %s code %q", e.name, s)
	}
	return v, nil
}

// Values returns the codes in declaration order.
func (e Enum[T]) Values() []T {
	out := make([]T, len(e.values))
	copy(out, e.values)
	return out
}

func (e Enum[T]) String() string {
	parts := make([]string, len(e.values))
	for i, v := range e.values {
		parts[i] = string(v)
	}
	return strings.Join(parts, " ")
}

// Scan implements the body of sql.Scanner for a code type. Stored values
// outside the set are an error, never a silent default.
func (e Enum[T]) Scan(dst *T, src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return fmt.Errorf("null %s code", e.name)
	default:
		return fmt.Errorf("cannot scan %T into %s code", src, e.name)
	}
	v := T(s)
	if !e.Valid(v) {
		return fmt.Errorf("unknown %s code %q in database", e.name, s)
	}
	*dst = v
	return nil
}

// ParseAll parses a stored list, failing on the first unknown value.
func (e Enum[T]) ParseAll(raw []string) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		v := T(s)
		if !e.Valid(v) {
			return nil, fmt.Errorf("unknown %s code %q in database", e.name, s)
		}
		out = append(out, v)
	}
	return out, nil
}

// Strings converts codes to the []string bound as a text[] parameter.
func Strings[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
