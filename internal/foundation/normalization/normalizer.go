// Package normalization maps loosely formatted user input onto typed string enums.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer resolves case and whitespace insensitive input to values of T.
// Several spellings may map to the same value.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
	keys     []string
}

// NewNormalizer returns a normalizer over values. Unknown input resolves to fallback.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	n := &Normalizer[T]{
		values:   make(map[string]T, len(values)),
		fallback: fallback,
		keys:     make([]string, 0, len(values)),
	}
	for k, v := range values {
		key := clean(k)
		if _, dup := n.values[key]; !dup {
			n.keys = append(n.keys, key)
		}
		n.values[key] = v
	}
	sort.Strings(n.keys)
	return n
}

// Normalize returns the value for raw, or the fallback.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[clean(raw)]; ok {
		return v
	}
	return n.fallback
}

// NormalizeWithError is Normalize but reports unknown input.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	if v, ok := n.values[clean(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(n.keys, ", "))
}

// Accepts reports whether value is one of the known targets.
func (n *Normalizer[T]) Accepts(value T) bool {
	for _, v := range n.values {
		if v == value {
			return true
		}
	}
	return false
}

// ValidKeys returns the accepted spellings in sorted order.
func (n *Normalizer[T]) ValidKeys() []string {
	return append([]string(nil), n.keys...)
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
