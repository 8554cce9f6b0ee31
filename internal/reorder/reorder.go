// Package reorder implements the single-element move behind drag-and-drop
// reordering. It knows nothing about products or variants.
package reorder

// Move returns a copy of s with the element at from moved to index to.
//
// The element is removed first and then inserted at to in the shortened
// slice, so Move([a b c d], 0, 2) yields [b c a d]. When from == to or either
// index is out of range, s is returned unchanged. s itself is never modified.
func Move[T any](s []T, from, to int) []T {
	if from == to || !InRange(len(s), from) || !InRange(len(s), to) {
		return s
	}

	out := make([]T, 0, len(s))
	out = append(out, s[:from]...)
	out = append(out, s[from+1:]...)

	moved := s[from]
	out = append(out, moved) // grow by one, then shift the tail right
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = moved
	return out
}

// InRange reports whether i is a valid index for a sequence of length n.
func InRange(n, i int) bool {
	return i >= 0 && i < n
}

// IsPermutation reports whether next holds exactly the keys of current, each
// once. Used to validate caller-supplied orderings before they replace a list.
func IsPermutation[K comparable](current, next []K) bool {
	if len(current) != len(next) {
		return false
	}
	counts := make(map[K]int, len(current))
	for _, k := range current {
		counts[k]++
	}
	for _, k := range next {
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}
