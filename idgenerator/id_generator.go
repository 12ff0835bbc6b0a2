// Package idgenerator hands out sequential identifiers such as registry
// session IDs and controller link handles.
package idgenerator

import "sync/atomic"

// Unsigned is the set of identifier types a Generator can produce.
type Unsigned interface {
	~uint16 | ~uint32 | ~uint64
}

// Generator returns increasing identifiers, wrapping around at the maximum
// of T. Reserved values, such as a sentinel meaning "no handle", are never
// returned. It is safe for concurrent use.
type Generator[T Unsigned] struct {
	counter  atomic.Uint64
	limit    uint64
	reserved map[T]struct{}
}

// New creates a Generator whose first Next returns the first non-reserved
// value after start.
//
// Parameters:
//   - start: The value before the first identifier
//   - reserved: Values Next must skip
//
// Returns:
//   - A new *Generator
func New[T Unsigned](start T, reserved ...T) *Generator[T] {
	g := &Generator[T]{
		reserved: make(map[T]struct{}, len(reserved)),
	}
	for _, r := range reserved {
		g.reserved[r] = struct{}{}
	}
	g.counter.Store(uint64(start))

	return g
}

// NewBounded is like New but wraps back to zero after limit, e.g. to stay
// inside the 12-bit range of HCI connection handles.
func NewBounded[T Unsigned](start, limit T, reserved ...T) *Generator[T] {
	g := New(start, reserved...)
	g.limit = uint64(limit)

	return g
}

// Next returns the next identifier. It loops forever if every value of T is
// reserved.
func (g *Generator[T]) Next() T {
	for {
		n := g.counter.Add(1)
		if g.limit > 0 {
			n %= g.limit + 1
		}

		v := T(n)
		if _, skip := g.reserved[v]; !skip {
			return v
		}
	}
}
