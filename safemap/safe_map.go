// Package safemap provides a typed wrapper around sync.Map for the
// concurrently accessed indexes of the registry and the simulated controller.
package safemap

import "sync"

// Map is a concurrency-safe map from K to V. The zero value is ready to use.
type Map[K comparable, V any] struct {
	m sync.Map
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

// Load returns the value stored under k.
func (m *Map[K, V]) Load(k K) (v V, ok bool) {
	raw, ok := m.m.Load(k)
	if !ok {
		return v, false
	}

	return raw.(V), true
}

// Store sets the value for k.
func (m *Map[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// LoadOrStore returns the existing value for k if present. Otherwise it
// stores v and returns it. loaded reports which happened.
func (m *Map[K, V]) LoadOrStore(k K, v V) (actual V, loaded bool) {
	raw, loaded := m.m.LoadOrStore(k, v)
	return raw.(V), loaded
}

// LoadAndDelete removes k and returns the value it held, if any.
func (m *Map[K, V]) LoadAndDelete(k K) (v V, ok bool) {
	raw, ok := m.m.LoadAndDelete(k)
	if !ok {
		return v, false
	}

	return raw.(V), true
}

// Delete removes k.
func (m *Map[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.m.Load(k)
	return ok
}

// Range calls f for every entry until f returns false. Entries changed
// concurrently may or may not be visited.
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Values returns a snapshot of the stored values in unspecified order.
func (m *Map[K, V]) Values() []V {
	var out []V
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})

	return out
}

// Len counts the entries. It walks the whole map.
func (m *Map[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}
