// Package listener provides typed callback sets for component events.
package listener

import "sync"

// Set is an ordered set of callbacks for one event kind. Callbacks are
// invoked synchronously, in registration order, without the set's lock held.
// The zero value is ready to use.
type Set[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []entry[T]
}

type entry[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns a function that unregisters it.
func (s *Set[T]) Add(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, entry[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.entries {
			if e.id == id {
				s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every registered callback with v.
func (s *Set[T]) Emit(v T) {
	s.mu.Lock()
	snapshot := make([]entry[T], len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len returns the number of registered callbacks.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
