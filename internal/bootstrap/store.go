package bootstrap

import "sync/atomic"

// Store hands the current registry to concurrent readers and lets a
// reloader swap in a replacement atomically. Queries already holding the
// previous registry are undisturbed by a swap.
type Store struct {
	current atomic.Pointer[Registry]
}

// NewStore starts with an empty registry that matches nothing.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Registry{})
	return s
}

// Current returns the registry as of now.
func (s *Store) Current() *Registry {
	return s.current.Load()
}

// Swap publishes a replacement registry. Nil is ignored so a failed reload
// can never blank the tables.
func (s *Store) Swap(r *Registry) {
	if r != nil {
		s.current.Store(r)
	}
}
