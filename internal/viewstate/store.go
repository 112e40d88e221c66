package viewstate

import "sync"

// Store owns one view's state. Dispatch applies the reducer under the lock
// and then notifies subscribers outside it, so a subscriber may dispatch.
type Store[S any] struct {
	mu     sync.Mutex
	state  S
	reduce func(S, Action) S
	subs   map[int]func(prev, next S)
	nextID int
}

func NewStore[S any](initial S, reduce func(S, Action) S) *Store[S] {
	return &Store[S]{
		state:  initial,
		reduce: reduce,
		subs:   make(map[int]func(prev, next S)),
	}
}

func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies actions in order and returns the resulting state.
func (s *Store[S]) Dispatch(actions ...Action) S {
	s.mu.Lock()
	prev := s.state
	for _, a := range actions {
		s.state = s.reduce(s.state, a)
	}
	next := s.state
	subs := make([]func(prev, next S), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(prev, next)
	}
	return next
}

// Subscribe registers fn for every dispatch. The returned func removes it.
func (s *Store[S]) Subscribe(fn func(prev, next S)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
