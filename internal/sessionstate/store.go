package sessionstate

import (
	"sync"
	"time"
)

// Store maps session ids to their state, creating states on first access.
type Store struct {
	mu     sync.Mutex
	states map[string]*State
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]*State), now: time.Now}
}

// Get returns the state of sessionID, creating it with defaults if needed.
func (s *Store) Get(sessionID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[sessionID]
	if !ok {
		st = newState(sessionID, s.now)
		s.states[sessionID] = st
	}
	return st
}

// Lookup returns the state of sessionID without creating it.
func (s *Store) Lookup(sessionID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	return st, ok
}

// Delete forgets a session.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
