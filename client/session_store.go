// Package client provides a Go client for the authentication API together
// with a small client-side session cache.
package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState enumerates the client-side view of the session.
type SessionState string

const (
	// StateUnknown means no refresh has been attempted yet.
	StateUnknown SessionState = "unknown"
	// StateLoading means a refresh is in flight and consumers should wait.
	// Treating loading as unauthenticated causes spurious sign-in redirects.
	StateLoading SessionState = "loading"
	// StateAuthenticated means the server confirmed a live session.
	StateAuthenticated SessionState = "authenticated"
	// StateUnauthenticated means there is no usable session.
	StateUnauthenticated SessionState = "unauthenticated"
)

// User is the client-side projection of an account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo describes one server-side session.
type SessionInfo struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	IsCurrent  bool       `json:"is_current"`
}

// Snapshot is an immutable view of the session store at one point in time.
type Snapshot struct {
	State   SessionState
	User    *User
	Session *SessionInfo
}

// SessionStore caches the authentication state client-side and notifies
// subscribers on every transition. It is a plain value to construct and
// inject, not a package-level singleton.
type SessionStore struct {
	mu          sync.RWMutex
	snapshot    Snapshot
	nextID      int
	subscribers map[int]func(Snapshot)
}

// NewSessionStore creates a store in the unknown state.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		snapshot:    Snapshot{State: StateUnknown},
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current view.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot
}

// State is a convenience accessor for the current state.
func (s *SessionStore) State() SessionState {
	return s.Snapshot().State
}

// Subscribe registers a callback invoked on every state transition and
// returns the matching unsubscribe function. The callback also fires once
// immediately with the current snapshot.
func (s *SessionStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	current := s.snapshot
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// set replaces the snapshot and notifies subscribers. Callbacks run outside
// the lock so a subscriber may call back into the store.
func (s *SessionStore) set(snapshot Snapshot) {
	s.mu.Lock()
	s.snapshot = snapshot
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *SessionStore) setLoading() {
	s.set(Snapshot{State: StateLoading})
}

func (s *SessionStore) setAuthenticated(user *User, session *SessionInfo) {
	s.set(Snapshot{State: StateAuthenticated, User: user, Session: session})
}

func (s *SessionStore) setUnauthenticated() {
	s.set(Snapshot{State: StateUnauthenticated})
}
