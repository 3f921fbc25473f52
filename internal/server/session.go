package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlovans/formtree/pkg/form"
)

// Session is one user's live form.
type Session struct {
	ID        string
	Form      *form.Form
	CreatedAt time.Time

	mu           sync.Mutex
	lastActiveAt time.Time
}

func newSession(f *form.Form) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		Form:         f,
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, maxAge, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.CreatedAt) > maxAge || now.Sub(s.lastActiveAt) > idle
}

// Sessions handles session creation, lookup, and cleanup.
type Sessions struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewSessions creates a session manager with the given timeouts.
func NewSessions(maxAge, idleTimeout time.Duration) *Sessions {
	return &Sessions{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// Create registers a session for f.
func (m *Sessions) Create(f *form.Form) *Session {
	s := newSession(f)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Sessions) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.expired(time.Now(), m.maxAge, m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	s.Touch()
	return s
}

// Remove deletes a session.
func (m *Sessions) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions and returns how many.
func (m *Sessions) Cleanup() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.expired(now, m.maxAge, m.idleTimeout) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
