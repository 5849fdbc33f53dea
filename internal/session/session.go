// Package session keeps the per-user conversation state. Sessions are not
// durable; a restart drops them and every user starts over at Idle.
package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

type State string

const (
	Idle                       State = "idle"
	AwaitingService            State = "awaiting_service"
	AwaitingDate               State = "awaiting_date"
	AwaitingTime               State = "awaiting_time"
	AwaitingConfirmation       State = "awaiting_confirmation"
	AwaitingServiceName        State = "awaiting_service_name"
	AwaitingServiceDescription State = "awaiting_service_description"
	AwaitingServicePrice       State = "awaiting_service_price"
	AwaitingAdminUserID        State = "awaiting_admin_user_id"
	AwaitingAdminRole          State = "awaiting_admin_role"
)

type Session struct {
	UserID    int64
	State     State
	Form      map[string]string
	UpdatedAt time.Time
}

// New returns an Idle session for userID.
func New(userID int64) *Session {
	return &Session{UserID: userID, State: Idle, Form: map[string]string{}}
}

// Clone returns a deep copy. Handlers work on a clone so a failed step
// leaves the stored session as it was.
func (s *Session) Clone() *Session {
	c := *s
	c.Form = maps.Clone(s.Form)
	if c.Form == nil {
		c.Form = map[string]string{}
	}
	return &c
}

// Reset returns the session to Idle and clears the form.
func (s *Session) Reset() {
	s.State = Idle
	s.Form = map[string]string{}
}

// Begin enters state with an empty form.
func (s *Session) Begin(state State) {
	s.State = state
	s.Form = map[string]string{}
}

func (s *Session) Active() bool {
	return s.State != Idle
}

// Store holds one session per user.
type Store interface {
	// Get returns a copy of the user's session, or a fresh Idle one.
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// Memory is a mutex-guarded in-process Store.
type Memory struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s.Clone(), nil
	}
	return New(userID), nil
}

// Save stores a copy of s. Idle sessions are dropped, so the map only
// holds users with a flow in progress.
func (m *Memory) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.Active() {
		delete(m.sessions, s.UserID)
		return nil
	}
	c := s.Clone()
	c.UpdatedAt = m.now()
	m.sessions[s.UserID] = c
	return nil
}

func (m *Memory) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// Len reports the number of users with a flow in progress.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Expire drops sessions untouched for longer than ttl and returns how many
// were removed.
func (m *Memory) Expire(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	n := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
