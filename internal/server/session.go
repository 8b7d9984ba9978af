package server

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/moodmix/internal/metrics"
	"github.com/desertthunder/moodmix/internal/shared"
	"golang.org/x/oauth2"
)

const (
	// SessionCookie is the cookie carrying the session id.
	SessionCookie = "moodmix_session"
	// SessionHeader lets API clients send the session id without cookies.
	SessionHeader = "X-Session-ID"
)

// Session is one login. The token is replaced whenever it is refreshed.
type Session struct {
	ID        string
	Token     *oauth2.Token
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the session holds a usable token.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != nil && (s.Token.AccessToken != "" || s.Token.RefreshToken != "")
}

// MemorySessionStore keeps sessions and pending OAuth states in memory.
//
// Sessions expire ttl after creation. Expired entries are dropped on access and by Sweep.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	states   map[string]pendingState
	ttl      time.Duration
	now      func() time.Time
}

type pendingState struct {
	sessionID string
	expiresAt time.Time
}

// stateTTL bounds how long a login may take between /login and /callback.
const stateTTL = 10 * time.Minute

// NewMemorySessionStore creates a store whose sessions live for ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		states:   make(map[string]pendingState),
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL returns the session lifetime.
func (s *MemorySessionStore) TTL() time.Duration {
	return s.ttl
}

// Create starts a new, unauthenticated session.
func (s *MemorySessionStore) Create() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session := &Session{
		ID:        shared.GenerateID(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[session.ID] = session
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return session
}

// Get returns a copy of the session with the given id.
func (s *MemorySessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	if s.now().After(session.ExpiresAt) {
		delete(s.sessions, id)
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		return nil, shared.ErrSessionExpired
	}

	copied := *session
	return &copied, nil
}

// SetToken stores a token on the session.
func (s *MemorySessionStore) SetToken(id string, token *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	session.Token = token
	return nil
}

// Delete removes a session.
func (s *MemorySessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

// BindState remembers which session started the login carrying state.
func (s *MemorySessionStore) BindState(state, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state] = pendingState{sessionID: sessionID, expiresAt: s.now().Add(stateTTL)}
}

// ConsumeState returns the session bound to state. A state can be consumed once.
func (s *MemorySessionStore) ConsumeState(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.states[state]
	if !ok {
		return "", false
	}
	delete(s.states, state)
	if s.now().After(pending.expiresAt) {
		return "", false
	}
	return pending.sessionID, true
}

// Len returns the number of live sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and states and returns how many sessions were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	for state, pending := range s.states {
		if now.After(pending.expiresAt) {
			delete(s.states, state)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *MemorySessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

type sessionKey struct{}

func withSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFrom returns the session attached to the request context, if any.
func SessionFrom(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}
