package agent

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/gosentinel/internal/providers"
)

// Session is one user's requirement-elicitation dialogue. ID doubles as
// the correlation id sent to the automation webhook.
type Session struct {
	ID      string
	Turns   []providers.ChatMessage
	Created time.Time
}

// SessionKey scopes a session to one conversation partner under one bot
// account, so two bot instances sharing a process cannot cross wires.
func SessionKey(selfID int64, scope string) string {
	return fmt.Sprintf("%d:%s", selfID, scope)
}

// Store owns the live sessions. Methods hold the lock only for in-memory
// work, never across I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Has reports whether key has a live session.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

// Create opens a session for key and reports whether one was created;
// an existing session is left untouched.
func (s *Store) Create(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; ok {
		return false
	}
	u := uuid.New()
	s.sessions[key] = &Session{
		ID:      hex.EncodeToString(u[:]),
		Created: time.Now(),
	}
	return true
}

// Append adds a turn to key's session; missing sessions are ignored.
func (s *Store) Append(key string, turn providers.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	sess.Turns = append(sess.Turns, turn)
}

// History returns a copy of key's turn list, nil when no session exists.
func (s *Store) History(key string) []providers.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}
	out := make([]providers.ChatMessage, len(sess.Turns))
	copy(out, sess.Turns)
	return out
}

// SessionID returns key's correlation id.
func (s *Store) SessionID(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return "", false
	}
	return sess.ID, true
}

// Pop removes and returns key's session.
func (s *Store) Pop(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	delete(s.sessions, key)
	return sess, true
}
