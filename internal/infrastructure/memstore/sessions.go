// Package memstore holds the engine's in-memory state: the session arena, the
// round arena, and a memory-backed ledger for development and tests.
package memstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/stake-engine/stake-engine/internal/domain/wager"
)

// SessionStore is the arena owning every live wager session, with a secondary
// index by owner. Sessions are never handed to more than one logical
// operation at a time; that is enforced by the session busy guard, not here.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*wager.Session
	byOwner  map[string][]uuid.UUID
}

// NewSessionStore creates an empty arena.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*wager.Session),
		byOwner:  make(map[string][]uuid.UUID),
	}
}

// Put inserts a session into the arena and the owner index.
func (s *SessionStore) Put(session *wager.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.byOwner[session.Owner] = append(s.byOwner[session.Owner], session.ID)
}

// Get returns the session with the given id.
func (s *SessionStore) Get(id uuid.UUID) (*wager.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// ByOwner returns all sessions belonging to an owner.
func (s *SessionStore) ByOwner(owner string) []*wager.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	out := make([]*wager.Session, 0, len(ids))
	for _, id := range ids {
		if session, ok := s.sessions[id]; ok {
			out = append(out, session)
		}
	}
	return out
}

// All returns every session in the arena. Used by the reaper sweep.
func (s *SessionStore) All() []*wager.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wager.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Delete removes a session from the arena and the owner index.
func (s *SessionStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	ids := s.byOwner[session.Owner]
	for i, sid := range ids {
		if sid == id {
			s.byOwner[session.Owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byOwner[session.Owner]) == 0 {
		delete(s.byOwner, session.Owner)
	}
}

// Len returns the number of sessions held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
