package memstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/stake-engine/stake-engine/internal/domain/round"
)

// RoundStore is the arena owning every live pooled round.
type RoundStore struct {
	mu     sync.RWMutex
	rounds map[uuid.UUID]*round.Round
}

// NewRoundStore creates an empty arena.
func NewRoundStore() *RoundStore {
	return &RoundStore{rounds: make(map[uuid.UUID]*round.Round)}
}

// Put inserts a round.
func (s *RoundStore) Put(r *round.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[r.ID] = r
}

// Get returns the round with the given id.
func (s *RoundStore) Get(id uuid.UUID) (*round.Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	return r, ok
}

// All returns every round in the arena. Used by the reaper sweep.
func (s *RoundStore) All() []*round.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*round.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r)
	}
	return out
}

// Delete removes a round.
func (s *RoundStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rounds, id)
}

// Len returns the number of rounds held.
func (s *RoundStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rounds)
}
