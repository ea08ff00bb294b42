package wager

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stake-engine/stake-engine/internal/domain/outcome"
)

// Status represents session lifecycle state.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusResolving   Status = "RESOLVING"
	StatusWonSettled  Status = "WON_SETTLED"
	StatusLostSettled Status = "LOST_SETTLED"
	StatusRefunded    Status = "REFUNDED"
	StatusExpired     Status = "EXPIRED"
)

var (
	ErrInvalidTransition = errors.New("invalid session status transition")

	ErrInvalidStake        = errors.New("invalid stake")
	ErrUnknownFamily       = errors.New("unknown game family")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotOwner            = errors.New("caller does not own this session")
	ErrAlreadySettled      = errors.New("session already settled")
	ErrConcurrentOperation = errors.New("operation already in flight")
	ErrInvalidSelection    = errors.New("invalid selection")
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	switch s {
	case StatusWonSettled, StatusLostSettled, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// Session is one player's progressive wager. The stake has already been
// debited from the ledger when the session exists; exactly one credit happens
// when it goes terminal.
//
// The busy flag serializes state-changing operations; mu additionally covers
// the mutable fields so snapshot reads from other goroutines see consistent
// values while a busy-held operation is mid-flight.
type Session struct {
	ID         uuid.UUID       `json:"sessionId"`
	Owner      string          `json:"owner"`
	Family     string          `json:"family"`
	Stake      int64           `json:"stake"`
	Risk       RiskConfig      `json:"-"`
	Step       int             `json:"step"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Status     Status          `json:"status"`
	Picked     []int           `json:"picked,omitempty"`
	Payout     int64           `json:"payout"`
	CreatedAt  time.Time       `json:"createdAt"`
	SettledAt  *time.Time      `json:"settledAt,omitempty"`

	mu   sync.Mutex
	busy atomic.Bool
}

// NewSession creates an Active session at step 0 with multiplier 1.0.
func NewSession(owner string, stake int64, risk RiskConfig, now time.Time) *Session {
	return &Session{
		ID:         uuid.New(),
		Owner:      owner,
		Family:     risk.Family,
		Stake:      stake,
		Risk:       risk,
		Step:       0,
		Multiplier: decimal.NewFromInt(1),
		Status:     StatusActive,
		CreatedAt:  now,
	}
}

// TryBusy claims the single-writer guard. A false return means another
// operation on this session is already in flight.
func (s *Session) TryBusy() bool {
	return s.busy.CompareAndSwap(false, true)
}

// ClearBusy releases the single-writer guard.
func (s *Session) ClearBusy() {
	s.busy.Store(false)
}

// Busy reports whether an operation is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// CanTransitionTo validates a status transition.
func (s *Session) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusActive:      {StatusWonSettled, StatusLostSettled, StatusRefunded, StatusExpired},
		StatusWonSettled:  {},
		StatusLostSettled: {},
		StatusRefunded:    {},
		StatusExpired:     {},
	}
	for _, t := range transitions[s.Status] {
		if t == target {
			return true
		}
	}
	return false
}

// Advance records one safe reveal: the step index increments and the
// multiplier moves along the curve, never downward.
func (s *Session) Advance(multiplier decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Step++
	if multiplier.GreaterThan(s.Multiplier) {
		s.Multiplier = multiplier
	}
}

// RecordPick appends a cells-mode selection; a no-op for other hazard modes.
func (s *Session) RecordPick(selection int) {
	if s.Risk.Hazard.Mode != outcome.HazardCells {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Picked = append(s.Picked, selection)
}

// Settle moves the session to a terminal status and records the credited
// payout. The ledger credit must already have succeeded.
func (s *Session) Settle(target Status, payout int64, now time.Time) error {
	if !target.Terminal() {
		return ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.Status = target
	s.Payout = payout
	t := now
	s.SettledAt = &t
	return nil
}

// Age returns how long the session has existed.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Snapshot is the read-only view consumed by the presentation layer.
type Snapshot struct {
	ID           uuid.UUID       `json:"sessionId"`
	Owner        string          `json:"owner"`
	Family       string          `json:"family"`
	Stake        int64           `json:"stake"`
	Step         int             `json:"step"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Status       Status          `json:"status"`
	Picked       []int           `json:"picked,omitempty"`
	PotentialWin int64           `json:"potentialWin"`
	Payout       int64           `json:"payout"`
	CreatedAt    time.Time       `json:"createdAt"`
	SettledAt    *time.Time      `json:"settledAt,omitempty"`
}

// Snapshot captures the current session state. An Active session with an
// operation in flight reports StatusResolving.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.Status
	if status == StatusActive && s.Busy() {
		status = StatusResolving
	}
	snap := Snapshot{
		ID:         s.ID,
		Owner:      s.Owner,
		Family:     s.Family,
		Stake:      s.Stake,
		Step:       s.Step,
		Multiplier: s.Multiplier,
		Status:     status,
		Payout:     s.Payout,
		CreatedAt:  s.CreatedAt,
		SettledAt:  s.SettledAt,
	}
	if len(s.Picked) > 0 {
		snap.Picked = append([]int(nil), s.Picked...)
	}
	snap.PotentialWin = decimal.NewFromInt(s.Stake).Mul(s.Multiplier).Floor().IntPart()
	return snap
}
