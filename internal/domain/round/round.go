package round

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stake-engine/stake-engine/internal/domain/wager"
)

// Status represents round lifecycle state.
type Status string

const (
	StatusCollecting Status = "COLLECTING"
	StatusDrawing    Status = "DRAWING"
	StatusSettled    Status = "SETTLED"
)

var (
	ErrRoundNotFound    = errors.New("round not found")
	ErrNotAcceptingBets = errors.New("round is not accepting bets")
	ErrAlreadyDrawn     = errors.New("round already drawn")
)

const (
	stateCollecting int32 = iota
	stateDrawing
	stateSettled
)

// Bet is one participant's entry in a pooled round. Settled flips exactly
// once, when its credit (possibly zero) has been applied.
type Bet struct {
	ID          uuid.UUID `json:"betId"`
	Participant string    `json:"participant"`
	Amount      int64     `json:"amount"`
	Category    string    `json:"category"`
	Settled     bool      `json:"settled"`
	Payout      int64     `json:"payout"`
	PlacedAt    time.Time `json:"placedAt"`
}

// Round collects bets from many participants into one shared draw. The
// Collecting to Drawing flip is a single compare-and-swap; it is the only
// serialization point between bet placement and settlement.
type Round struct {
	ID       uuid.UUID
	Family   string
	Risk     wager.RiskConfig
	OpenedAt time.Time
	ClosesAt time.Time

	mu        sync.Mutex
	state     atomic.Int32
	bets      []*Bet
	outcome   string
	drawnAt   *time.Time
	settledAt *time.Time
}

// NewRound creates a Collecting round with the given betting window.
func NewRound(risk wager.RiskConfig, now time.Time, window time.Duration) *Round {
	return &Round{
		ID:       uuid.New(),
		Family:   risk.Family,
		Risk:     risk,
		OpenedAt: now,
		ClosesAt: now.Add(window),
	}
}

// Status returns the lifecycle state.
func (r *Round) Status() Status {
	switch r.state.Load() {
	case stateDrawing:
		return StatusDrawing
	case stateSettled:
		return StatusSettled
	default:
		return StatusCollecting
	}
}

// AddBet appends a bet while the round is still Collecting. The caller has
// already debited the amount; on error the caller must credit it back.
func (r *Round) AddBet(participant string, amount int64, category string, now time.Time) (*Bet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Load() != stateCollecting {
		return nil, ErrNotAcceptingBets
	}
	b := &Bet{
		ID:          uuid.New(),
		Participant: participant,
		Amount:      amount,
		Category:    category,
		PlacedAt:    now,
	}
	r.bets = append(r.bets, b)
	return b, nil
}

// TryBeginDraw flips Collecting to Drawing. Exactly one caller wins; any
// racing second attempt gets false.
func (r *Round) TryBeginDraw() bool {
	return r.state.CompareAndSwap(stateCollecting, stateDrawing)
}

// SetOutcome records the drawn category. Valid only once, while Drawing.
func (r *Round) SetOutcome(category string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Load() != stateDrawing {
		return ErrAlreadyDrawn
	}
	if r.outcome != "" {
		return ErrAlreadyDrawn
	}
	r.outcome = category
	t := now
	r.drawnAt = &t
	return nil
}

// Outcome returns the drawn category, empty until the draw happened.
func (r *Round) Outcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Bets returns the bet entries. The slice must not be mutated outside the
// owning coordinator.
func (r *Round) Bets() []*Bet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Bet(nil), r.bets...)
}

// Unsettled returns the bets not yet credited, making settlement resumable.
func (r *Round) Unsettled() []*Bet {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Bet
	for _, b := range r.bets {
		if !b.Settled {
			out = append(out, b)
		}
	}
	return out
}

// SettleBet marks one bet credited with the given payout.
func (r *Round) SettleBet(b *Bet, payout int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.Settled = true
	b.Payout = payout
}

// MarkSettled closes the round once every bet is settled.
func (r *Round) MarkSettled(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bets {
		if !b.Settled {
			return errors.New("round has unsettled bets")
		}
	}
	if !r.state.CompareAndSwap(stateDrawing, stateSettled) {
		return ErrAlreadyDrawn
	}
	t := now
	r.settledAt = &t
	return nil
}

// SettledAt returns when settlement completed, nil before then.
func (r *Round) SettledAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settledAt
}

// Age returns how long the round has existed.
func (r *Round) Age(now time.Time) time.Duration {
	return now.Sub(r.OpenedAt)
}

// PastWindow reports whether the betting window has elapsed.
func (r *Round) PastWindow(now time.Time) bool {
	return now.After(r.ClosesAt)
}

// Snapshot is the read-only round view for the presentation layer.
type Snapshot struct {
	ID        uuid.UUID  `json:"roundId"`
	Family    string     `json:"family"`
	Status    Status     `json:"status"`
	Outcome   string     `json:"outcome,omitempty"`
	Bets      []Bet      `json:"bets"`
	OpenedAt  time.Time  `json:"openedAt"`
	ClosesAt  time.Time  `json:"closesAt"`
	DrawnAt   *time.Time `json:"drawnAt,omitempty"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
}

// Snapshot captures the current round state.
func (r *Round) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		ID:        r.ID,
		Family:    r.Family,
		Status:    r.Status(),
		Outcome:   r.outcome,
		OpenedAt:  r.OpenedAt,
		ClosesAt:  r.ClosesAt,
		DrawnAt:   r.drawnAt,
		SettledAt: r.settledAt,
	}
	for _, b := range r.bets {
		snap.Bets = append(snap.Bets, *b)
	}
	return snap
}
