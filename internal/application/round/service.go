// Package round coordinates pooled wagering rounds: many participants stake
// into one time-boxed draw, settled in a single resumable pass.
package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stake-engine/stake-engine/internal/clock"
	domainaudit "github.com/stake-engine/stake-engine/internal/domain/audit"
	"github.com/stake-engine/stake-engine/internal/domain/ledger"
	"github.com/stake-engine/stake-engine/internal/domain/outcome"
	"github.com/stake-engine/stake-engine/internal/domain/round"
	"github.com/stake-engine/stake-engine/internal/domain/wager"
	"github.com/stake-engine/stake-engine/internal/infrastructure/memstore"
	"github.com/stake-engine/stake-engine/internal/riskbook"
)

// AuditLogger records fund movements.
type AuditLogger interface {
	Log(ctx context.Context, entry *domainaudit.Entry)
}

// Events receives settlement broadcasts for the presentation layer.
type Events interface {
	Broadcast(event string, payload any)
}

// Service is the round coordinator.
type Service struct {
	store   *memstore.RoundStore
	ledger  ledger.Ledger
	book    *riskbook.Book
	auditor AuditLogger
	events  Events
	clock   clock.Clock
	rng     outcome.RNG
	window  time.Duration
	logger  zerolog.Logger
}

// NewService creates a round coordinator. events may be nil.
func NewService(
	store *memstore.RoundStore,
	ledg ledger.Ledger,
	book *riskbook.Book,
	auditor AuditLogger,
	events Events,
	clk clock.Clock,
	rng outcome.RNG,
	window time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:   store,
		ledger:  ledg,
		book:    book,
		auditor: auditor,
		events:  events,
		clock:   clk,
		rng:     rng,
		window:  window,
		logger:  logger.With().Str("service", "round").Logger(),
	}
}

// Open creates a Collecting round for a pooled game family.
func (s *Service) Open(ctx context.Context, family string) (round.Snapshot, error) {
	risk, ok := s.book.Family(family)
	if !ok || risk.Kind != wager.KindPooled {
		return round.Snapshot{}, wager.ErrUnknownFamily
	}
	r := round.NewRound(risk, s.clock.Now(), s.window)
	s.store.Put(r)
	s.logger.Info().
		Str("roundId", r.ID.String()).
		Str("family", family).
		Time("closesAt", r.ClosesAt).
		Msg("round opened")
	return r.Snapshot(), nil
}

// PlaceBet debits the participant and appends a bet while the round is still
// Collecting. If the round closed between the debit and the append, the debit
// is credited straight back.
func (s *Service) PlaceBet(ctx context.Context, id uuid.UUID, participant string, amount int64, category string) (round.Snapshot, error) {
	r, ok := s.store.Get(id)
	if !ok {
		return round.Snapshot{}, round.ErrRoundNotFound
	}
	if r.Status() != round.StatusCollecting {
		return round.Snapshot{}, round.ErrNotAcceptingBets
	}
	if participant == "" || amount < r.Risk.MinStake {
		return round.Snapshot{}, wager.ErrInvalidStake
	}
	if _, ok := r.Risk.Category(category); !ok {
		return round.Snapshot{}, wager.ErrInvalidSelection
	}

	if err := s.ledger.Debit(ctx, participant, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return round.Snapshot{}, err
		}
		return round.Snapshot{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	bet, err := r.AddBet(participant, amount, category, s.clock.Now())
	if err != nil {
		// The flip won the race; undo the escrow.
		if cerr := s.ledger.Credit(ctx, participant, amount); cerr != nil {
			s.logger.Error().Err(cerr).
				Str("roundId", r.ID.String()).
				Str("participant", participant).
				Int64("amount", amount).
				Msg("failed to return escrow after late bet")
		}
		return round.Snapshot{}, err
	}

	s.auditor.Log(ctx, &domainaudit.Entry{
		EntityType: domainaudit.EntityTypeBet,
		EntityID:   bet.ID.String(),
		Account:    participant,
		Movement:   domainaudit.MovementEscrow,
		Amount:     amount,
		Family:     r.Family,
	})
	s.logger.Debug().
		Str("roundId", r.ID.String()).
		Str("betId", bet.ID.String()).
		Str("category", category).
		Int64("amount", amount).
		Msg("bet placed")
	return r.Snapshot(), nil
}

// Close flips the round to Drawing, performs the single draw, and settles
// every bet. Exactly one caller wins the flip; any racing second close gets
// ErrAlreadyDrawn. A round with no bets is discarded without a draw.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (round.Snapshot, error) {
	r, ok := s.store.Get(id)
	if !ok {
		return round.Snapshot{}, round.ErrRoundNotFound
	}
	if !r.TryBeginDraw() {
		return round.Snapshot{}, round.ErrAlreadyDrawn
	}

	bets := r.Bets()
	if len(bets) == 0 {
		if err := r.MarkSettled(s.clock.Now()); err != nil {
			return round.Snapshot{}, err
		}
		s.store.Delete(r.ID)
		s.logger.Info().Str("roundId", r.ID.String()).Msg("empty round discarded")
		return r.Snapshot(), nil
	}

	drawn, err := outcome.DrawCategory(r.Risk.Categories, s.rng)
	if err != nil {
		return round.Snapshot{}, err
	}
	if err := r.SetOutcome(drawn.Name, s.clock.Now()); err != nil {
		return round.Snapshot{}, err
	}
	s.logger.Info().
		Str("roundId", r.ID.String()).
		Str("outcome", drawn.Name).
		Int("bets", len(bets)).
		Msg("round drawn")

	return s.settle(ctx, r)
}

// Resume re-drives settlement of a round stuck in Drawing. Only bets not yet
// credited are touched, so a partial earlier pass never pays twice.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (round.Snapshot, error) {
	r, ok := s.store.Get(id)
	if !ok {
		return round.Snapshot{}, round.ErrRoundNotFound
	}
	if r.Status() != round.StatusDrawing {
		return round.Snapshot{}, round.ErrAlreadyDrawn
	}
	if r.Outcome() == "" {
		drawn, err := outcome.DrawCategory(r.Risk.Categories, s.rng)
		if err != nil {
			return round.Snapshot{}, err
		}
		if err := r.SetOutcome(drawn.Name, s.clock.Now()); err != nil {
			return round.Snapshot{}, err
		}
	}
	return s.settle(ctx, r)
}

func (s *Service) settle(ctx context.Context, r *round.Round) (round.Snapshot, error) {
	winner, _ := r.Risk.Category(r.Outcome())
	for _, bet := range r.Unsettled() {
		payout := int64(0)
		if bet.Category == winner.Name {
			payout = outcome.Payout(bet.Amount, winner.Multiplier)
		}
		if payout > 0 {
			if err := s.ledger.Credit(ctx, bet.Participant, payout); err != nil {
				// Leave the round in Drawing; the reaper resumes with the
				// remaining unsettled bets.
				return round.Snapshot{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
			}
			s.auditor.Log(ctx, &domainaudit.Entry{
				EntityType: domainaudit.EntityTypeBet,
				EntityID:   bet.ID.String(),
				Account:    bet.Participant,
				Movement:   domainaudit.MovementRoundPayout,
				Amount:     payout,
				Family:     r.Family,
			})
		}
		r.SettleBet(bet, payout)
	}
	if err := r.MarkSettled(s.clock.Now()); err != nil {
		return round.Snapshot{}, err
	}
	snap := r.Snapshot()
	if s.events != nil {
		s.events.Broadcast("round.settled", snap)
	}
	s.logger.Info().
		Str("roundId", r.ID.String()).
		Str("outcome", snap.Outcome).
		Msg("round settled")
	return snap, nil
}

// Get returns a read-only snapshot of one round.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (round.Snapshot, error) {
	r, ok := s.store.Get(id)
	if !ok {
		return round.Snapshot{}, round.ErrRoundNotFound
	}
	return r.Snapshot(), nil
}

// Sweep closes rounds whose betting window elapsed and resumes rounds stuck
// mid-settlement. Called by the reaper.
func (s *Service) Sweep(ctx context.Context, retention time.Duration) (closed, resumed, purged int) {
	now := s.clock.Now()
	for _, r := range s.store.All() {
		switch r.Status() {
		case round.StatusCollecting:
			if r.PastWindow(now) {
				if _, err := s.Close(ctx, r.ID); err != nil && !errors.Is(err, round.ErrAlreadyDrawn) {
					s.logger.Error().Err(err).Str("roundId", r.ID.String()).Msg("close failed")
					continue
				}
				closed++
			}
		case round.StatusDrawing:
			if _, err := s.Resume(ctx, r.ID); err != nil && !errors.Is(err, round.ErrAlreadyDrawn) {
				s.logger.Error().Err(err).Str("roundId", r.ID.String()).Msg("resume failed")
				continue
			}
			resumed++
		case round.StatusSettled:
			// Retention counts from settlement, not from when the round
			// opened, so a long Drawing stall never shortens it.
			if at := r.SettledAt(); at != nil && now.Sub(*at) > retention {
				s.store.Delete(r.ID)
				purged++
			}
		}
	}
	return closed, resumed, purged
}
