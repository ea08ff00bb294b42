// Package session owns the single-session wagering lifecycle: open, reveal,
// cashout, expire. Every fund movement is exactly one ledger call, made before
// the matching status transition is committed.
package session

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

// RevealOutcome classifies the result of one reveal.
type RevealOutcome string

const (
	RevealSafe RevealOutcome = "SAFE"
	RevealLost RevealOutcome = "LOST"
	RevealWon  RevealOutcome = "WON"
)

// RevealResult is returned from a reveal call.
type RevealResult struct {
	Outcome     RevealOutcome  `json:"outcome"`
	Probability float64        `json:"probability"`
	Session     wager.Snapshot `json:"session"`
}

// Service is the session state machine.
type Service struct {
	store   *memstore.SessionStore
	ledger  ledger.Ledger
	book    *riskbook.Book
	auditor AuditLogger
	events  Events
	clock   clock.Clock
	rng     outcome.RNG
	timeout time.Duration
	logger  zerolog.Logger
}

// NewService creates a session service. events may be nil.
func NewService(
	store *memstore.SessionStore,
	ledg ledger.Ledger,
	book *riskbook.Book,
	auditor AuditLogger,
	events Events,
	clk clock.Clock,
	rng outcome.RNG,
	timeout time.Duration,
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
		timeout: timeout,
		logger:  logger.With().Str("service", "session").Logger(),
	}
}

// Open escrows the stake and creates an Active session. Nothing is debited on
// failure.
func (s *Service) Open(ctx context.Context, owner string, stake int64, family string) (wager.Snapshot, error) {
	risk, ok := s.book.Family(family)
	if !ok || risk.Kind != wager.KindProgressive {
		return wager.Snapshot{}, wager.ErrUnknownFamily
	}
	if owner == "" || stake < risk.MinStake {
		return wager.Snapshot{}, wager.ErrInvalidStake
	}

	if err := s.ledger.Debit(ctx, owner, stake); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return wager.Snapshot{}, err
		}
		return wager.Snapshot{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}

	sess := wager.NewSession(owner, stake, risk, s.clock.Now())
	s.store.Put(sess)

	s.auditor.Log(ctx, &domainaudit.Entry{
		EntityType: domainaudit.EntityTypeSession,
		EntityID:   sess.ID.String(),
		Account:    owner,
		Movement:   domainaudit.MovementEscrow,
		Amount:     stake,
		Family:     family,
	})
	s.logger.Info().
		Str("sessionId", sess.ID.String()).
		Str("owner", owner).
		Str("family", family).
		Int64("stake", stake).
		Msg("session opened")

	return sess.Snapshot(), nil
}

// Reveal resolves one step. A losing draw settles as a loss (with any partial
// refund the risk table declares); a safe draw advances the multiplier; the
// final safe step settles as a win exactly as cashout would.
func (s *Service) Reveal(ctx context.Context, id uuid.UUID, owner string, selection int) (RevealResult, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return RevealResult{}, wager.ErrSessionNotFound
	}
	if sess.Owner != owner {
		return RevealResult{}, wager.ErrNotOwner
	}
	if !sess.TryBusy() {
		return RevealResult{}, wager.ErrConcurrentOperation
	}
	defer sess.ClearBusy()

	if sess.Status != wager.StatusActive {
		return RevealResult{}, wager.ErrAlreadySettled
	}
	if err := s.validateSelection(sess, selection); err != nil {
		return RevealResult{}, err
	}

	draw := outcome.DrawStep(sess.Risk.Hazard, sess.Step, s.rng)
	if draw.Lost {
		return s.settleLoss(ctx, sess, selection, draw)
	}
	return s.advance(ctx, sess, selection, draw)
}

func (s *Service) validateSelection(sess *wager.Session, selection int) error {
	if sess.Risk.Hazard.Mode != outcome.HazardCells {
		return nil
	}
	if selection < 0 || selection >= sess.Risk.Hazard.Cells {
		return wager.ErrInvalidSelection
	}
	for _, p := range sess.Picked {
		if p == selection {
			return wager.ErrInvalidSelection
		}
	}
	return nil
}

func (s *Service) settleLoss(ctx context.Context, sess *wager.Session, selection int, draw outcome.StepResult) (RevealResult, error) {
	refund := sess.Risk.Loss.Refund(sess.Stake)
	if refund > 0 {
		if err := s.ledger.Credit(ctx, sess.Owner, refund); err != nil {
			// Session stays Active; the caller retries the whole reveal.
			return RevealResult{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
		}
	}
	sess.RecordPick(selection)
	if err := sess.Settle(wager.StatusLostSettled, refund, s.clock.Now()); err != nil {
		return RevealResult{}, err
	}
	if refund > 0 {
		s.auditor.Log(ctx, &domainaudit.Entry{
			EntityType: domainaudit.EntityTypeSession,
			EntityID:   sess.ID.String(),
			Account:    sess.Owner,
			Movement:   domainaudit.MovementLossRefund,
			Amount:     refund,
			Family:     sess.Family,
		})
	}
	s.broadcast("session.lost", sess)
	s.logger.Info().
		Str("sessionId", sess.ID.String()).
		Int("step", sess.Step).
		Int64("refund", refund).
		Msg("session lost")
	return RevealResult{Outcome: RevealLost, Probability: draw.Probability, Session: sess.Snapshot()}, nil
}

func (s *Service) advance(ctx context.Context, sess *wager.Session, selection int, draw outcome.StepResult) (RevealResult, error) {
	next := sess.Step + 1
	mult, err := sess.Risk.Curve.At(next)
	if err != nil {
		return RevealResult{}, err
	}

	if next >= sess.Risk.MaxSteps {
		// Final step: the win credit happens before any state mutation, so a
		// ledger failure leaves the session where a retried reveal expects it.
		final := sess.Multiplier
		if mult.GreaterThan(final) {
			final = mult
		}
		payout := outcome.Payout(sess.Stake, final)
		if err := s.ledger.Credit(ctx, sess.Owner, payout); err != nil {
			return RevealResult{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
		}
		sess.RecordPick(selection)
		sess.Advance(mult)
		snap, err := s.finishWin(ctx, sess, payout)
		if err != nil {
			return RevealResult{}, err
		}
		return RevealResult{Outcome: RevealWon, Probability: draw.Probability, Session: snap}, nil
	}

	sess.RecordPick(selection)
	sess.Advance(mult)
	s.logger.Debug().
		Str("sessionId", sess.ID.String()).
		Int("step", sess.Step).
		Str("multiplier", sess.Multiplier.String()).
		Msg("step revealed")
	return RevealResult{Outcome: RevealSafe, Probability: draw.Probability, Session: sess.Snapshot()}, nil
}

// settleWin credits stake x multiplier and moves the session to WonSettled.
// The session must be Active and busy-held by the caller.
func (s *Service) settleWin(ctx context.Context, sess *wager.Session) (wager.Snapshot, error) {
	payout := outcome.Payout(sess.Stake, sess.Multiplier)
	if err := s.ledger.Credit(ctx, sess.Owner, payout); err != nil {
		return wager.Snapshot{}, fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	return s.finishWin(ctx, sess, payout)
}

// finishWin commits the WonSettled transition after the credit succeeded.
func (s *Service) finishWin(ctx context.Context, sess *wager.Session, payout int64) (wager.Snapshot, error) {
	if err := sess.Settle(wager.StatusWonSettled, payout, s.clock.Now()); err != nil {
		return wager.Snapshot{}, err
	}
	s.auditor.Log(ctx, &domainaudit.Entry{
		EntityType: domainaudit.EntityTypeSession,
		EntityID:   sess.ID.String(),
		Account:    sess.Owner,
		Movement:   domainaudit.MovementWinCredit,
		Amount:     payout,
		Family:     sess.Family,
	})
	s.broadcast("session.won", sess)
	s.logger.Info().
		Str("sessionId", sess.ID.String()).
		Int64("payout", payout).
		Str("multiplier", sess.Multiplier.String()).
		Msg("session won")
	return sess.Snapshot(), nil
}

// Cashout settles an Active session at the current multiplier. A repeated
// call returns ErrAlreadySettled and credits nothing.
func (s *Service) Cashout(ctx context.Context, id uuid.UUID, owner string) (wager.Snapshot, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return wager.Snapshot{}, wager.ErrSessionNotFound
	}
	if sess.Owner != owner {
		return wager.Snapshot{}, wager.ErrNotOwner
	}
	if !sess.TryBusy() {
		return wager.Snapshot{}, wager.ErrConcurrentOperation
	}
	defer sess.ClearBusy()

	if sess.Status != wager.StatusActive {
		return wager.Snapshot{}, wager.ErrAlreadySettled
	}
	if sess.Risk.RequireReveal && sess.Step == 0 {
		return wager.Snapshot{}, wager.ErrInvalidSelection
	}
	return s.settleWin(ctx, sess)
}

// Expire refunds the stake of an Active session past the timeout and marks it
// Expired. A no-op on terminal or young sessions; a busy session is skipped
// and retried on the next sweep.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	sess, ok := s.store.Get(id)
	if !ok {
		return wager.ErrSessionNotFound
	}
	if sess.Snapshot().Status.Terminal() {
		return nil
	}
	if sess.Age(s.clock.Now()) < s.timeout {
		return nil
	}
	if !sess.TryBusy() {
		return wager.ErrConcurrentOperation
	}
	defer sess.ClearBusy()

	if sess.Status != wager.StatusActive {
		return nil
	}
	if err := s.ledger.Credit(ctx, sess.Owner, sess.Stake); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	if err := sess.Settle(wager.StatusExpired, sess.Stake, s.clock.Now()); err != nil {
		return err
	}
	s.auditor.Log(ctx, &domainaudit.Entry{
		EntityType: domainaudit.EntityTypeSession,
		EntityID:   sess.ID.String(),
		Account:    sess.Owner,
		Movement:   domainaudit.MovementExpiryRefund,
		Amount:     sess.Stake,
		Family:     sess.Family,
	})
	s.broadcast("session.expired", sess)
	s.logger.Warn().
		Str("sessionId", sess.ID.String()).
		Str("owner", sess.Owner).
		Int64("refund", sess.Stake).
		Msg("stale session refunded")
	return nil
}

// Get returns a read-only snapshot of one session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (wager.Snapshot, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return wager.Snapshot{}, wager.ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// ListByOwner returns snapshots of every session belonging to an owner.
func (s *Service) ListByOwner(ctx context.Context, owner string) []wager.Snapshot {
	sessions := s.store.ByOwner(owner)
	out := make([]wager.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Sweep expires every stale Active session and purges terminal sessions past
// the retention window. Called by the reaper.
func (s *Service) Sweep(ctx context.Context, retention time.Duration) (expired, purged int) {
	now := s.clock.Now()
	for _, sess := range s.store.All() {
		snap := sess.Snapshot()
		if snap.Status.Terminal() {
			if snap.SettledAt != nil && now.Sub(*snap.SettledAt) > retention {
				s.store.Delete(sess.ID)
				purged++
			}
			continue
		}
		if sess.Age(now) < s.timeout {
			continue
		}
		switch err := s.Expire(ctx, sess.ID); err {
		case nil:
			expired++
		case wager.ErrConcurrentOperation:
			// In-flight operation owns the session; next sweep retries.
		default:
			s.logger.Error().Err(err).Str("sessionId", sess.ID.String()).Msg("expire failed")
		}
	}
	return expired, purged
}

func (s *Service) broadcast(event string, sess *wager.Session) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(event, sess.Snapshot())
}
