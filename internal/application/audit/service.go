// Package audit records every fund movement the engine makes.
package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stake-engine/stake-engine/internal/clock"
	"github.com/stake-engine/stake-engine/internal/domain/audit"
)

// Service signs and persists fund-movement records.
type Service struct {
	repo    audit.Repository
	clock   clock.Clock
	logger  zerolog.Logger
	signKey []byte
}

// NewService creates an audit service. An empty signKey disables signing.
func NewService(repo audit.Repository, clk clock.Clock, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		clock:   clk,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Log records a fund movement asynchronously. Settlement never waits on the
// audit store.
func (s *Service) Log(ctx context.Context, entry *audit.Entry) {
	go func() {
		if err := s.LogSync(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entityType", string(entry.EntityType)).
				Str("entityId", entry.EntityID).
				Str("movement", string(entry.Movement)).
				Int64("amount", entry.Amount).
				Msg("failed to record fund movement")
		}
	}()
}

// LogSync records a fund movement synchronously.
func (s *Service) LogSync(ctx context.Context, entry *audit.Entry) error {
	record, err := audit.NewRecord(entry, s.clock.Now())
	if err != nil {
		return fmt.Errorf("build audit record: %w", err)
	}
	if len(s.signKey) > 0 {
		sig, err := audit.SignRecord(record, s.signKey)
		if err != nil {
			return fmt.Errorf("sign audit record: %w", err)
		}
		record.Signature = sig
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("save audit record: %w", err)
	}
	s.logger.Debug().
		Str("auditId", record.AuditID.String()).
		Str("movement", string(record.Movement)).
		Str("account", record.Account).
		Int64("amount", record.Amount).
		Msg("fund movement recorded")
	return nil
}

// ListByAccount returns the movement history of one account.
func (s *Service) ListByAccount(ctx context.Context, account string, limit, offset int) ([]*audit.Record, error) {
	return s.repo.ListByAccount(ctx, account, limit, offset)
}
