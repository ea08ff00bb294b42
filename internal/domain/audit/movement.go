package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies what kind of record a fund movement belongs to.
type EntityType string

const (
	EntityTypeSession EntityType = "SESSION"
	EntityTypeRound   EntityType = "ROUND"
	EntityTypeBet     EntityType = "BET"
)

// Movement classifies a single ledger call made by the engine.
type Movement string

const (
	MovementEscrow       Movement = "ESCROW"
	MovementWinCredit    Movement = "WIN_CREDIT"
	MovementLossRefund   Movement = "LOSS_REFUND"
	MovementRoundPayout  Movement = "ROUND_PAYOUT"
	MovementExpiryRefund Movement = "EXPIRY_REFUND"
)

// Entry is the input for recording one fund movement.
type Entry struct {
	EntityType EntityType
	EntityID   string
	Account    string
	Movement   Movement
	Amount     int64
	Family     string
}

// Record is a persisted, signable fund-movement row.
type Record struct {
	ID         int64      `json:"id"`
	AuditID    uuid.UUID  `json:"auditId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Account    string     `json:"account"`
	Movement   Movement   `json:"movement"`
	Amount     int64      `json:"amount"`
	Family     string     `json:"family,omitempty"`
	Signature  []byte     `json:"signature,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewRecord validates an entry and stamps it into a record.
func NewRecord(e *Entry, now time.Time) (*Record, error) {
	if e.EntityType == "" || e.EntityID == "" {
		return nil, errors.New("audit entry requires entity type and id")
	}
	if e.Account == "" {
		return nil, errors.New("audit entry requires an account")
	}
	if e.Movement == "" {
		return nil, errors.New("audit entry requires a movement kind")
	}
	if e.Amount < 0 {
		return nil, errors.New("audit entry amount must be non-negative")
	}
	return &Record{
		AuditID:    uuid.New(),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Account:    e.Account,
		Movement:   e.Movement,
		Amount:     e.Amount,
		Family:     e.Family,
		CreatedAt:  now,
	}, nil
}
