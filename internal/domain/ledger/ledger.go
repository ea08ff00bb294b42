package ledger

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . Ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnavailable is returned when the backing store cannot be reached; the
	// caller must treat the whole operation as not having happened.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Ledger holds per-account balances. Every call is atomic with respect to the
// balance it touches; the engine never read-modify-writes a balance outside a
// single call.
type Ledger interface {
	// Debit removes amount from the account. It fails with
	// ErrInsufficientFunds without partial effect if the balance is too low.
	Debit(ctx context.Context, account string, amount int64) error
	// Credit adds amount to the account, creating it if absent.
	Credit(ctx context.Context, account string, amount int64) error
	// Balance returns the current balance of the account.
	Balance(ctx context.Context, account string) (int64, error)
}
