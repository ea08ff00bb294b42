package memstore

import (
	"context"
	"sync"

	"github.com/stake-engine/stake-engine/internal/domain/ledger"
)

// Ledger is a memory-backed ledger.Ledger with the same atomicity contract as
// the postgres implementation. Used in development mode and tests.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]int64)}
}

// Seed sets an account balance directly, bypassing debit checks.
func (l *Ledger) Seed(account string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = balance
}

// Debit removes amount from the account, failing without effect if the
// balance is too low.
func (l *Ledger) Debit(ctx context.Context, account string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] < amount {
		return ledger.ErrInsufficientFunds
	}
	l.balances[account] -= amount
	return nil
}

// Credit adds amount to the account.
func (l *Ledger) Credit(ctx context.Context, account string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return nil
}

// Balance returns the current balance of the account.
func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}
