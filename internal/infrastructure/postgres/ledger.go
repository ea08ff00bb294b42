package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stake-engine/stake-engine/internal/domain/ledger"
)

// Ledger implements ledger.Ledger on top of an accounts table. Debits are a
// single conditional UPDATE, so the balance check and the deduction are one
// atomic statement.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Debit(ctx context.Context, account string, amount int64) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE accounts SET balance = balance - $2, updated_at = now()
		WHERE account = $1 AND balance >= $2
	`, account, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Missing accounts debit like empty ones.
		return ledger.ErrInsufficientFunds
	}
	return nil
}

func (l *Ledger) Credit(ctx context.Context, account string, amount int64) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO accounts (account, balance) VALUES ($1, $2)
		ON CONFLICT (account)
		DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()
	`, account, amount)
	return err
}

func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE account = $1`, account,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}
