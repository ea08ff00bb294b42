package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stake-engine/stake-engine/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Create(ctx context.Context, record *audit.Record) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO audit_movements
		(audit_id, entity_type, entity_id, account, movement, amount, family, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, record.AuditID, record.EntityType, record.EntityID, record.Account,
		record.Movement, record.Amount, record.Family, record.Signature, record.CreatedAt,
	).Scan(&record.ID)
}

func (r *AuditRepository) ListByAccount(ctx context.Context, account string, limit, offset int) ([]*audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, audit_id, entity_type, entity_id, account, movement, amount, family, signature, created_at
		FROM audit_movements WHERE account = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, account, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, audit_id, entity_type, entity_id, account, movement, amount, family, signature, created_at
		FROM audit_movements WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*audit.Record, error) {
	records := make([]*audit.Record, 0)
	for rows.Next() {
		rec := &audit.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.AuditID, &rec.EntityType, &rec.EntityID, &rec.Account,
			&rec.Movement, &rec.Amount, &rec.Family, &rec.Signature, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
