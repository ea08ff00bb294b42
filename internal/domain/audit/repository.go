package audit

import "context"

// Repository defines persistence for fund-movement records.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	ListByAccount(ctx context.Context, account string, limit, offset int) ([]*Record, error)
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]*Record, error)
}
