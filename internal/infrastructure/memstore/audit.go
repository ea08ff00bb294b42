package memstore

import (
	"context"
	"sync"

	"github.com/stake-engine/stake-engine/internal/domain/audit"
)

// AuditRepository is the in-memory audit.Repository used by the memory
// backend and by tests.
type AuditRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records []*audit.Record
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, record *audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	record.ID = r.nextID
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *AuditRepository) ListByAccount(ctx context.Context, account string, limit, offset int) ([]*audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*audit.Record, 0)
	// Newest first, matching the durable repository's ordering.
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Account == account {
			matched = append(matched, r.records[i])
		}
	}
	if offset >= len(matched) {
		return []*audit.Record{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*audit.Record, 0)
	for _, rec := range r.records {
		if rec.EntityType == entityType && rec.EntityID == entityID {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}
