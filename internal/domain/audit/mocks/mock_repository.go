package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stake-engine/stake-engine/internal/domain/audit"
)

// MockRepository is a mock implementation of audit.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, record *audit.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) ListByAccount(ctx context.Context, account string, limit, offset int) ([]*audit.Record, error) {
	args := m.Called(ctx, account, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func (m *MockRepository) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.Record, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}
