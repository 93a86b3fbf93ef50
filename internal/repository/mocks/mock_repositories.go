package mocks

import (
	"context"

	"contentgate/internal/model"
	"contentgate/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockContentUnitRepository struct {
	mock.Mock
}

func (m *MockContentUnitRepository) FindByID(ctx context.Context, id string) (*model.ContentUnit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContentUnit), args.Error(1)
}

type MockEntitlementRepository struct {
	mock.Mock
}

func (m *MockEntitlementRepository) HasEntitlement(ctx context.Context, subject, unitID string) (bool, error) {
	args := m.Called(ctx, subject, unitID)
	return args.Bool(0), args.Error(1)
}

type MockGrantRepository struct {
	mock.Mock
}

func (m *MockGrantRepository) Create(ctx context.Context, g *model.AccessGrant) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockGrantRepository) FindByID(ctx context.Context, id string) (*model.AccessGrant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessGrant), args.Error(1)
}

type MockViewEventRepository struct {
	mock.Mock
}

func (m *MockViewEventRepository) RecordAccess(ctx context.Context, rec model.AccessRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockViewEventRepository) Create(ctx context.Context, ev *model.ViewEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockViewEventRepository) ListByGrant(ctx context.Context, grantID string, pq repository.PageQuery) (*repository.PageResult[model.ViewEvent], error) {
	args := m.Called(ctx, grantID, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.ViewEvent]), args.Error(1)
}
