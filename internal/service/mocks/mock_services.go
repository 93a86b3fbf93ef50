package mocks

import (
	"context"
	"time"

	"contentgate/internal/service"
	"contentgate/internal/token"
	"github.com/stretchr/testify/mock"
)

type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) Issue(ctx context.Context, subject, resourceID, deviceType string) (*service.IssueResult, error) {
	args := m.Called(ctx, subject, resourceID, deviceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IssueResult), args.Error(1)
}

func (m *MockAccessService) RecordProgress(ctx context.Context, subject, grantID string, elapsed time.Duration, completionPercent float64) error {
	args := m.Called(ctx, subject, grantID, elapsed, completionPercent)
	return args.Error(0)
}

func (m *MockAccessService) ListViews(ctx context.Context, subject, grantID string, limit, offset int) (*service.ViewListResult, error) {
	args := m.Called(ctx, subject, grantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ViewListResult), args.Error(1)
}

func (m *MockAccessService) Revoke(ctx context.Context, req service.RevokeRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) Validate(ctx context.Context, rawToken string) (*token.Claims, error) {
	args := m.Called(ctx, rawToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Claims), args.Error(1)
}

func (m *MockContentService) Identify(ctx context.Context, rawToken string) (*token.Claims, error) {
	args := m.Called(ctx, rawToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Claims), args.Error(1)
}

func (m *MockContentService) Authorize(ctx context.Context, rawToken, locator string) (*token.Claims, error) {
	args := m.Called(ctx, rawToken, locator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Claims), args.Error(1)
}

func (m *MockContentService) Serve(ctx context.Context, rawToken, locator, rangeHeader string) (*service.Delivery, error) {
	args := m.Called(ctx, rawToken, locator, rangeHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Delivery), args.Error(1)
}
