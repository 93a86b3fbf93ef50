package repository

import (
	"context"
	"errors"

	"contentgate/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres). No business logic here.

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("record not found")

// ContentUnitRepository reads content unit metadata. Units are authored elsewhere.
type ContentUnitRepository interface {
	FindByID(ctx context.Context, id string) (*model.ContentUnit, error)
}

// EntitlementRepository answers whether a subject may currently open a unit.
// The rows behind it (course enrollment, package assignment) are owned by other systems.
type EntitlementRepository interface {
	HasEntitlement(ctx context.Context, subject, unitID string) (bool, error)
}

// GrantRepository persists issued access grants for audit and telemetry joins.
type GrantRepository interface {
	// Create inserts a grant. Grants are never updated afterwards.
	Create(ctx context.Context, g *model.AccessGrant) error

	// FindByID returns a grant by id or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.AccessGrant, error)
}

// ViewEventRepository is the append-only usage log.
type ViewEventRepository interface {
	RecordAccess(ctx context.Context, rec model.AccessRecord) error
	Create(ctx context.Context, ev *model.ViewEvent) error
	ListByGrant(ctx context.Context, grantID string, pq PageQuery) (*PageResult[model.ViewEvent], error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
