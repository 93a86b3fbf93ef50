package postgres

import (
	"context"
	"database/sql"
	"errors"

	"contentgate/internal/model"
	"contentgate/internal/repository"
)

// GrantPostgres is a PostgreSQL implementation of repository.GrantRepository.
type GrantPostgres struct {
	db *sql.DB
}

// NewGrantPostgres creates a new GrantPostgres repository.
func NewGrantPostgres(db *sql.DB) *GrantPostgres {
	return &GrantPostgres{db: db}
}

var _ repository.GrantRepository = (*GrantPostgres)(nil)

// Create inserts a new grant row.
func (r *GrantPostgres) Create(ctx context.Context, g *model.AccessGrant) error {
	const q = `
		INSERT INTO access_grants (id, subject_id, content_unit_id, content_type, storage_locator, device_type,
		                           download_allowed, view_only, watermark_enabled, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, q,
		g.ID,
		g.Subject,
		g.ResourceID,
		g.ContentType,
		g.StorageLocator,
		g.DeviceType,
		g.Scope.DownloadAllowed,
		g.Scope.ViewOnly,
		g.Scope.WatermarkEnabled,
		g.IssuedAt,
		g.ExpiresAt,
	)
	return err
}

// FindByID fetches a grant by its ID.
func (r *GrantPostgres) FindByID(ctx context.Context, id string) (*model.AccessGrant, error) {
	const q = `
		SELECT id, subject_id, content_unit_id, content_type, storage_locator, device_type,
		       download_allowed, view_only, watermark_enabled, issued_at, expires_at
		FROM access_grants
		WHERE id = $1
	`
	var g model.AccessGrant
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&g.ID,
		&g.Subject,
		&g.ResourceID,
		&g.ContentType,
		&g.StorageLocator,
		&g.DeviceType,
		&g.Scope.DownloadAllowed,
		&g.Scope.ViewOnly,
		&g.Scope.WatermarkEnabled,
		&g.IssuedAt,
		&g.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}
