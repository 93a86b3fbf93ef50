package postgres

import (
	"context"
	"database/sql"
	"errors"

	"contentgate/internal/model"
	"contentgate/internal/repository"
)

// ContentPostgres is a PostgreSQL implementation of repository.ContentUnitRepository
// and repository.EntitlementRepository. It uses database/sql with parameterized queries.
type ContentPostgres struct {
	db *sql.DB
}

// NewContentPostgres creates a new ContentPostgres repository.
func NewContentPostgres(db *sql.DB) *ContentPostgres {
	return &ContentPostgres{db: db}
}

var (
	_ repository.ContentUnitRepository = (*ContentPostgres)(nil)
	_ repository.EntitlementRepository = (*ContentPostgres)(nil)
)

// FindByID fetches a single content unit by its ID.
func (r *ContentPostgres) FindByID(ctx context.Context, id string) (*model.ContentUnit, error) {
	const q = `
		SELECT id, title, type, storage_locator, delivery_type, status,
		       watermark_enabled, session_expiry_minutes, download_allowed, view_only, created_at
		FROM content_units
		WHERE id = $1
	`
	var (
		u      model.ContentUnit
		expiry sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Title,
		&u.Type,
		&u.StorageLocator,
		&u.DeliveryType,
		&u.Status,
		&u.WatermarkEnabled,
		&expiry,
		&u.DownloadAllowed,
		&u.ViewOnly,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if expiry.Valid {
		u.SessionExpiryMinutes = int(expiry.Int64)
	}
	return &u, nil
}

// HasEntitlement reports whether any unexpired entitlement row links subject to the unit.
func (r *ContentPostgres) HasEntitlement(ctx context.Context, subject, unitID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM content_entitlements
			WHERE subject_id = $1 AND content_unit_id = $2
			  AND (expires_at IS NULL OR expires_at > now())
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, subject, unitID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
