package postgres

import (
	"context"
	"database/sql"

	"contentgate/internal/model"
	"contentgate/internal/repository"
)

// ViewEventPostgres is the append-only usage log backed by PostgreSQL.
type ViewEventPostgres struct {
	db *sql.DB
}

// NewViewEventPostgres creates a new ViewEventPostgres repository.
func NewViewEventPostgres(db *sql.DB) *ViewEventPostgres {
	return &ViewEventPostgres{db: db}
}

var _ repository.ViewEventRepository = (*ViewEventPostgres)(nil)

// RecordAccess appends an access record for a grant.
func (r *ViewEventPostgres) RecordAccess(ctx context.Context, rec model.AccessRecord) error {
	const q = `INSERT INTO access_records (grant_id, recorded_at) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, q, rec.GrantID, rec.RecordedAt)
	return err
}

// Create appends a finalized view event.
func (r *ViewEventPostgres) Create(ctx context.Context, ev *model.ViewEvent) error {
	const q = `
		INSERT INTO view_events (id, grant_id, started_at, ended_at, completion_percent)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.GrantID, ev.StartedAt, ev.EndedAt, ev.CompletionPercent)
	return err
}

// ListByGrant returns view events for a grant using LIMIT/OFFSET pagination and a total count.
func (r *ViewEventPostgres) ListByGrant(ctx context.Context, grantID string, pq repository.PageQuery) (*repository.PageResult[model.ViewEvent], error) {
	const qCount = `SELECT COUNT(*) FROM view_events WHERE grant_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, grantID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, grant_id, started_at, ended_at, completion_percent
		FROM view_events
		WHERE grant_id = $1
		ORDER BY ended_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, grantID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ViewEvent, 0)
	for rows.Next() {
		var ev model.ViewEvent
		if err := rows.Scan(&ev.ID, &ev.GrantID, &ev.StartedAt, &ev.EndedAt, &ev.CompletionPercent); err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.ViewEvent]{Items: items, Total: total}, nil
}
