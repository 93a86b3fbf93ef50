package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"contentgate/internal/logger"
)

type migrationStep struct {
	Name string
	SQL  string
}

// content_units and content_entitlements are owned by the authoring and enrollment systems;
// they are created here only so a fresh database is usable end to end.
var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_content_units",
		SQL: `CREATE TABLE IF NOT EXISTS content_units (
  id                     UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  title                  TEXT        NOT NULL,
  type                   TEXT        NOT NULL CHECK (type IN ('BOOK', 'VIDEO', 'INTERACTIVE', 'IMAGE')),
  storage_locator        TEXT        NOT NULL UNIQUE,
  delivery_type          TEXT        NOT NULL DEFAULT 'STREAM' CHECK (delivery_type IN ('STREAM', 'EMBED')),
  status                 TEXT        NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'SUSPENDED')),
  watermark_enabled      BOOLEAN     NOT NULL DEFAULT TRUE,
  session_expiry_minutes INTEGER     CHECK (session_expiry_minutes > 0),
  download_allowed       BOOLEAN     NOT NULL DEFAULT FALSE,
  view_only              BOOLEAN     NOT NULL DEFAULT TRUE,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_content_entitlements",
		SQL: `CREATE TABLE IF NOT EXISTS content_entitlements (
  subject_id      TEXT        NOT NULL,
  content_unit_id UUID        NOT NULL REFERENCES content_units (id) ON DELETE CASCADE,
  source          TEXT        NOT NULL,
  expires_at      TIMESTAMPTZ,
  PRIMARY KEY (subject_id, content_unit_id, source)
);`,
	},
	{
		Name: "create_table_access_grants",
		SQL: `CREATE TABLE IF NOT EXISTS access_grants (
  id                UUID        PRIMARY KEY,
  subject_id        TEXT        NOT NULL,
  content_unit_id   UUID        NOT NULL,
  content_type      TEXT        NOT NULL,
  storage_locator   TEXT        NOT NULL,
  device_type       TEXT        NOT NULL,
  download_allowed  BOOLEAN     NOT NULL,
  view_only         BOOLEAN     NOT NULL,
  watermark_enabled BOOLEAN     NOT NULL,
  issued_at         TIMESTAMPTZ NOT NULL,
  expires_at        TIMESTAMPTZ NOT NULL
);`,
	},
	{
		Name: "create_index_access_grants_subject_unit",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_access_grants_subject_unit ON access_grants (subject_id, content_unit_id);`,
	},
	{
		Name: "create_table_access_records",
		SQL: `CREATE TABLE IF NOT EXISTS access_records (
  grant_id    UUID        NOT NULL REFERENCES access_grants (id),
  recorded_at TIMESTAMPTZ NOT NULL
);`,
	},
	{
		Name: "create_table_view_events",
		SQL: `CREATE TABLE IF NOT EXISTS view_events (
  id                 UUID             PRIMARY KEY,
  grant_id           UUID             NOT NULL REFERENCES access_grants (id),
  started_at         TIMESTAMPTZ      NOT NULL,
  ended_at           TIMESTAMPTZ      NOT NULL,
  completion_percent DOUBLE PRECISION NOT NULL CHECK (completion_percent BETWEEN 0 AND 100)
);`,
	},
	{
		Name: "create_index_view_events_grant",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_view_events_grant ON view_events (grant_id, ended_at);`,
	},
}

// EnsureMigrated checks if the 'access_grants' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logger.Logger, dbHost string) error {
	start := time.Now()

	log.Log(logger.Fields{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.access_grants') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Log(logger.Fields{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Log(logger.Fields{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Log(logger.Fields{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Log(logger.Fields{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Log(logger.Fields{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}
