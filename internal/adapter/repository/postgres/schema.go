package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS forms (
		id          UUID PRIMARY KEY,
		form_id     BIGINT NOT NULL,
		form_name   TEXT NOT NULL DEFAULT '',
		owner_key   TEXT NOT NULL,
		google_key  TEXT NOT NULL,
		verified    BOOLEAN NOT NULL DEFAULT FALSE,
		claimed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS forms_owner_claimed_idx ON forms (owner_key, claimed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS forms_form_id_idx ON forms (form_id)`,
	// At most one verified owner per form id.
	`CREATE UNIQUE INDEX IF NOT EXISTS forms_verified_form_id_idx ON forms (form_id) WHERE verified`,

	`CREATE TABLE IF NOT EXISTS leads (
		id                UUID PRIMARY KEY,
		owner_key         TEXT NOT NULL,
		lead_id           TEXT NOT NULL DEFAULT '',
		api_version       TEXT NOT NULL DEFAULT '',
		form_id           BIGINT NOT NULL DEFAULT 0,
		campaign_id       BIGINT NOT NULL DEFAULT 0,
		adgroup_id        BIGINT NOT NULL DEFAULT 0,
		creative_id       BIGINT NOT NULL DEFAULT 0,
		gcl_id            TEXT NOT NULL DEFAULT '',
		is_test           BOOLEAN NOT NULL DEFAULT FALSE,
		user_column_data  JSONB NOT NULL DEFAULT '[]',
		payload           JSONB,
		received_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS leads_owner_received_idx ON leads (owner_key, received_at DESC)`,
}

// Bootstrap creates the tables and indexes used by the service.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
