package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/leadhook/internal/domain"
)

const leadsStagingTable = "leads_temp_import"

// LeadRepository implements domain.LeadSink for PostgreSQL.
type LeadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLeadRepository creates a new PostgreSQL lead sink.
func NewLeadRepository(db *sql.DB, logger *slog.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger.With("component", "lead_sink")}
}

// WriteLeadBatch stages the batch with COPY and merges it into leads.
// Rows whose id already exists are skipped, so replays are harmless.
func (r *LeadRepository) WriteLeadBatch(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+leadsStagingTable+` (LIKE leads INCLUDING DEFAULTS) ON COMMIT DROP`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(leadsStagingTable,
		"id", "owner_key", "lead_id", "api_version", "form_id", "campaign_id", "adgroup_id",
		"creative_id", "gcl_id", "is_test", "user_column_data", "payload", "received_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, lead := range leads {
		columns, err := json.Marshal(lead.UserColumnData)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("marshal user columns for lead %s: %w", lead.ID, err)
		}
		if lead.UserColumnData == nil {
			columns = []byte("[]")
		}
		var payload interface{}
		if len(lead.Payload) > 0 {
			payload = string(lead.Payload)
		}

		_, err = stmt.ExecContext(ctx,
			lead.ID, lead.OwnerKey, lead.LeadID, lead.APIVersion, lead.FormID, lead.CampaignID, lead.AdGroupID,
			lead.CreativeID, lead.GclID, lead.IsTest, string(columns), payload, lead.ReceivedAt,
		)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy lead %s: %w", lead.ID, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	res, err := txn.ExecContext(ctx, `
		INSERT INTO leads (id, owner_key, lead_id, api_version, form_id, campaign_id, adgroup_id,
			creative_id, gcl_id, is_test, user_column_data, payload, received_at)
		SELECT id, owner_key, lead_id, api_version, form_id, campaign_id, adgroup_id,
			creative_id, gcl_id, is_test, user_column_data, payload, received_at
		FROM `+leadsStagingTable+`
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("merge leads: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && int(n) < len(leads) {
		r.logger.Info("skipped already stored leads", "batch", len(leads), "inserted", n)
	}
	return nil
}
