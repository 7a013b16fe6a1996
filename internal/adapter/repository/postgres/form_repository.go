package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/leadhook/internal/domain"
)

const uniqueViolation = pq.ErrorCode("23505")

// FormRepository implements domain.FormRepository for PostgreSQL.
type FormRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFormRepository creates a new PostgreSQL form repository.
func NewFormRepository(db *sql.DB, logger *slog.Logger) *FormRepository {
	return &FormRepository{db: db, logger: logger.With("component", "form_repository")}
}

func (r *FormRepository) ListByOwner(ctx context.Context, ownerKey string) ([]domain.Form, error) {
	query := `
		SELECT id, form_id, form_name, owner_key, google_key, verified, claimed_at
		FROM forms
		WHERE owner_key = $1
		ORDER BY claimed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	forms := []domain.Form{}
	for rows.Next() {
		var f domain.Form
		if err := rows.Scan(&f.ID, &f.FormID, &f.FormName, &f.OwnerKey, &f.Credential, &f.Verified, &f.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

func (r *FormRepository) HasVerifiedClaim(ctx context.Context, formID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM forms WHERE form_id = $1 AND verified)`
	if err := r.db.QueryRowContext(ctx, query, formID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check verified claim: %w", err)
	}
	return exists, nil
}

// InsertIfUnclaimed writes the row in a single statement so that a claim
// arriving after a committed verification inserts nothing.
func (r *FormRepository) InsertIfUnclaimed(ctx context.Context, form domain.Form) (bool, error) {
	query := `
		INSERT INTO forms (id, form_id, form_name, owner_key, google_key, verified, claimed_at)
		SELECT $1::uuid, $2::bigint, $3::text, $4::text, $5::text, FALSE, $6::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM forms WHERE form_id = $2::bigint AND verified)
	`

	res, err := r.db.ExecContext(ctx, query,
		form.ID,
		form.FormID,
		form.FormName,
		form.OwnerKey,
		form.Credential,
		form.ClaimedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert form: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert form: %w", err)
	}
	return n == 1, nil
}

func (r *FormRepository) DeleteByOwner(ctx context.Context, ownerKey string, formID int64) error {
	query := `DELETE FROM forms WHERE owner_key = $1 AND form_id = $2`
	res, err := r.db.ExecContext(ctx, query, ownerKey, formID)
	if err != nil {
		return fmt.Errorf("delete forms: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		r.logger.Debug("deleted form rows", "owner_key", ownerKey, "form_id", formID, "rows", n)
	}
	return nil
}

// Verify relies on forms_verified_form_id_idx: two concurrent verifications
// of different owners cannot both commit.
func (r *FormRepository) Verify(ctx context.Context, ownerKey string, formID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verify: %w", err)
	}
	defer tx.Rollback()

	var owned bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM forms WHERE owner_key = $1 AND form_id = $2 AND verified)`,
		ownerKey, formID,
	).Scan(&owned)
	if err != nil {
		return fmt.Errorf("check verified claim: %w", err)
	}
	if owned {
		return nil
	}

	query := `
		UPDATE forms SET verified = TRUE
		WHERE id = (
			SELECT id FROM forms
			WHERE owner_key = $1 AND form_id = $2 AND NOT verified
			ORDER BY claimed_at DESC
			LIMIT 1
		)
	`
	res, err := tx.ExecContext(ctx, query, ownerKey, formID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("verify form: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify form: %w", err)
	}
	if n == 0 {
		return domain.ErrFormNotFound
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("commit verify: %w", err)
	}
	return nil
}

func (r *FormRepository) FindCredentials(ctx context.Context, ownerKey string, formID int64) ([]string, error) {
	query := `SELECT google_key FROM forms WHERE owner_key = $1 AND form_id = $2`
	rows, err := r.db.QueryContext(ctx, query, ownerKey, formID)
	if err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	defer rows.Close()

	var creds []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	return creds, nil
}
