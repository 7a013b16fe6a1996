package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/leadhook/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks personal data in lead answers before they are logged or
// sent to a notification channel. Stored leads are never redacted.
type Redactor struct {
	columns map[string]struct{}
	logger  *slog.Logger
}

// NewRedactor creates a Redactor for the given column ids or names,
// matched case-insensitively.
func NewRedactor(columns []string, logger *slog.Logger) *Redactor {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return &Redactor{columns: set, logger: logger}
}

// Redact returns a copy of lead with matching answers masked and the raw
// payload removed. The bool reports whether any answer was masked.
func (r *Redactor) Redact(lead domain.Lead) (domain.Lead, bool) {
	out := lead
	out.Payload = nil
	out.GoogleKey = ""
	if len(lead.UserColumnData) == 0 {
		return out, false
	}

	out.UserColumnData = make([]domain.UserColumn, len(lead.UserColumnData))
	redacted := false
	for i, col := range lead.UserColumnData {
		if r.matches(col) {
			col.StringValue = RedactedPlaceholder
			redacted = true
		}
		out.UserColumnData[i] = col
	}

	if redacted {
		r.logger.Debug("redacted lead answers", "lead_id", lead.LeadID)
	}
	return out, redacted
}

func (r *Redactor) matches(col domain.UserColumn) bool {
	if _, ok := r.columns[strings.ToUpper(col.ColumnID)]; ok && col.ColumnID != "" {
		return true
	}
	_, ok := r.columns[strings.ToUpper(col.ColumnName)]
	return ok && col.ColumnName != ""
}
