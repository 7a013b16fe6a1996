package notifier

import (
	"context"
	"log/slog"

	"github.com/V4T54L/leadhook/internal/domain"
)

// LogNotifier announces new leads on the structured log. It stands in for
// outbound email, which is delivered by a separate system.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "lead_notifier")}
}

// NotifyLead logs the lead. Callers are expected to pass a redacted copy.
func (n *LogNotifier) NotifyLead(ctx context.Context, lead domain.Lead) error {
	answers := make([]any, 0, len(lead.UserColumnData))
	for _, col := range lead.UserColumnData {
		name := col.ColumnID
		if name == "" {
			name = col.ColumnName
		}
		answers = append(answers, slog.String(name, col.StringValue))
	}

	n.logger.InfoContext(ctx, "new lead received",
		"owner_key", lead.OwnerKey,
		"form_id", lead.FormID,
		"lead_id", lead.LeadID,
		"is_test", lead.IsTest,
		slog.Group("answers", answers...),
	)
	return nil
}
