package domain

import "context"

// FormRepository is the persistence contract of the form-claim workflow.
type FormRepository interface {
	// ListByOwner returns every form owned by ownerKey, most recently claimed first.
	ListByOwner(ctx context.Context, ownerKey string) ([]Form, error)

	// HasVerifiedClaim reports whether any owner holds a verified claim on formID.
	HasVerifiedClaim(ctx context.Context, formID int64) (bool, error)

	// InsertIfUnclaimed stores an unverified form row unless a verified row for
	// the same form id exists when the write executes. It reports whether the
	// row was written.
	InsertIfUnclaimed(ctx context.Context, form Form) (bool, error)

	// DeleteByOwner removes every row of ownerKey for formID. Deleting nothing
	// is not an error.
	DeleteByOwner(ctx context.Context, ownerKey string, formID int64) error

	// Verify marks the owner's newest unverified claim on formID as verified.
	// It returns ErrAlreadyClaimed when another row holds the verified claim and
	// ErrFormNotFound when the owner has no claim to verify.
	Verify(ctx context.Context, ownerKey string, formID int64) error

	// FindCredentials returns the credentials issued to ownerKey for formID.
	FindCredentials(ctx context.Context, ownerKey string, formID int64) ([]string, error)
}

// LeadBuffer is the durable hand-off between webhook ingestion and the sink.
type LeadBuffer interface {
	BufferLead(ctx context.Context, lead Lead) error
	ReadLeadBatch(ctx context.Context, group, consumer string, count int) ([]Lead, error)
	AcknowledgeLeads(ctx context.Context, group string, messageIDs ...string) error
	MoveToDLQ(ctx context.Context, leads []Lead) error
}

// LeadSink is the final structured store for leads.
type LeadSink interface {
	// WriteLeadBatch must be idempotent on Lead.ID.
	WriteLeadBatch(ctx context.Context, leads []Lead) error
}

// WALRepository is the local write-ahead log used while the buffer is unreachable.
type WALRepository interface {
	Write(ctx context.Context, lead Lead) error
	Replay(ctx context.Context, handler func(lead Lead) error) error
	Truncate(ctx context.Context) error
}

// StreamAdminRepository exposes operational views of the lead stream.
type StreamAdminRepository interface {
	GetGroupInfo(ctx context.Context) ([]ConsumerGroupInfo, error)
	GetPendingSummary(ctx context.Context, group string) (*PendingLeadSummary, error)
	TrimStream(ctx context.Context, maxLen int64) (int64, error)
}

// LeadNotifier tells the advertiser a lead arrived.
type LeadNotifier interface {
	NotifyLead(ctx context.Context, lead Lead) error
}
