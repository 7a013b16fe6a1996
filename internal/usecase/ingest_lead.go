package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/leadhook/internal/adapter/identity"
	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/adapter/pii"
	"github.com/V4T54L/leadhook/internal/domain"
)

// IngestLeadUseCase accepts lead deliveries from the ad platform.
type IngestLeadUseCase struct {
	buffer       domain.LeadBuffer
	forms        domain.FormRepository
	codec        *identity.Codec
	redactor     *pii.Redactor
	notifier     domain.LeadNotifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
	verifyKey    bool
	storeTimeout time.Duration
}

// IngestOptions holds the optional behaviour of IngestLeadUseCase.
type IngestOptions struct {
	// VerifyKey requires the lead's google_key to match a credential issued
	// to the advertiser for the lead's form.
	VerifyKey    bool
	StoreTimeout time.Duration
}

// NewIngestLeadUseCase creates a new IngestLeadUseCase. forms may be nil when
// key verification is off; notifier may be nil.
func NewIngestLeadUseCase(
	buffer domain.LeadBuffer,
	forms domain.FormRepository,
	codec *identity.Codec,
	redactor *pii.Redactor,
	notifier domain.LeadNotifier,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts IngestOptions,
) *IngestLeadUseCase {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	return &IngestLeadUseCase{
		buffer:       buffer,
		forms:        forms,
		codec:        codec,
		redactor:     redactor,
		notifier:     notifier,
		logger:       logger.With("component", "lead_ingest"),
		metrics:      m,
		verifyKey:    opts.VerifyKey && forms != nil,
		storeTimeout: opts.StoreTimeout,
	}
}

// Ingest stores one lead under the advertiser identified by ownerToken.
// Deliveries that cannot be attributed or parsed are dropped without error so
// the caller still acknowledges them; only a buffer failure is returned.
func (uc *IngestLeadUseCase) Ingest(ctx context.Context, ownerToken string, payload []byte) error {
	ctx, span := otel.Tracer("lead-ingest").Start(ctx, "Ingest")
	defer span.End()

	if ownerToken == "" {
		uc.count("dropped_token")
		uc.logger.Debug("lead delivery without owner token")
		return nil
	}

	key, err := uc.codec.Decode(ownerToken)
	if err != nil {
		uc.count("dropped_token")
		uc.logger.Warn("dropping lead with invalid owner token", "error", err)
		return nil
	}
	ownerKey := key.String()

	lead, err := parseLead(payload)
	if err != nil {
		uc.count("dropped_payload")
		uc.logger.Warn("dropping malformed lead payload", "owner_key", ownerKey, "error", err)
		return nil
	}

	if uc.verifyKey {
		ok, err := uc.credentialMatches(ctx, ownerKey, lead.FormID, lead.GoogleKey)
		if err != nil {
			uc.count("error_store")
			span.SetStatus(codes.Error, "credential lookup failed")
			return err
		}
		if !ok {
			uc.count("dropped_credential")
			uc.logger.Warn("dropping lead with unknown google_key", "owner_key", ownerKey, "form_id", lead.FormID, "lead_id", lead.LeadID)
			return nil
		}
	}

	lead.ID = uuid.NewString()
	lead.OwnerKey = ownerKey
	lead.ReceivedAt = time.Now().UTC()
	lead.GoogleKey = ""

	if err := uc.buffer.BufferLead(ctx, lead); err != nil {
		uc.count("error_buffer")
		uc.logger.Error("failed to buffer lead", "error", err, "owner_key", ownerKey, "lead_id", lead.LeadID)
		span.SetStatus(codes.Error, "buffer failed")
		return fmt.Errorf("failed to buffer lead: %w", err)
	}
	uc.count("accepted")
	span.SetAttributes(attribute.String("lead.id", lead.ID), attribute.Int64("lead.form_id", lead.FormID))

	if uc.notifier != nil {
		notice := lead
		if uc.redactor != nil {
			notice, _ = uc.redactor.Redact(lead)
		}
		notifyCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
		defer cancel()
		if err := uc.notifier.NotifyLead(notifyCtx, notice); err != nil {
			uc.logger.Warn("failed to send lead notification", "error", err, "id", lead.ID)
		}
	}

	return nil
}

func (uc *IngestLeadUseCase) credentialMatches(ctx context.Context, ownerKey string, formID int64, googleKey string) (bool, error) {
	if googleKey == "" || formID == 0 {
		return false, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	creds, err := uc.forms.FindCredentials(storeCtx, ownerKey, formID)
	if err != nil {
		return false, fmt.Errorf("failed to look up form credentials: %w", err)
	}

	match := 0
	for _, c := range creds {
		match |= subtle.ConstantTimeCompare([]byte(c), []byte(googleKey))
	}
	return match == 1, nil
}

func (uc *IngestLeadUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.LeadsTotal.WithLabelValues(status).Inc()
	}
}

var errEmptyPayload = errors.New("empty payload")

// parseLead decodes the ad platform's lead JSON. Server-assigned fields are
// reset and the stored raw payload has google_key removed.
func parseLead(payload []byte) (domain.Lead, error) {
	if len(payload) == 0 {
		return domain.Lead{}, errEmptyPayload
	}

	var lead domain.Lead
	if err := json.Unmarshal(payload, &lead); err != nil {
		return domain.Lead{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.Lead{}, err
	}
	delete(fields, "google_key")
	for _, f := range []string{"id", "owner_key", "received_at", "payload"} {
		delete(fields, f)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return domain.Lead{}, err
	}

	lead.ID = ""
	lead.OwnerKey = ""
	lead.ReceivedAt = time.Time{}
	lead.Payload = raw
	return lead, nil
}
