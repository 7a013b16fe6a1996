package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/leadhook/internal/adapter/credential"
	"github.com/V4T54L/leadhook/internal/adapter/identity"
	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/domain"
)

const (
	// WebhookPath is where the ad platform delivers leads.
	WebhookPath = "/api/webhook"
	// WebhookTokenParam carries the advertiser's encoded key.
	WebhookTokenParam = "id"

	defaultStoreTimeout = 5 * time.Second
)

// FormList is the response to listing an advertiser's forms.
type FormList struct {
	WebhookURL string        `json:"webhook_url"`
	Forms      []domain.Form `json:"forms"`
}

// ClaimResult is the response to a successful claim. GoogleKey is only ever
// returned here.
type ClaimResult struct {
	WebhookURL string `json:"webhook_url"`
	GoogleKey  string `json:"google_key"`
	FormID     int64  `json:"form_id"`
}

// FormClaimUseCase lists, claims, releases and verifies forms.
//
// Uniqueness of verified claims is enforced by the store: Claim writes with a
// single conditional insert and Verify relies on the store rejecting a second
// verified row for the same form id. Unverified duplicates are expected.
type FormClaimUseCase struct {
	repo             domain.FormRepository
	codec            *identity.Codec
	generator        *credential.Generator
	logger           *slog.Logger
	metrics          *metrics.Metrics
	credentialLength int
	storeTimeout     time.Duration
}

// NewFormClaimUseCase creates a new FormClaimUseCase. Non-positive lengths and
// timeouts fall back to the defaults.
func NewFormClaimUseCase(
	repo domain.FormRepository,
	codec *identity.Codec,
	generator *credential.Generator,
	logger *slog.Logger,
	m *metrics.Metrics,
	credentialLength int,
	storeTimeout time.Duration,
) *FormClaimUseCase {
	if credentialLength <= 0 {
		credentialLength = credential.DefaultLength
	}
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &FormClaimUseCase{
		repo:             repo,
		codec:            codec,
		generator:        generator,
		logger:           logger.With("component", "form_claims"),
		metrics:          m,
		credentialLength: credentialLength,
		storeTimeout:     storeTimeout,
	}
}

// WebhookURL builds the principal's webhook URL under baseURL
// (scheme://host[:port]).
func (uc *FormClaimUseCase) WebhookURL(baseURL, principalID string) string {
	return strings.TrimRight(baseURL, "/") + WebhookPath + "?" + WebhookTokenParam + "=" + uc.codec.Encode(principalID)
}

// List returns the principal's webhook URL and forms, newest claim first.
func (uc *FormClaimUseCase) List(ctx context.Context, p domain.Principal, baseURL string) (*FormList, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	ownerKey := uc.codec.DeriveKey(p.ID).String()

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	forms, err := uc.repo.ListByOwner(storeCtx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	if forms == nil {
		forms = []domain.Form{}
	}

	return &FormList{
		WebhookURL: uc.WebhookURL(baseURL, p.ID),
		Forms:      forms,
	}, nil
}

// Claim registers formID for the principal and issues a fresh credential.
// It fails with domain.ErrAlreadyClaimed when a verified claim exists.
func (uc *FormClaimUseCase) Claim(ctx context.Context, p domain.Principal, baseURL string, formID int64, formName string) (*ClaimResult, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	ctx, span := otel.Tracer("form-claims").Start(ctx, "Claim",
		trace.WithAttributes(attribute.Int64("form.id", formID)))
	defer span.End()
	ownerKey := uc.codec.DeriveKey(p.ID).String()

	// Fast path only; the conditional insert below is what rejects a claim
	// racing a verification.
	verified, err := uc.hasVerifiedClaim(ctx, formID)
	if err != nil {
		uc.countClaim("error")
		return nil, err
	}
	if verified {
		uc.countClaim("already_claimed")
		uc.logger.Info("claim rejected, form already verified", "owner_key", ownerKey, "form_id", formID)
		return nil, domain.ErrAlreadyClaimed
	}

	key, err := uc.generator.Generate(uc.credentialLength)
	if err != nil {
		uc.countClaim("error")
		return nil, fmt.Errorf("failed to generate credential: %w", err)
	}

	form := domain.Form{
		ID:         uuid.New(),
		FormID:     formID,
		FormName:   formName,
		OwnerKey:   ownerKey,
		Credential: key,
		ClaimedAt:  time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	inserted, err := uc.repo.InsertIfUnclaimed(storeCtx, form)
	if err != nil {
		uc.countClaim("error")
		return nil, fmt.Errorf("failed to store form claim: %w", err)
	}
	if !inserted {
		uc.countClaim("already_claimed")
		uc.logger.Info("claim lost to a concurrent verification", "owner_key", ownerKey, "form_id", formID)
		return nil, domain.ErrAlreadyClaimed
	}

	uc.countClaim("claimed")
	uc.logger.Info("form claimed", "owner_key", ownerKey, "form_id", formID, "row_id", form.ID)

	return &ClaimResult{
		WebhookURL: uc.WebhookURL(baseURL, p.ID),
		GoogleKey:  key,
		FormID:     formID,
	}, nil
}

// Release deletes the principal's claims on formID. Releasing a form that
// is not claimed succeeds.
func (uc *FormClaimUseCase) Release(ctx context.Context, p domain.Principal, formID int64) error {
	if !p.Authenticated() {
		return domain.ErrUnauthenticated
	}
	ownerKey := uc.codec.DeriveKey(p.ID).String()

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	if err := uc.repo.DeleteByOwner(storeCtx, ownerKey, formID); err != nil {
		return fmt.Errorf("failed to release form: %w", err)
	}

	if uc.metrics != nil {
		uc.metrics.FormReleasesTotal.Inc()
	}
	uc.logger.Info("form released", "owner_key", ownerKey, "form_id", formID)
	return nil
}

// Verify marks the claim of the advertiser behind ownerToken on formID as
// verified. This is the point where the single-verified-owner rule is
// enforced atomically.
func (uc *FormClaimUseCase) Verify(ctx context.Context, ownerToken string, formID int64) error {
	ctx, span := otel.Tracer("form-claims").Start(ctx, "Verify",
		trace.WithAttributes(attribute.Int64("form.id", formID)))
	defer span.End()

	key, err := uc.codec.Decode(ownerToken)
	if err != nil {
		uc.countVerification("invalid_token")
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	err = uc.repo.Verify(storeCtx, key.String(), formID)
	switch {
	case err == nil:
		uc.countVerification("verified")
		uc.logger.Info("form verified", "owner_key", key.String(), "form_id", formID)
		return nil
	case errors.Is(err, domain.ErrAlreadyClaimed):
		uc.countVerification("already_claimed")
		return err
	case errors.Is(err, domain.ErrFormNotFound):
		uc.countVerification("not_found")
		return err
	default:
		uc.countVerification("error")
		return fmt.Errorf("failed to verify form: %w", err)
	}
}

func (uc *FormClaimUseCase) hasVerifiedClaim(ctx context.Context, formID int64) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()
	verified, err := uc.repo.HasVerifiedClaim(storeCtx, formID)
	if err != nil {
		return false, fmt.Errorf("failed to check existing claims: %w", err)
	}
	return verified, nil
}

func (uc *FormClaimUseCase) countClaim(result string) {
	if uc.metrics != nil {
		uc.metrics.FormClaimsTotal.WithLabelValues(result).Inc()
	}
}

func (uc *FormClaimUseCase) countVerification(result string) {
	if uc.metrics != nil {
		uc.metrics.FormVerificationsTotal.WithLabelValues(result).Inc()
	}
}
