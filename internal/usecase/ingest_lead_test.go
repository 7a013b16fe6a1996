package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/leadhook/internal/adapter/identity"
	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/adapter/pii"
	"github.com/V4T54L/leadhook/internal/domain"
	"github.com/V4T54L/leadhook/internal/domain/mocks"
)

const sampleLead = `{
	"lead_id": "TeSter-123-ABCDEFGHIJKLMNOPQRSTUVWXYZ-abcdefghijklmnopqrstuvwxyz-0123456789-AaBbCcDdEeFfGgHhIiJjKkLl",
	"api_version": "1.0",
	"form_id": 100,
	"campaign_id": 123,
	"google_key": "abcdefghijklmnopqrst",
	"is_test": true,
	"gcl_id": "gcl-1",
	"adgroup_id": 20000000000,
	"creative_id": 30000000000,
	"user_column_data": [
		{"column_name": "Full Name", "string_value": "FirstName LastName", "column_id": "FULL_NAME"},
		{"column_name": "User Phone", "string_value": "+16505550123", "column_id": "PHONE_NUMBER"},
		{"column_name": "Budget", "string_value": "1000", "column_id": "budget"}
	]
}`

type ingestFixture struct {
	uc       *IngestLeadUseCase
	buffer   *mocks.MockLeadRepository
	forms    *mocks.MockFormRepository
	notifier *mocks.MockNotifier
	metrics  *metrics.Metrics
}

func newIngestFixture(verifyKey bool) *ingestFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &ingestFixture{
		buffer: &mocks.MockLeadRepository{},
		forms: &mocks.MockFormRepository{Forms: []domain.Form{
			{FormID: 100, OwnerKey: "Advertiser/alice", Credential: "abcdefghijklmnopqrst"},
		}},
		notifier: &mocks.MockNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	redactor := pii.NewRedactor([]string{"FULL_NAME", "PHONE_NUMBER"}, logger)
	f.uc = NewIngestLeadUseCase(f.buffer, f.forms, identity.NewCodec(), redactor, f.notifier, logger, f.metrics,
		IngestOptions{VerifyKey: verifyKey})
	return f
}

func TestIngestLeadUseCase_Ingest(t *testing.T) {
	ctx := context.Background()
	aliceToken := identity.NewCodec().Encode("alice")

	t.Run("Successful Ingestion", func(t *testing.T) {
		f := newIngestFixture(true)

		if err := f.uc.Ingest(ctx, aliceToken, []byte(sampleLead)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.buffer.BufferedLeads) != 1 {
			t.Fatalf("expected 1 buffered lead, got %d", len(f.buffer.BufferedLeads))
		}

		lead := f.buffer.BufferedLeads[0]
		if lead.ID == "" {
			t.Error("expected lead ID to be generated")
		}
		if lead.OwnerKey != "Advertiser/alice" {
			t.Errorf("OwnerKey = %q", lead.OwnerKey)
		}
		if lead.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
		if lead.FormID != 100 || lead.CampaignID != 123 || lead.AdGroupID != 20000000000 || !lead.IsTest {
			t.Errorf("lead fields not parsed: %+v", lead)
		}
		if len(lead.UserColumnData) != 3 || lead.UserColumnData[0].StringValue != "FirstName LastName" {
			t.Errorf("stored answers must not be redacted: %+v", lead.UserColumnData)
		}
		if lead.GoogleKey != "" {
			t.Error("expected google_key to be cleared before buffering")
		}
		if strings.Contains(string(lead.Payload), "google_key") {
			t.Errorf("expected google_key to be removed from the payload, got %s", lead.Payload)
		}
		var raw map[string]any
		if err := json.Unmarshal(lead.Payload, &raw); err != nil {
			t.Fatalf("payload is not valid JSON: %v", err)
		}
		if raw["lead_id"] == nil {
			t.Error("expected lead_id in the stored payload")
		}

		if got := counterValue(t, f.metrics.LeadsTotal.WithLabelValues("accepted")); got != 1 {
			t.Errorf("accepted counter = %v, want 1", got)
		}
	})

	t.Run("Notification is redacted", func(t *testing.T) {
		f := newIngestFixture(true)

		if err := f.uc.Ingest(ctx, aliceToken, []byte(sampleLead)); err != nil {
			t.Fatal(err)
		}
		if len(f.notifier.Notified) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(f.notifier.Notified))
		}
		n := f.notifier.Notified[0]
		if n.UserColumnData[0].StringValue != pii.RedactedPlaceholder || n.UserColumnData[1].StringValue != pii.RedactedPlaceholder {
			t.Errorf("expected name and phone to be redacted, got %+v", n.UserColumnData)
		}
		if n.UserColumnData[2].StringValue != "1000" {
			t.Errorf("expected budget to be kept, got %q", n.UserColumnData[2].StringValue)
		}
		if n.Payload != nil {
			t.Error("notification must not carry the raw payload")
		}
	})

	t.Run("Notifier failure is not surfaced", func(t *testing.T) {
		f := newIngestFixture(true)
		f.notifier.NotifyErr = errors.New("smtp down")

		if err := f.uc.Ingest(ctx, aliceToken, []byte(sampleLead)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.buffer.BufferedLeads) != 1 {
			t.Error("expected the lead to be buffered")
		}
	})

	drops := []struct {
		name    string
		token   string
		payload string
		status  string
	}{
		{name: "Missing id", token: "", payload: sampleLead, status: "dropped_token"},
		{name: "Undecodable id", token: "!!not-base64!!", payload: sampleLead, status: "dropped_token"},
		{name: "Wrong kind", token: "VXNlci9hbGljZQ", payload: sampleLead, status: "dropped_token"},
		{name: "Malformed body", token: aliceToken, payload: `{"lead_id":`, status: "dropped_payload"},
		{name: "Empty body", token: aliceToken, payload: ``, status: "dropped_payload"},
		{name: "Wrong google_key", token: aliceToken, payload: strings.Replace(sampleLead, `"google_key": "abcdefghijklmnopqrst"`, `"google_key": "zzzzzzzzzzzzzzzzzzzz"`, 1), status: "dropped_credential"},
		{name: "Key of another form", token: aliceToken, payload: strings.Replace(sampleLead, `"form_id": 100`, `"form_id": 101`, 1), status: "dropped_credential"},
		{name: "Key of another owner", token: identity.NewCodec().Encode("bob"), payload: sampleLead, status: "dropped_credential"},
	}
	for _, tt := range drops {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(true)

			if err := f.uc.Ingest(ctx, tt.token, []byte(tt.payload)); err != nil {
				t.Fatalf("expected the delivery to be dropped silently, got %v", err)
			}
			if len(f.buffer.BufferedLeads) != 0 {
				t.Errorf("expected nothing buffered, got %d", len(f.buffer.BufferedLeads))
			}
			if len(f.notifier.Notified) != 0 {
				t.Error("expected no notification")
			}
			if got := counterValue(t, f.metrics.LeadsTotal.WithLabelValues(tt.status)); got != 1 {
				t.Errorf("%s counter = %v, want 1", tt.status, got)
			}
		})
	}

	t.Run("Key check disabled", func(t *testing.T) {
		f := newIngestFixture(false)
		payload := strings.Replace(sampleLead, `"google_key": "abcdefghijklmnopqrst"`, `"google_key": "zzzzzzzzzzzzzzzzzzzz"`, 1)

		if err := f.uc.Ingest(ctx, aliceToken, []byte(payload)); err != nil {
			t.Fatal(err)
		}
		if len(f.buffer.BufferedLeads) != 1 {
			t.Error("expected the lead to be buffered without a key check")
		}
	})

	t.Run("Buffer error", func(t *testing.T) {
		f := newIngestFixture(true)
		f.buffer.BufferErr = errors.New("buffer is full")

		err := f.uc.Ingest(ctx, aliceToken, []byte(sampleLead))
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(f.notifier.Notified) != 0 {
			t.Error("expected no notification for an unbuffered lead")
		}
	})

	t.Run("Credential lookup error", func(t *testing.T) {
		f := newIngestFixture(true)
		f.forms.CheckErr = errors.New("connection refused")

		if err := f.uc.Ingest(ctx, aliceToken, []byte(sampleLead)); err == nil {
			t.Fatal("expected an error so the platform retries")
		}
		if len(f.buffer.BufferedLeads) != 0 {
			t.Error("expected nothing buffered")
		}
	})

	t.Run("Client supplied server fields are ignored", func(t *testing.T) {
		f := newIngestFixture(false)
		payload := `{"id":"attacker","owner_key":"Advertiser/bob","lead_id":"l1","form_id":100}`

		if err := f.uc.Ingest(ctx, aliceToken, []byte(payload)); err != nil {
			t.Fatal(err)
		}
		lead := f.buffer.BufferedLeads[0]
		if lead.ID == "attacker" || lead.OwnerKey != "Advertiser/alice" {
			t.Errorf("server fields were taken from the payload: %+v", lead)
		}
		if strings.Contains(string(lead.Payload), "attacker") {
			t.Errorf("payload still carries server fields: %s", lead.Payload)
		}
	})
}
