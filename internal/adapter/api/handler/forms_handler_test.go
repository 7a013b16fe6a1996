package handler

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/leadhook/internal/adapter/api/middleware"
	"github.com/V4T54L/leadhook/internal/domain"
	"github.com/V4T54L/leadhook/internal/usecase"
)

// MockFormClaimer records the calls made by FormsHandler.
type MockFormClaimer struct {
	ListFunc    func(ctx context.Context, p domain.Principal, baseURL string) (*usecase.FormList, error)
	ClaimFunc   func(ctx context.Context, p domain.Principal, baseURL string, formID int64, formName string) (*usecase.ClaimResult, error)
	ReleaseFunc func(ctx context.Context, p domain.Principal, formID int64) error

	gotBaseURL  string
	gotFormID   int64
	gotFormName string
	calls       int
}

func (m *MockFormClaimer) List(ctx context.Context, p domain.Principal, baseURL string) (*usecase.FormList, error) {
	m.calls++
	m.gotBaseURL = baseURL
	if m.ListFunc != nil {
		return m.ListFunc(ctx, p, baseURL)
	}
	return &usecase.FormList{WebhookURL: baseURL + "/api/webhook?id=x", Forms: []domain.Form{}}, nil
}

func (m *MockFormClaimer) Claim(ctx context.Context, p domain.Principal, baseURL string, formID int64, formName string) (*usecase.ClaimResult, error) {
	m.calls++
	m.gotBaseURL, m.gotFormID, m.gotFormName = baseURL, formID, formName
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, p, baseURL, formID, formName)
	}
	return &usecase.ClaimResult{WebhookURL: baseURL + "/api/webhook?id=x&y", GoogleKey: "abcdefghijklmnopqrst", FormID: formID}, nil
}

func (m *MockFormClaimer) Release(ctx context.Context, p domain.Principal, formID int64) error {
	m.calls++
	m.gotFormID = formID
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, p, formID)
	}
	return nil
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), domain.Principal{ID: "alice"}))
}

func TestFormsHandler_Claim(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name         string
		contentType  string
		body         string
		anonymous    bool
		claimErr     error
		wantStatus   int
		wantFormID   int64
		wantFormName string
	}{
		{
			name:         "Urlencoded",
			contentType:  "application/x-www-form-urlencoded",
			body:         "form_id=100&form_name=Contact",
			wantStatus:   http.StatusCreated,
			wantFormID:   100,
			wantFormName: "Contact",
		},
		{
			name:         "JSON string id",
			contentType:  "application/json; charset=utf-8",
			body:         `{"form_id":"100","form_name":"Contact"}`,
			wantStatus:   http.StatusCreated,
			wantFormID:   100,
			wantFormName: "Contact",
		},
		{
			name:         "JSON number id",
			contentType:  "application/json",
			body:         `{"form_id":9007199254740993,"form_name":"Big"}`,
			wantStatus:   http.StatusCreated,
			wantFormID:   9007199254740993,
			wantFormName: "Big",
		},
		{name: "Unauthenticated", contentType: "application/json", body: `{"form_id":"1"}`, anonymous: true, wantStatus: http.StatusUnauthorized},
		{name: "Unsupported content type", contentType: "text/plain", body: "form_id=1", wantStatus: http.StatusUnsupportedMediaType},
		{name: "Missing content type", contentType: "", body: "form_id=1", wantStatus: http.StatusUnsupportedMediaType},
		{name: "Non numeric id", contentType: "application/x-www-form-urlencoded", body: "form_id=abc", wantStatus: http.StatusBadRequest},
		{name: "Missing id", contentType: "application/json", body: `{"form_name":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "Fractional id", contentType: "application/json", body: `{"form_id":1.5}`, wantStatus: http.StatusBadRequest},
		{name: "Bad JSON", contentType: "application/json", body: `{"form_id":`, wantStatus: http.StatusBadRequest},
		{name: "Already claimed", contentType: "application/json", body: `{"form_id":"1"}`, claimErr: domain.ErrAlreadyClaimed, wantStatus: http.StatusForbidden},
		{name: "Store failure", contentType: "application/json", body: `{"form_id":"1"}`, claimErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockFormClaimer{}
			if tt.claimErr != nil {
				mock.ClaimFunc = func(context.Context, domain.Principal, string, int64, string) (*usecase.ClaimResult, error) {
					return nil, tt.claimErr
				}
			}
			h := NewFormsHandler(mock, logger, "")

			req := httptest.NewRequest(http.MethodPost, "/api/forms", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if !tt.anonymous {
				req = authed(req)
			}
			rr := httptest.NewRecorder()

			h.Claim(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				if tt.claimErr == nil && mock.calls != 0 {
					t.Error("workflow must not be called for a rejected request")
				}
				return
			}

			if mock.gotFormID != tt.wantFormID || mock.gotFormName != tt.wantFormName {
				t.Errorf("claimed (%d, %q), want (%d, %q)", mock.gotFormID, mock.gotFormName, tt.wantFormID, tt.wantFormName)
			}
			var res map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			for _, key := range []string{"webhook_url", "google_key", "form_id"} {
				if _, ok := res[key]; !ok {
					t.Errorf("response is missing %q: %s", key, rr.Body.String())
				}
			}
			if strings.Contains(rr.Body.String(), `\u0026`) || !strings.Contains(rr.Body.String(), "id=x&y") {
				t.Error("webhook URL must not be HTML escaped")
			}
		})
	}
}

func TestFormsHandler_List(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	claimedAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock := &MockFormClaimer{
		ListFunc: func(ctx context.Context, p domain.Principal, baseURL string) (*usecase.FormList, error) {
			if p.ID != "alice" {
				t.Errorf("principal = %q", p.ID)
			}
			return &usecase.FormList{
				WebhookURL: baseURL + "/api/webhook?id=QWR2ZXJ0aXNlci9hbGljZQ",
				Forms: []domain.Form{
					{FormID: 100, FormName: "Contact", OwnerKey: "Advertiser/alice", Credential: "secretsecretsecret12", Verified: true, ClaimedAt: claimedAt},
				},
			}, nil
		},
	}
	h := NewFormsHandler(mock, logger, "")

	req := authed(httptest.NewRequest(http.MethodGet, "/api/forms", nil))
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "secretsecretsecret12") || strings.Contains(body, "google_key") {
		t.Errorf("List must not expose credentials: %s", body)
	}
	if strings.Contains(body, "Advertiser/alice") {
		t.Errorf("List must not expose the owner key: %s", body)
	}

	var res struct {
		WebhookURL string `json:"webhook_url"`
		Forms      []struct {
			FormID    int64     `json:"form_id"`
			FormName  string    `json:"form_name"`
			Verified  bool      `json:"verified"`
			ClaimedAt time.Time `json:"claimed_at"`
		} `json:"forms"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.WebhookURL != "http://example.com/api/webhook?id=QWR2ZXJ0aXNlci9hbGljZQ" {
		t.Errorf("webhook_url = %q", res.WebhookURL)
	}
	if len(res.Forms) != 1 || res.Forms[0].FormID != 100 || !res.Forms[0].Verified || !res.Forms[0].ClaimedAt.Equal(claimedAt) {
		t.Errorf("unexpected forms %+v", res.Forms)
	}

	anon := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	mock.ListFunc = func(ctx context.Context, p domain.Principal, baseURL string) (*usecase.FormList, error) {
		return nil, domain.ErrUnauthenticated
	}
	rr = httptest.NewRecorder()
	h.List(rr, anon)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rr.Code)
	}
}

func TestFormsHandler_Release(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		target     string
		header     string
		anonymous  bool
		wantStatus int
		wantFormID int64
	}{
		{name: "Query parameter", target: "/api/forms?form_id=100", wantStatus: http.StatusNoContent, wantFormID: 100},
		{name: "Header", target: "/api/forms", header: "7", wantStatus: http.StatusNoContent, wantFormID: 7},
		{name: "Missing id", target: "/api/forms", wantStatus: http.StatusBadRequest},
		{name: "Non numeric id", target: "/api/forms?form_id=x", wantStatus: http.StatusBadRequest},
		{name: "Unauthenticated", target: "/api/forms?form_id=1", anonymous: true, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockFormClaimer{}
			h := NewFormsHandler(mock, logger, "")

			req := httptest.NewRequest(http.MethodDelete, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("form_id", tt.header)
			}
			if !tt.anonymous {
				req = authed(req)
			}
			rr := httptest.NewRecorder()
			h.Release(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && mock.gotFormID != tt.wantFormID {
				t.Errorf("released %d, want %d", mock.gotFormID, tt.wantFormID)
			}
		})
	}
}

func TestFormsHandler_BaseURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		configured string
		host       string
		forwarded  string
		tls        bool
		want       string
	}{
		{name: "Plain", host: "leads.local:8080", want: "http://leads.local:8080"},
		{name: "TLS", host: "leads.example.com", tls: true, want: "https://leads.example.com"},
		{name: "Forwarded proto", host: "leads.example.com", forwarded: "https, http", want: "https://leads.example.com"},
		{name: "Bogus forwarded proto", host: "leads.example.com", forwarded: "javascript", want: "http://leads.example.com"},
		{name: "Configured", configured: "https://hooks.example.com/", host: "internal:8080", want: "https://hooks.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockFormClaimer{}
			h := NewFormsHandler(mock, logger, tt.configured)

			req := authed(httptest.NewRequest(http.MethodGet, "/api/forms", nil))
			req.Host = tt.host
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			h.List(httptest.NewRecorder(), req)

			if mock.gotBaseURL != tt.want {
				t.Errorf("base URL = %q, want %q", mock.gotBaseURL, tt.want)
			}
		})
	}
}

func TestFormsHandler_BodyTooLarge(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := &MockFormClaimer{}
	h := NewFormsHandler(mock, logger, "")

	body := `{"form_id":"1","form_name":"` + strings.Repeat("x", maxFormBodySize) + `"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/forms", bytes.NewBufferString(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Claim(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
	if mock.calls != 0 {
		t.Error("workflow must not be called")
	}
}
