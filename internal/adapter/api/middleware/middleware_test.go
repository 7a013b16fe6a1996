package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/V4T54L/leadhook/internal/domain"
)

type stubVerifier map[string]domain.Principal

func (s stubVerifier) Verify(token string) (domain.Principal, error) {
	p, ok := s[token]
	if !ok {
		return domain.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestRequirePrincipal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := stubVerifier{
		"good":  {ID: "alice", Email: "alice@example.com"},
		"blank": {ID: ""},
	}

	var seen domain.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequirePrincipal(verifier, logger)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantID     string
	}{
		{name: "Valid token", header: "Bearer good", wantStatus: http.StatusNoContent, wantID: "alice"},
		{name: "Lowercase scheme", header: "bearer good", wantStatus: http.StatusNoContent, wantID: "alice"},
		{name: "Missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "Wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "Empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized},
		{name: "Unknown token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "Principal without id", header: "Bearer blank", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = domain.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if seen.ID != tt.wantID {
				t.Errorf("principal = %q, want %q", seen.ID, tt.wantID)
			}
			if tt.wantStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected a WWW-Authenticate challenge")
			}
		})
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/webhook?id=secret-token", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"status":503`, `"bytes":4`, `"path":"/api/webhook"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s does not contain %s", out, want)
		}
	}
	if strings.Contains(out, "secret-token") {
		t.Error("query string must not be logged")
	}
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(rate.NewLimiter(rate.Limit(0.001), 2), logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var codes []int
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/webhook", nil))
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}
