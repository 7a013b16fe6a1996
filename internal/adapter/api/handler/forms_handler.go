package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/V4T54L/leadhook/internal/adapter/api/middleware"
	"github.com/V4T54L/leadhook/internal/domain"
	"github.com/V4T54L/leadhook/internal/usecase"
)

const maxFormBodySize = 64 << 10

// FormClaimer is the form-claim workflow as used by FormsHandler.
type FormClaimer interface {
	List(ctx context.Context, p domain.Principal, baseURL string) (*usecase.FormList, error)
	Claim(ctx context.Context, p domain.Principal, baseURL string, formID int64, formName string) (*usecase.ClaimResult, error)
	Release(ctx context.Context, p domain.Principal, formID int64) error
}

// FormsHandler serves /api/forms.
type FormsHandler struct {
	uc            FormClaimer
	logger        *slog.Logger
	publicBaseURL string
}

// NewFormsHandler creates a new FormsHandler. An empty publicBaseURL derives
// the webhook host from each request.
func NewFormsHandler(uc FormClaimer, logger *slog.Logger, publicBaseURL string) *FormsHandler {
	return &FormsHandler{
		uc:            uc,
		logger:        logger.With("component", "forms_handler"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// List handles GET /api/forms.
func (h *FormsHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())

	list, err := h.uc.List(r.Context(), p, h.baseURL(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, list)
}

// Claim handles POST /api/forms.
func (h *FormsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if !p.Authenticated() {
		h.writeError(w, domain.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	formID, formName, err := parseClaimRequest(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, err)
		return
	}

	res, err := h.uc.Claim(r.Context(), p, h.baseURL(r), formID, formName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, res)
}

// Release handles DELETE /api/forms?form_id=.
func (h *FormsHandler) Release(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if !p.Authenticated() {
		h.writeError(w, domain.ErrUnauthenticated)
		return
	}

	raw := r.URL.Query().Get("form_id")
	if raw == "" {
		raw = r.Header.Get("form_id")
	}
	formID, err := parseFormID(raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.uc.Release(r.Context(), p, formID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// baseURL returns scheme://host for webhook URLs.
func (h *FormsHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		proto := strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
		if proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

func parseClaimRequest(r *http.Request) (int64, string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return 0, "", domain.ErrUnsupportedContentType
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return 0, "", err
			}
			return 0, "", fmt.Errorf("%w: %v", domain.ErrInvalidFormID, err)
		}
		formID, err := parseFormID(r.PostForm.Get("form_id"))
		if err != nil {
			return 0, "", err
		}
		return formID, r.PostForm.Get("form_name"), nil

	case "application/json":
		var body struct {
			FormID   json.RawMessage `json:"form_id"`
			FormName string          `json:"form_name"`
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return 0, "", err
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return 0, "", fmt.Errorf("%w: %v", domain.ErrInvalidFormID, err)
		}
		formID, err := parseJSONFormID(body.FormID)
		if err != nil {
			return 0, "", err
		}
		return formID, body.FormName, nil

	default:
		return 0, "", domain.ErrUnsupportedContentType
	}
}

// parseJSONFormID accepts the form id as a JSON string or an integer.
func parseJSONFormID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrInvalidFormID, err)
		}
		return parseFormID(s)
	}
	return parseFormID(string(raw))
}

func parseFormID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: form_id is required", domain.ErrInvalidFormID)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidFormID, s)
	}
	return id, nil
}

func (h *FormsHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		http.Error(w, "Unauthorized: log in to continue", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrUnsupportedContentType):
		http.Error(w, "Content type not supported. Try application/x-www-form-urlencoded or application/json.", http.StatusUnsupportedMediaType)
	case errors.Is(err, domain.ErrInvalidFormID):
		http.Error(w, "Bad request: form_id must be an integer", http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyClaimed):
		http.Error(w, "Form ID already claimed by another user.", http.StatusForbidden)
	default:
		h.logger.Error("forms request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *FormsHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}
