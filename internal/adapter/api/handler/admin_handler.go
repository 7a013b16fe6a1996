package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/V4T54L/leadhook/internal/domain"
)

// FormVerifier performs the out-of-band verification of a claim.
type FormVerifier interface {
	Verify(ctx context.Context, ownerToken string, formID int64) error
}

// StreamAdmin inspects the lead stream.
type StreamAdmin interface {
	GetGroupInfo(ctx context.Context) ([]domain.ConsumerGroupInfo, error)
	GetPendingSummary(ctx context.Context, group string) (*domain.PendingLeadSummary, error)
	TrimStream(ctx context.Context, maxLen int64) (int64, error)
}

// AdminHandler handles operator requests on the admin listener.
type AdminHandler struct {
	forms   FormVerifier
	streams StreamAdmin
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(forms FormVerifier, streams StreamAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{forms: forms, streams: streams, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VerifyForm marks a claim verified.
// POST /admin/forms/verify {"owner_token": "...", "form_id": 100}
func (h *AdminHandler) VerifyForm(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OwnerToken string          `json:"owner_token"`
		FormID     json.RawMessage `json:"form_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBodySize)).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	formID, err := parseJSONFormID(payload.FormID)
	if err != nil {
		http.Error(w, "form_id must be an integer", http.StatusBadRequest)
		return
	}

	err = h.forms.Verify(r.Context(), payload.OwnerToken, formID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidToken):
		http.Error(w, "invalid owner_token", http.StatusBadRequest)
	case errors.Is(err, domain.ErrFormNotFound):
		http.Error(w, "no unverified claim for this owner and form", http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyClaimed):
		http.Error(w, "form already verified for another owner", http.StatusConflict)
	default:
		h.logger.Error("failed to verify form", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// GetGroupInfo handles GET /admin/leads/groups.
func (h *AdminHandler) GetGroupInfo(w http.ResponseWriter, r *http.Request) {
	groups, err := h.streams.GetGroupInfo(r.Context())
	if err != nil {
		h.logger.Error("failed to get group info", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, groups)
}

// GetPendingSummary handles GET /admin/leads/groups/{group}/pending.
func (h *AdminHandler) GetPendingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.streams.GetPendingSummary(r.Context(), r.PathValue("group"))
	if err != nil {
		h.logger.Error("failed to get pending summary", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, summary)
}

// TrimStream handles POST /admin/leads/trim. maxlen may also be passed as a
// query parameter.
func (h *AdminHandler) TrimStream(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MaxLen int64 `json:"maxlen"`
	}
	if q := r.URL.Query().Get("maxlen"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			http.Error(w, "invalid maxlen parameter", http.StatusBadRequest)
			return
		}
		payload.MaxLen = n
	} else if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.MaxLen <= 0 {
		http.Error(w, "maxlen must be a positive integer", http.StatusBadRequest)
		return
	}

	trimmed, err := h.streams.TrimStream(r.Context(), payload.MaxLen)
	if err != nil {
		h.logger.Error("failed to trim stream", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]int64{"trimmed": trimmed})
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
