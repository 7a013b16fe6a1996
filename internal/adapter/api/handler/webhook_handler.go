package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/usecase"
)

var (
	errBodyTooLarge        = errors.New("webhook body too large")
	errUnsupportedEncoding = errors.New("unsupported content encoding")
)

// LeadIngester is the webhook ingestion workflow.
type LeadIngester interface {
	Ingest(ctx context.Context, ownerToken string, payload []byte) error
}

// WebhookHandler receives lead deliveries from the ad platform.
type WebhookHandler struct {
	uc          LeadIngester
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxBodySize int64
}

// NewWebhookHandler creates a new WebhookHandler. m may be nil.
func NewWebhookHandler(uc LeadIngester, logger *slog.Logger, m *metrics.Metrics, maxBodySize int64) *WebhookHandler {
	return &WebhookHandler{
		uc:          uc,
		logger:      logger.With("component", "webhook_handler"),
		metrics:     m,
		maxBodySize: maxBodySize,
	}
}

// ServeHTTP handles POST /api/webhook?id=<token>. Anything that is not a
// transient failure is answered with 200 so the platform does not retry it.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(usecase.WebhookTokenParam)
	if token == "" {
		// No owner: acknowledge without reading the body.
		if h.metrics != nil {
			h.metrics.LeadsTotal.WithLabelValues("dropped_token").Inc()
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := h.readBody(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr), errors.Is(err, errBodyTooLarge):
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, errUnsupportedEncoding):
			http.Error(w, "Unsupported content encoding", http.StatusUnsupportedMediaType)
		default:
			h.logger.Warn("failed to read webhook body", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
		}
		return
	}
	if h.metrics != nil {
		h.metrics.WebhookBytesTotal.Add(float64(len(body)))
	}

	if err := h.uc.Ingest(r.Context(), token, body); err != nil {
		h.logger.Error("failed to ingest lead", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// readBody returns the decoded request body. The decoded size is held to the
// same limit as the wire size.
func (h *WebhookHandler) readBody(r *http.Request) ([]byte, error) {
	var src io.Reader
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return io.ReadAll(r.Body)
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		defer zr.Close()
		src = zr
	case "zstd":
		zr, err := zstd.NewReader(r.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("open zstd body: %w", err)
		}
		defer zr.Close()
		src = zr
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, enc)
	}

	body, err := io.ReadAll(io.LimitReader(src, h.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}
