package api

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/V4T54L/leadhook/internal/adapter/api/handler"
	"github.com/V4T54L/leadhook/internal/adapter/api/middleware"
	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/pkg/config"
	"github.com/V4T54L/leadhook/internal/usecase"
)

// NewRouter creates the public HTTP router: the advertiser forms API and the
// lead webhook.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	verifier middleware.PrincipalVerifier,
	forms handler.FormClaimer,
	ingest handler.LeadIngester,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	formsHandler := handler.NewFormsHandler(forms, logger, cfg.PublicBaseURL)
	webhookHandler := handler.NewWebhookHandler(ingest, logger, m, cfg.MaxWebhookBodySize)

	requireAuth := middleware.RequirePrincipal(verifier, logger)
	limit := middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.WebhookRateLimit), cfg.WebhookRateBurst), logger)

	mux.Handle("GET /api/forms", requireAuth(http.HandlerFunc(formsHandler.List)))
	mux.Handle("POST /api/forms", requireAuth(http.HandlerFunc(formsHandler.Claim)))
	mux.Handle("DELETE /api/forms", requireAuth(http.HandlerFunc(formsHandler.Release)))

	mux.Handle("POST "+usecase.WebhookPath, limit(webhookHandler))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(mux)
}
