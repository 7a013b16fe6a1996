package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/leadhook/internal/adapter/api/handler"
	"github.com/V4T54L/leadhook/internal/adapter/api/middleware"
)

// NewAdminRouter creates the router for the operator listener. It must not
// be exposed publicly: form verification has no authentication of its own.
func NewAdminRouter(forms handler.FormVerifier, streams handler.StreamAdmin, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	adminHandler := handler.NewAdminHandler(forms, streams, logger)

	mux.HandleFunc("GET /health", adminHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /admin/forms/verify", adminHandler.VerifyForm)

	mux.HandleFunc("GET /admin/leads/groups", adminHandler.GetGroupInfo)
	mux.HandleFunc("GET /admin/leads/groups/{group}/pending", adminHandler.GetPendingSummary)
	mux.HandleFunc("POST /admin/leads/trim", adminHandler.TrimStream)

	return middleware.Logging(logger)(mux)
}
