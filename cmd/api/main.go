package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/leadhook/internal/adapter/api"
	"github.com/V4T54L/leadhook/internal/adapter/auth"
	"github.com/V4T54L/leadhook/internal/adapter/credential"
	"github.com/V4T54L/leadhook/internal/adapter/identity"
	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/adapter/notifier"
	"github.com/V4T54L/leadhook/internal/adapter/pii"
	"github.com/V4T54L/leadhook/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/leadhook/internal/adapter/repository/redis"
	"github.com/V4T54L/leadhook/internal/adapter/repository/wal"
	"github.com/V4T54L/leadhook/internal/domain"
	"github.com/V4T54L/leadhook/internal/pkg/config"
	"github.com/V4T54L/leadhook/internal/pkg/logger"
	"github.com/V4T54L/leadhook/internal/usecase"

	_ "github.com/lib/pq"
)

const healthCheckInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database and Redis Connections ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bootstrapCtx, cancelBootstrap := context.WithTimeout(ctx, 30*time.Second)
	err = postgres.Bootstrap(bootstrapCtx, db)
	cancelBootstrap()
	if err != nil {
		logger.Error("failed to bootstrap postgres schema", "error", err)
		os.Exit(1)
	}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		logger.Error("failed to parse redis address", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	redisUp := redisClient.Ping(ctx).Err() == nil
	if !redisUp {
		logger.Warn("could not connect to redis, leads will be written to the WAL")
	}

	// --- Repositories ---
	walRepo, err := wal.NewWALRepository(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, logger)
	if err != nil {
		logger.Error("failed to initialize WAL repository", "error", err)
		os.Exit(1)
	}
	defer walRepo.Close()

	formRepo := postgres.NewFormRepository(db, logger)
	leadBuffer := redisrepo.NewLeadRepository(redisClient, logger, usecase.LeadGroup, cfg.RedisDLQStream, walRepo, m)

	// Leads left in the WAL by a previous run.
	if redisUp && walRepo.Size() > 0 {
		if err := leadBuffer.ReplayWAL(ctx); err != nil {
			logger.Error("failed to replay WAL on startup", "error", err)
		}
	}
	go leadBuffer.StartHealthCheck(ctx, healthCheckInterval)

	// --- Use Cases ---
	codec := identity.NewCodec()
	formClaims := usecase.NewFormClaimUseCase(formRepo, codec, credential.NewGenerator(nil), logger, m, cfg.CredentialLength, cfg.StoreTimeout)

	if !cfg.WebhookVerifyKey {
		logger.Warn("WEBHOOK_VERIFY_KEY is disabled: any caller holding a webhook URL can submit leads")
	}
	var leadNotifier domain.LeadNotifier = notifier.NewLogNotifier(logger)
	if len(cfg.NotifyKafkaBrokers) > 0 {
		kafkaNotifier := notifier.NewKafkaNotifier(notifier.NewKafkaWriter(cfg.NotifyKafkaBrokers, cfg.NotifyKafkaTopic, logger), logger)
		defer kafkaNotifier.Close()
		leadNotifier = kafkaNotifier
		logger.Info("publishing lead notifications to kafka", "topic", cfg.NotifyKafkaTopic)
	}

	redactor := pii.NewRedactor(cfg.PIIRedactionFields, logger)
	ingestLeads := usecase.NewIngestLeadUseCase(leadBuffer, formRepo, codec, redactor, leadNotifier, logger, m,
		usecase.IngestOptions{VerifyKey: cfg.WebhookVerifyKey, StoreTimeout: cfg.StoreTimeout})

	adminStreams := usecase.NewAdminStreamUseCase(redisrepo.NewAdminRepository(redisClient, logger))

	// --- Servers ---
	verifier := auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	apiServer := &http.Server{
		Addr:         cfg.APIServerAddr,
		Handler:      api.NewRouter(cfg, logger, verifier, formClaims, ingestLeads, m),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	adminServer := &http.Server{
		Addr:         cfg.AdminServerAddr,
		Handler:      api.NewAdminRouter(formClaims, adminStreams, reg, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("starting api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
