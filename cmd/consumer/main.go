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

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/leadhook/internal/adapter/repository/redis"
	"github.com/V4T54L/leadhook/internal/pkg/config"
	"github.com/V4T54L/leadhook/internal/pkg/logger"
	"github.com/V4T54L/leadhook/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting lead consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		log.Error("failed to parse redis address", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := postgres.Bootstrap(ctx, db); err != nil {
		log.Error("failed to bootstrap postgres schema", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.ConsumerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: cfg.ConsumerMetricsAddr, Handler: mux, ReadTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsServer.Close()
	}

	// Each instance reads as its own consumer within the shared group.
	consumerName, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname for consumer name, using default", "error", err)
		consumerName = "consumer-default"
	}

	leadBuffer := redisrepo.NewLeadRepository(redisClient, log, usecase.LeadGroup, cfg.RedisDLQStream, nil, m)
	leadSink := postgres.NewLeadRepository(db, log)

	processLeads := usecase.NewProcessLeadsUseCase(leadBuffer, leadSink, log, usecase.LeadGroup, consumerName,
		cfg.SinkBatchSize, cfg.SinkRetryCount, cfg.SinkRetryBackoff).WithMetrics(m)

	ticker := time.NewTicker(cfg.ConsumerInterval)
	defer ticker.Stop()

	log.Info("consumer started, processing leads", "group", usecase.LeadGroup, "consumer", consumerName)

Loop:
	for {
		select {
		case <-ticker.C:
			// Keep draining while batches come back full.
			for {
				n, err := processLeads.ProcessBatch(ctx)
				if err != nil {
					log.Error("error processing batch", "error", err)
					break
				}
				if n < cfg.SinkBatchSize || ctx.Err() != nil {
					break
				}
			}
		case <-ctx.Done():
			break Loop
		}
	}

	log.Info("consumer shut down gracefully")
}
