/**
 * @description
 * This is the main entry point for the virtual-account deposit service. It
 * wires the confirmation pipeline behind an HTTP server that receives
 * provider webhooks, starts the asynchronous work-queue workers, and runs
 * the reconciliation scheduler.
 *
 * Key features:
 * - Loads application configuration from environment variables and fails
 *   fast on invalid provider credentials.
 * - Connects PostgreSQL, Redis, and RabbitMQ.
 * - Implements graceful shutdown: the HTTP server drains first, then the
 *   work queue runs in-flight webhooks to a terminal state.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: HTTP routing (via internal/api).
 * - github.com/jackc/pgx/v5: PostgreSQL connection pool.
 * - github.com/joho/godotenv: For loading .env files during local development.
 */
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/api"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/app"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/config"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/providers"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/internal/store"
	"github.com/ken-de-nigerian/payzephyr-virtual-account-manager/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Database connection pool.
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create database pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connected")
	repo := store.NewPostgresRepository(pool)

	// Redis client for the distributed rate limiter. Optional: without a
	// configured URL the webhook endpoint runs unlimited.
	var limiter *app.RedisRateLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		log.Println("Redis rate limiter enabled")
	} else {
		log.Println("REDIS_URL not set; webhook rate limiting disabled")
	}

	// RabbitMQ producer for deposit-confirmed events.
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer producer.Close()
	log.Println("RabbitMQ producer connected")

	// Provider driver registry. Unknown or misconfigured providers fail fast.
	registry, err := providers.NewRegistry(cfg.Providers())
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}
	log.Printf("Enabled providers: %v", registry.Names())

	// Asynchronous work queue for webhook processing.
	dispatcher := app.NewDispatcher(
		cfg.WebhookWorkerCount,
		cfg.WebhookQueueSize,
		cfg.WebhookRetryAttempts,
		time.Duration(cfg.WebhookRetryBackoffSeconds)*time.Second,
		logger,
	)

	service := app.NewService(repo, registry, dispatcher, producer, cfg.DepositEventExchange, cfg.DepositEventRoutingKey, logger)

	// Reconciliation engine and scheduler.
	reconciler := app.NewReconciler(repo, registry, time.Duration(cfg.StalePendingThresholdHours)*time.Hour, logger)
	health := app.NewHealthCache(registry)
	scheduler := app.NewScheduler(reconciler, health, cfg.ReconcileSchedule, cfg.HealthRefreshSchedule, logger)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// HTTP server.
	webhookHandler := api.NewWebhookHandler(service)
	healthHandler := api.NewHealthHandler(health)
	var rateLimiter api.RateLimiter
	if limiter != nil {
		rateLimiter = limiter
	}
	router := api.NewRouter(webhookHandler, healthHandler, rateLimiter, cfg.WebhookRateLimitPerMinute)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	// Graceful shutdown logic.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	// Run in-flight webhook work to a terminal state before closing
	// downstream connections.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("Work queue shutdown incomplete: %v", err)
	}
	<-scheduler.Stop().Done()

	log.Println("Server gracefully stopped")
}
