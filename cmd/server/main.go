// Package main is the entrypoint for the VidQueue API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/vidqueue/internal/analyzer"
	"github.com/clipforge/vidqueue/internal/api"
	"github.com/clipforge/vidqueue/internal/api/handler"
	mw "github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/config"
	"github.com/clipforge/vidqueue/internal/events"
	"github.com/clipforge/vidqueue/internal/metrics"
	"github.com/clipforge/vidqueue/internal/queue"
	"github.com/clipforge/vidqueue/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"max_concurrent", cfg.Queue.MaxConcurrent,
		"max_retries", cfg.Queue.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the queue core
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New()
	analyzerClient := analyzer.NewHTTPClient(cfg.Analyzer.FunctionURL, cfg.Analyzer.Timeout)

	dispatcher := queue.NewDispatcher(pgStore, analyzerClient, redisCache, m, queue.Config{
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		DispatchDelay:   cfg.Queue.DispatchDelay,
		StuckJobTimeout: cfg.Queue.StuckJobTimeout,
	})
	updater := queue.NewStatusUpdater(pgStore, redisCache, m)

	// 6. Optional AMQP completion consumer
	if cfg.AMQP.URL != "" {
		consumer := events.NewConsumer(cfg.AMQP.URL, cfg.AMQP.QueueName, updater)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("amqp consumer stopped", "error", err)
			}
		}()
		slog.Info("amqp completion consumer enabled", "queue", cfg.AMQP.QueueName)
	}

	// 7. Build router with dependencies
	deps := api.Dependencies{
		JWTAuth:    mw.NewJWTAuth(cfg.Auth.JWTSecret),
		RateLimit:  mw.NewRateLimit(redisCache, 60),
		CronSecret: cfg.Auth.CronSecret,

		HealthHandler:       healthHandler(pgStore, redisCache),
		MetricsHandler:      m.Handler(),
		ProcessQueueHandler: handler.NewProcessQueueHandler(dispatcher),
		CompletionHandler:   handler.NewCompletionHandler(updater),
		EnqueueHandler:      handler.NewEnqueueHandler(pgStore, redisCache, cfg.Queue.MaxRetries),
		StatusHandler:       handler.NewStatusHandler(pgStore, redisCache),
		RetryFailedHandler:  handler.NewRetryFailedHandler(pgStore, redisCache, cfg.Queue.MaxRetries),
		QueueStatsHandler:   handler.NewQueueStatsHandler(pgStore, redisCache),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
