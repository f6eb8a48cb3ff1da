// Package main is the entrypoint for the API Hub gateway server.
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

	"github.com/kiranshivaraju/apihub/internal/api"
	"github.com/kiranshivaraju/apihub/internal/api/handler"
	mw "github.com/kiranshivaraju/apihub/internal/api/middleware"
	"github.com/kiranshivaraju/apihub/internal/api/response"
	"github.com/kiranshivaraju/apihub/internal/cache"
	"github.com/kiranshivaraju/apihub/internal/config"
	"github.com/kiranshivaraju/apihub/internal/keys"
	"github.com/kiranshivaraju/apihub/internal/proxy"
	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/internal/upstream"
	"github.com/kiranshivaraju/apihub/internal/usage"
	"github.com/kiranshivaraju/apihub/internal/webhook"
)

const (
	shutdownTimeout = 30 * time.Second

	// writeTimeoutSlack is added on top of the upstream timeout so a slow
	// provider produces our 504 instead of a dropped connection.
	writeTimeoutSlack = 15 * time.Second
)

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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"upstream", cfg.Upstream.BaseURL,
		"upstream_configured", cfg.Upstream.APIKey != "",
		"admin_protected", cfg.Auth.AdminToken != "",
	)
	if cfg.Upstream.APIKey == "" {
		slog.Warn("GPTUNNEL_API_KEY is not set; proxied requests will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool)
	client := upstream.NewHTTPClient(cfg.Upstream)

	stats := usage.NewStatsService(pgStore, redisCache, cfg.Stats.CacheTTL)
	pipeline := proxy.NewPipeline(pgStore, pgStore, client, proxy.Options{
		DefaultModel:  cfg.Upstream.DefaultModel,
		LedgerTimeout: cfg.Ledger.WriteTimeout,
		Stats:         stats,
	})
	issuer := keys.NewIssuer(pgStore, cfg.Auth.KeyHashCost)
	webhooks := webhook.NewService(pgStore, cfg.Webhook.TestTimeout)

	router := api.NewRouter(api.Dependencies{
		Admin: mw.NewAdminAuth(cfg.Auth.AdminToken),

		HealthHandler:      healthHandler(pgStore, redisCache),
		CompletionsHandler: handler.NewCompletionsHandler(pipeline, cfg.Upstream.Timeout),
		PlaygroundHandler:  handler.NewPlaygroundHandler(client, cfg.Upstream.PlaygroundModel, cfg.Upstream.Timeout),

		CreateKeyHandler: handler.NewCreateKeyHandler(issuer),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),

		HistoryHandler: handler.NewHistoryHandler(pgStore),
		StatsHandler:   handler.NewStatsHandler(stats),
		LogsHandler:    handler.NewLogsHandler(pgStore),

		ListWebhooksHandler:  handler.NewListWebhooksHandler(pgStore),
		CreateWebhookHandler: handler.NewCreateWebhookHandler(webhooks),
		DeleteWebhookHandler: handler.NewDeleteWebhookHandler(pgStore),
		TestWebhookHandler:   handler.NewTestWebhookHandler(webhooks),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Upstream.Timeout + writeTimeoutSlack,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// In-flight requests finish their ledger writes before the pool closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is satisfied by both the store and the cache.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("database health check failed", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("cache health check failed", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Status(w, http.StatusServiceUnavailable, map[string]any{
				"error":    "degraded",
				"services": checks,
			})
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
