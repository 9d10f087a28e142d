// Package main is the entrypoint for the Labubify relay server.
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

	"github.com/kiranshivaraju/labubify/internal/api"
	"github.com/kiranshivaraju/labubify/internal/api/handler"
	mw "github.com/kiranshivaraju/labubify/internal/api/middleware"
	"github.com/kiranshivaraju/labubify/internal/api/response"
	"github.com/kiranshivaraju/labubify/internal/cache"
	"github.com/kiranshivaraju/labubify/internal/config"
	"github.com/kiranshivaraju/labubify/internal/replicate"
	"github.com/kiranshivaraju/labubify/internal/store"
	"github.com/kiranshivaraju/labubify/internal/transform"
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
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"model_version", cfg.Replicate.Version,
		"token_set", cfg.Replicate.APIToken != "",
	)
	if cfg.Replicate.APIToken == "" {
		slog.Warn("REPLICATE_API_TOKEN is not set; transform requests will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional history store
	var historyStore store.Store
	if cfg.Database.URL != "" {
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

		historyStore = store.NewPostgresStore(pool)
	} else {
		slog.Info("DATABASE_URL not set; transformation history disabled")
	}

	// 3. Optional Redis cache
	var statusCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		statusCache = redisCache
	} else {
		slog.Info("REDIS_URL not set; status tracking and rate limiting disabled")
	}

	// 4. Replicate client and relay service
	client := replicate.NewHTTPClient(cfg.Replicate.BaseURL, cfg.Replicate.APIToken, cfg.Replicate.Timeout)
	svc := transform.NewService(client, statusCache, historyStore, transform.Options{
		Token:           cfg.Replicate.APIToken,
		Params:          transform.DefaultParams(cfg.Replicate.Version),
		PollInterval:    cfg.Poll.Interval,
		MaxPollAttempts: cfg.Poll.MaxAttempts,
	})

	// 5. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Server.AdminTokenHash),
		RateLimit: mw.NewRateLimit(statusCache, cfg.Server.RateLimitPerMin, cfg.Server.TrustedProxies...),

		HealthHandler:           healthHandler(historyStore, statusCache),
		TransformHandler:        handler.NewTransformHandler(svc, cfg.Server.MaxUploadBytes),
		PredictionStatusHandler: handler.NewPredictionStatusHandler(svc),
		HistoryHandler:          handler.NewHistoryHandler(svc),
		TransformationHandler:   handler.NewTransformationHandler(svc),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server. A transform holds its request open for the whole
	// poll budget, so the write timeout follows it.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: writeTimeout(cfg),
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// writeTimeout covers the full poll budget plus one upstream request on each
// side of it.
func writeTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Poll.MaxAttempts)*(cfg.Poll.Interval+cfg.Replicate.Timeout) + 2*cfg.Replicate.Timeout
}

// healthHandler checks the optional database and cache. A dependency that is
// not configured reports "disabled" and does not degrade the relay.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "disabled",
			"cache":    "disabled",
		}
		degraded := false

		if s != nil {
			checks["database"] = "ok"
			if err := s.Ping(r.Context()); err != nil {
				checks["database"] = "degraded"
				degraded = true
			}
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
				degraded = true
			}
		}

		status, code := "ok", http.StatusOK
		if degraded {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		response.Status(w, code, map[string]any{
			"status":   status,
			"services": checks,
		})
	}
}
