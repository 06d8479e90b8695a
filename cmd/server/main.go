// Package main is the entrypoint for the LMSBridge API server and batch workers.
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

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/lmsbridge/internal/api"
	"github.com/kiranshivaraju/lmsbridge/internal/api/handler"
	mw "github.com/kiranshivaraju/lmsbridge/internal/api/middleware"
	"github.com/kiranshivaraju/lmsbridge/internal/api/response"
	"github.com/kiranshivaraju/lmsbridge/internal/batch"
	"github.com/kiranshivaraju/lmsbridge/internal/cache"
	"github.com/kiranshivaraju/lmsbridge/internal/config"
	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/kiranshivaraju/lmsbridge/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
)

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(os.Args[1:]); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Load .env (if any) and config, fail fast on invalid config
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	cfg, err := config.LoadArgs(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.Log.Level)
	slog.Info("config loaded", "env", cfg.Server.Env, "moodle_url", cfg.Moodle.URL, "workers", cfg.Batch.Workers)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache and queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create LMS client. An unreachable LMS is reported, not fatal.
	lms := moodle.NewHTTPClient(cfg.Moodle.URL, cfg.Moodle.Token, cfg.Moodle.Timeout)
	probeCtx, cancelProbe := context.WithTimeout(ctx, healthCheckTimeout)
	if info, err := lms.SiteInfo(probeCtx); err != nil {
		slog.Warn("LMS not reachable at startup", "error", err)
	} else {
		slog.Info("LMS connected", "site", info.SiteName, "release", info.Release, "user", info.Username)
	}
	cancelProbe()

	// 6. Create store, executor, worker pool and service
	pgStore := store.NewPostgresStore(pool)
	executor := batch.NewExecutor(pgStore, redisCache, lms,
		batch.WithRowDelay(cfg.Batch.RowDelay),
		batch.WithFlushSize(cfg.Batch.FlushSize),
		batch.WithRoleIDs(cfg.Moodle.RoleIDs),
	)
	worker := batch.NewWorker(redisCache, executor, cfg.Batch.Workers)
	svc := batch.NewService(pgStore, redisCache, redisCache)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.APIKeyHashes),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PerMinute),

		HealthHandler:    healthHandler(pgStore, redisCache, lms),
		AnalyzeHandler:   handler.NewAnalyzeHandler(svc, cfg.Upload.MaxBytes),
		UploadHandler:    handler.NewUploadHandler(svc, cfg.Upload.MaxBytes),
		SubmitJobHandler: handler.NewSubmitHandler(svc),
		ListJobsHandler:  handler.NewListJobsHandler(svc),
		JobStatusHandler: handler.NewJobStatusHandler(svc),
		JobEntries:       handler.NewJobEntriesHandler(svc),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server and workers
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for shutdown signal or server error, then drain
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections and in-flight jobs...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type siteInfoer interface {
	SiteInfo(ctx context.Context) (*moodle.SiteInfo, error)
}

// healthHandler checks database, cache and LMS connectivity.
func healthHandler(db, c pinger, lms siteInfoer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"lms":      "ok",
		}

		if err := db.Ping(ctx); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(ctx); err != nil {
			checks["cache"] = "degraded"
		}
		if _, err := lms.SiteInfo(ctx); err != nil {
			checks["lms"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
