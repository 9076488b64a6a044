package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"recados-api/core"
)

func main() {
	cfg, err := core.Load(os.Environ())
	if err != nil {
		fmt.Fprint(os.Stderr, core.FormatConfigReport(err))
		os.Exit(1)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	cred, err := core.BootstrapAdmin(cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}
	authService := core.NewAdminAuthService(cred, cfg.JWTSecret, cfg.JWTExpiresIn)

	repo := core.NewMemoryRecadoRepository()
	if n, err := core.LoadSeed(ctx, repo, cfg.SeedFile); err != nil {
		log.Fatalf("failed to load seed: %v", err)
	} else if n > 0 {
		logger.Info("seed loaded", "file", cfg.SeedFile, "recados", n)
	}

	// Redis only backs the limiter statistics, so the API runs without it.
	var stats core.RateLimitStats
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, rate limit stats disabled", "error", err)
		} else {
			defer redisClient.Close()
			stats = core.NewRedisRateLimitStats(redisClient, "", 0)
		}
	}

	limiter := core.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	limiter.StartJanitor(ctx, time.Minute)

	router := core.NewRouter(cfg, core.RouterDeps{
		Sessions: core.NewSessionStore(cfg),
		Auth:     authService,
		Recados:  repo,
		Limiter:  limiter,
		Stats:    stats,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server", "addr", srv.Addr, "prefix", cfg.APIPrefix, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
