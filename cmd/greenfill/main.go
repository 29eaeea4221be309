// Package main запускает HTTP-сервер сервиса Greenfill Hub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/greenfill-hub/internal/auth"
	"github.com/mmeshcher/greenfill-hub/internal/config"
	"github.com/mmeshcher/greenfill-hub/internal/handler"
	"github.com/mmeshcher/greenfill-hub/internal/middleware"
	"github.com/mmeshcher/greenfill-hub/internal/repository"
	"github.com/mmeshcher/greenfill-hub/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT secret is not set, tokens will not survive a restart")
	}
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)

	var (
		revoker service.Revoker
		checker middleware.RevocationChecker
	)
	if cfg.RedisURL != "" {
		revocations, err := auth.NewRevocationList(cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer revocations.Close()

		revoker = revocations
		checker = revocations
	} else {
		sugar.Warn("redis is not configured, signed out tokens stay valid until expiry")
	}

	svc := service.NewService(repo, tokens, revoker)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(tokens, checker, logger)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AnonKey, cfg.ServicePrefix)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting greenfill server", "addr", cfg.RunAddress, "prefix", cfg.ServicePrefix)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
