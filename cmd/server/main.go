// Package main runs the ShopForge admin API server. It serves the REST API,
// metrics and the websocket job feed, and optionally embeds the queue
// workers for single-process deployments.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/shopforge/shopforge/internal/app"
	"github.com/shopforge/shopforge/internal/app/httpapi"
	"github.com/shopforge/shopforge/internal/app/metrics"
	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/internal/middleware"
	"github.com/shopforge/shopforge/pkg/logger"
)

// cleanupInterval paces the rate limiter's idle key sweep.
const cleanupInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).Named("server")

	application, cleanup, err := app.FromConfig(cfg, cfg.Server.EmbeddedWorker, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	handler := httpapi.NewHandler(application)
	handler = metrics.InstrumentHandler(handler)

	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst, log)
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(cleanupInterval, stopCleanup)
	handler = limiter.Handler(handler)

	auth := middleware.NewAuth(cfg.Auth, log, "/health", "/metrics")
	handler = auth.Handler(handler)
	handler = middleware.NewCORS(cfg.Server.CORSOriginList()).Handler(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("admin API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}
	close(stopCleanup)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("stopped")
}
