// Package main runs a ShopForge worker process. Workers consume queued jobs
// and run scheduled tasks without serving the admin API, so job processing
// can scale independently of the API tier. A small HTTP listener exposes
// health and metrics for probes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/shopforge/shopforge/internal/app"
	"github.com/shopforge/shopforge/internal/app/metrics"
	"github.com/shopforge/shopforge/internal/config"
	"github.com/shopforge/shopforge/pkg/logger"
)

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
	}).Named("worker")

	application, cleanup, err := app.FromConfig(cfg, true, log)
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

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := application.Health.Report(r.Context())
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("worker probe listener")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("probe listener error")
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	_ = server.Shutdown(shutdownCtx)
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}
	log.Info("stopped")
}
