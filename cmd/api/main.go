package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medspa-booking-wizard/internal/api/router"
	"github.com/wolfman30/medspa-booking-wizard/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	"github.com/wolfman30/medspa-booking-wizard/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-booking-wizard/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

const (
	sweepInterval = time.Minute
	maxIdle       = 10 * time.Minute
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting medspa booking wizard API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"practice", cfg.PracticeName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, metricsHandler := setupMetrics()
	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger, bootstrap.RuntimeOptions{Registerer: registry})
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	rt.Registry.StartSweeper(ctx, sweepInterval, maxIdle)

	srv := newServer(cfg, rt, logger, metricsHandler)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics creates the registry the wizard metrics register into and
// the handler that exposes it.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func newServer(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger, metricsHandler http.Handler) *http.Server {
	wizardHandler := handlers.NewWizardHandler(handlers.WizardHandlerConfig{
		Sessions: rt.Registry,
		Cookies:  rt.Cookies,
		Logger:   logger,
	})

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Wizard:             wizardHandler,
		Cookies:            rt.Cookies,
		RateLimiter:        limiter,
		RequestObserver:    rt.Metrics,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       rt.HealthChecks(),
	})

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
