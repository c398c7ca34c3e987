package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensedash/internal/amqp"
	"expensedash/internal/api"
	"expensedash/internal/cli"
	apphttp "expensedash/internal/http"
	applog "expensedash/internal/log"
	"expensedash/internal/middleware/trace"
	"expensedash/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	logger.Info("Starting expensedash",
		"addr", cfg.Addr(),
		"backend_url", cfg.APIBaseURL,
		"session_backend", cfg.SessionBackend)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	sessions, err := storage.Open(bootCtx, storage.OptionsFromConfig(cfg), logger)
	if err != nil {
		bootCancel()
		logger.Error("Failed to open session store", applog.FieldError, err, "backend", cfg.SessionBackend)
		os.Exit(1)
	}

	metrics := trace.NewMetrics()

	backend := api.New(cfg.APIBaseURL, cfg.APITimeout, api.WithLogger(logger))
	backend.OnError = func(endpoint string, status int) {
		metrics.BackendErrors.Add(1)
	}

	deps := apphttp.Deps{
		Backend:  backend,
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
	}

	var broker *amqp.Client
	if cfg.AMQPURL != "" {
		broker = amqp.New(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err := broker.Connect(bootCtx); err != nil {
			// Publishing is best effort; the client redials on the next publish.
			logger.Warn("AMQP unavailable at startup", applog.FieldError, err)
		}
		deps.Publisher = broker
		logger.Info("Activity publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Activity publishing disabled - no AMQP_URL provided")
	}
	bootCancel()

	srv, err := apphttp.NewServer(apphttp.OptionsFromConfig(cfg), deps)
	if err != nil {
		logger.Error("Failed to build HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	srv.Start(ctx)
	cleanupDone := storage.StartCleanup(ctx, sessions, cfg.SessionCleanupInterval, logger)

	logger.Info("Server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	<-cleanupDone

	if broker != nil {
		if err := broker.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
	}
	if err := sessions.Close(); err != nil {
		logger.Warn("Session store close error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
