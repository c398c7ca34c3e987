package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensedash/internal/amqp"
	"expensedash/internal/cli"
	"expensedash/internal/config"
	applog "expensedash/internal/log"
	"expensedash/internal/sheets"
	gsheet "expensedash/internal/sheets/google"
	mem "expensedash/internal/sheets/memory"
	"expensedash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting expensedash-worker",
		"sink", cfg.ActivitySink,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	writer, err := newWriter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize activity sink", applog.FieldError, err, "sink", cfg.ActivitySink)
		os.Exit(1)
	}

	consumer := amqp.New(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err := consumer.Connect(ctx); err != nil {
		logger.Error("Failed to connect to AMQP", applog.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	w := worker.NewActivityWorker(writer, logger)
	if err := w.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Activity worker failed", applog.FieldError, err)
		consumer.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	processed, failed := w.Stats()
	logger.Info("Worker stopped gracefully", "processed", processed, "failed", failed)
}

func newWriter(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.ActivityWriter, error) {
	if cfg.ActivitySink == config.ActivitySinkMemory {
		logger.Info("Archiving activity in memory")
		return mem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleActivitySheet,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		logger.Warn("Could not ensure activity header row", applog.FieldError, err)
	}
	logger.Info("Archiving activity to Google Sheets",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleActivitySheet)
	return client, nil
}
