// Command harvester-worker mirrors the ledger into the spreadsheet whenever
// a records_changed message arrives, with a periodic catch-up.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"harvester/internal/amqp"
	"harvester/internal/backend"
	"harvester/internal/cli"
	"harvester/internal/log"
	"harvester/internal/services"
	"harvester/internal/storage"
	"harvester/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting harvester-worker")

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	cache, err := storage.NewKVCache(cfg.CacheDBPath)
	if err != nil {
		logger.Error("Failed to open cache", log.FieldError, err, log.FieldFile, cfg.CacheDBPath)
		os.Exit(1)
	}
	defer cache.Close()

	writer, err := backend.NewFactory().CreateSheetWriter(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet mirror", log.FieldError, err)
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(cache, writer)
	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		MaxRetries:   3,
		RetryDelay:   2 * time.Second,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Failed to stop sync processor", log.FieldError, err)
		}
	})

	// Catch up with whatever changed while the worker was down.
	if err := syncWorker.SyncNow(ctx); err != nil {
		logger.Error("Startup sync failed", log.FieldError, err)
	}
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client, relying on periodic sync", log.FieldError, err)
		} else {
			defer client.Close()
			go func() {
				err := client.ConsumeRecordsChanged(ctx, syncWorker.HandleRecordsChanged)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", log.FieldError, err)
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic sync", "interval", cfg.SyncInterval.String())
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
