// Command harvester-server serves the ledger dashboard and JSON API.
package main

import (
	"os"
	"time"

	"harvester/internal/backend"
	"harvester/internal/cli"
	"harvester/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	ledger, err := backend.NewFactory().CreateLedger(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err)
		os.Exit(1)
	}

	serveErr := cli.Serve(ctx, cfg, ledger, logger)
	if err := ledger.Close(); err != nil {
		logger.Error("Failed to close ledger", log.FieldError, err)
	}
	if serveErr != nil {
		logger.Error("Server error", log.FieldError, serveErr)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
