package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"harvester/internal/backend"
	"harvester/internal/config"
	apphttp "harvester/internal/http"
	"harvester/internal/log"
	"harvester/internal/reminder"
)

// Serve runs the dashboard and the backup reminder until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, ledger *backend.Ledger, logger *log.Logger) error {
	sched, err := reminder.New(ledger.Cache, cfg.BackupReminderDays, cfg.BackupReminderSchedule,
		func(ctx context.Context, st reminder.Status) {
			logger.WarnContext(ctx, st.Message())
		})
	if err != nil {
		return err
	}
	sched.RunOnce(ctx)
	sched.Start()
	defer sched.Stop()

	srv := apphttp.NewServer(ledger.Service, ledger.WhatsApp, apphttp.Options{
		Addr:         ":" + cfg.Port,
		ReminderDays: cfg.BackupReminderDays,
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting harvester server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}
