package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"harvester/internal/amqp"
	"harvester/internal/core"
	"harvester/internal/dbfile"
	"harvester/internal/log"
	"harvester/internal/services"
	"harvester/internal/share"
	"harvester/internal/sheets"
	gsheet "harvester/internal/sheets/google"
	"harvester/internal/sheets/memory"
	"harvester/internal/storage"
	"harvester/internal/store"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory() Factory {
	return &DefaultFactory{logger: log.WithComponent(log.ComponentApp)}
}

// CreateLedger opens the cache, restores the last saved state from it and,
// when a database file is configured, reconnects that file. AMQP and
// WhatsApp are optional and only logged when they cannot be set up.
func (f *DefaultFactory) CreateLedger(ctx context.Context, config Config) (*Ledger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cache, err := storage.NewKVCache(config.CacheDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	doc, found, err := cache.Load(ctx)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	st := store.New(cache)
	if found {
		st.Restore(doc)
	}

	var amqpClient *amqp.Client
	var notifier services.Notifier
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
			amqpClient = nil
		} else {
			notifier = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewLedgerService(st, cache, notifier)

	if config.DatabaseFile != "" {
		if err := f.reconnectFile(ctx, svc, config.DatabaseFile); err != nil {
			f.logger.Warn("Database file not connected", log.FieldFile, config.DatabaseFile, log.FieldError, err)
		}
	}

	var sender share.Sender
	if config.WhatsApp.Enabled() {
		wa, err := share.NewWhatsAppClient(config.WhatsApp)
		if err != nil {
			f.logger.Warn("Failed to initialize WhatsApp client", log.FieldError, err)
		} else {
			sender = wa
		}
	}

	snapshot := st.Snapshot()
	f.logger.Info("Ledger ready",
		log.FieldFarmers, len(snapshot.Farmers),
		log.FieldExpenses, len(snapshot.Expenses),
		"replicas", st.Replicas(),
		"amqp_enabled", amqpClient != nil,
		"whatsapp_enabled", sender != nil)

	return &Ledger{
		Service:  svc,
		Store:    st,
		Cache:    cache,
		AMQP:     amqpClient,
		WhatsApp: sender,
		Cleanup: func() error {
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, cache.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// reconnectFile opens an existing database file, or creates it from the
// current state when it does not exist yet. An unreadable file is left
// untouched.
func (f *DefaultFactory) reconnectFile(ctx context.Context, svc *services.LedgerService, path string) error {
	_, err := dbfile.Read(path)
	switch {
	case err == nil:
		err = svc.OpenDatabase(ctx, path)
	case errors.Is(err, fs.ErrNotExist):
		err = svc.ConnectDatabase(ctx, path)
	}
	if err != nil && !core.IsWarning(err) {
		return err
	}
	return nil
}

// CreateSheetWriter returns the Google Sheets mirror when a spreadsheet id is
// configured and an in-memory mirror otherwise.
func (f *DefaultFactory) CreateSheetWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("No spreadsheet configured, mirroring in memory")
		return memory.New(), nil
	}
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: config.GoogleSpreadsheetID,
		FarmersSheet:  config.GoogleSheetName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.GoogleSpreadsheetID)
	return cli, nil
}
