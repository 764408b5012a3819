package backend

import (
	"context"

	"harvester/internal/amqp"
	"harvester/internal/services"
	"harvester/internal/share"
	"harvester/internal/sheets"
	"harvester/internal/storage"
	"harvester/internal/store"
)

// CleanupFunc releases the resources a factory opened.
type CleanupFunc func() error

// Ledger bundles the wired application: the record store with its replicas,
// the service driving it and the optional outbound integrations.
type Ledger struct {
	Service  *services.LedgerService
	Store    *store.Store
	Cache    *storage.KVCache
	AMQP     *amqp.Client // nil when AMQP_URL is empty or unreachable
	WhatsApp share.Sender // nil when the Cloud API is not configured
	Cleanup  CleanupFunc
}

// Close runs Cleanup once.
func (l *Ledger) Close() error {
	if l == nil || l.Cleanup == nil {
		return nil
	}
	cleanup := l.Cleanup
	l.Cleanup = nil
	return cleanup()
}

// Factory builds the ledger and the spreadsheet mirror from configuration.
type Factory interface {
	CreateLedger(ctx context.Context, config Config) (*Ledger, error)
	CreateSheetWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	CacheDBPath  string
	DatabaseFile string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID string
	GoogleSheetName     string

	WhatsApp share.WhatsAppConfig
}
