package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"harvester/internal/amqp"
	"harvester/internal/core"
	"harvester/internal/log"
	"harvester/internal/sheets"
)

// DocumentSource reads the current ledger, normally the local cache replica.
type DocumentSource interface {
	Load(ctx context.Context) (doc core.Document, found bool, err error)
}

// SyncWorker mirrors the ledger from the cache into the spreadsheet. Change
// messages only name the collection; the rows always come from the cache so
// a lost or reordered message is repaired by the next one.
type SyncWorker struct {
	source DocumentSource
	sheets sheets.LedgerWriter
	logger *log.Logger

	// syncMu serializes whole rewrites; the AMQP consumer and the periodic
	// catch-up may both trigger one.
	syncMu sync.Mutex

	mu       sync.Mutex
	lastSync time.Time
	syncs    int
}

func NewSyncWorker(source DocumentSource, writer sheets.LedgerWriter) *SyncWorker {
	return &SyncWorker{
		source: source,
		sheets: writer,
		logger: log.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordsChanged processes a single change message from AMQP.
func (w *SyncWorker) HandleRecordsChanged(ctx context.Context, msg *amqp.RecordsChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing change message",
		log.FieldRecordID, msg.ID,
		log.FieldOperation, msg.Op,
		log.FieldVersion, msg.Version,
		"collection", msg.Collection)

	return w.sync(ctx, msg.Collection)
}

// SyncNow rewrites both sheets. It backs the startup check and the periodic
// catch-up in case messages were lost while the worker was down.
func (w *SyncWorker) SyncNow(ctx context.Context) error {
	return w.sync(ctx, amqp.CollectionAll)
}

// LastSync reports when the sheets were last written and how many syncs
// succeeded since start.
func (w *SyncWorker) LastSync() (time.Time, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync, w.syncs
}

func (w *SyncWorker) sync(ctx context.Context, collection string) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	doc, found, err := w.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	if !found {
		w.logger.DebugContext(ctx, "Cache is empty, nothing to sync")
		return nil
	}

	if collection == amqp.CollectionFarmers || collection == amqp.CollectionAll {
		farmers := core.FilterFarmers(doc.Farmers, core.Filter{})
		if err := w.sheets.ReplaceFarmers(ctx, farmers); err != nil {
			return fmt.Errorf("write farmers sheet: %w", err)
		}
	}
	if collection == amqp.CollectionExpenses || collection == amqp.CollectionAll {
		expenses := append([]core.ExpenseRecord(nil), doc.Expenses...)
		core.SortExpenses(expenses)
		if err := w.sheets.ReplaceExpenses(ctx, expenses); err != nil {
			return fmt.Errorf("write expenses sheet: %w", err)
		}
	}

	w.mu.Lock()
	w.lastSync = time.Now()
	w.syncs++
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Spreadsheet synced",
		log.FieldOperation, log.OpSync,
		log.FieldFarmers, len(doc.Farmers),
		log.FieldExpenses, len(doc.Expenses),
		"collection", collection)
	return nil
}
