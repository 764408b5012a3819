package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/internal/amqp"
	"harvester/internal/core"
	"harvester/internal/sheets/memory"
	"harvester/internal/storage"
)

type staticSource struct {
	doc   core.Document
	found bool
	err   error
}

func (s staticSource) Load(context.Context) (core.Document, bool, error) {
	return s.doc, s.found, s.err
}

type failingWriter struct{ *memory.Store }

func (failingWriter) ReplaceFarmers(context.Context, []core.FarmerRecord) error {
	return errors.New("quota exceeded")
}

func sampleDoc() core.Document {
	paid := core.MustDecimal("0")
	return core.Document{
		Farmers: []core.FarmerRecord{
			{ID: "a", BillNo: 1001, Name: "Old", Date: core.NewDate(2024, 1, 1), Total: core.MustDecimal("100"), PaidAmount: &paid},
			{ID: "b", BillNo: 1002, Name: "New", Date: core.NewDate(2024, 2, 1), Total: core.MustDecimal("200"), PaidAmount: &paid},
		},
		Expenses: []core.ExpenseRecord{
			{ID: "e", Date: core.NewDate(2024, 1, 5), Category: "Diesel", Amount: core.MustDecimal("50")},
		},
	}
}

func TestHandleRecordsChangedFarmersOnly(t *testing.T) {
	sheet := memory.New()
	w := NewSyncWorker(staticSource{doc: sampleDoc(), found: true}, sheet)

	msg := amqp.NewRecordsChangedMessage(amqp.CollectionFarmers, "b", amqp.OpUpsert, 3)
	require.NoError(t, w.HandleRecordsChanged(context.Background(), msg))

	rows := sheet.Farmers()
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "b", rows[1][0], "newest first")
	assert.Empty(t, sheet.Expenses())
	assert.Equal(t, 1, sheet.Writes())
}

func TestSyncNowWritesBothSheets(t *testing.T) {
	sheet := memory.New()
	w := NewSyncWorker(staticSource{doc: sampleDoc(), found: true}, sheet)

	require.NoError(t, w.SyncNow(context.Background()))
	assert.Len(t, sheet.Farmers(), 3)
	assert.Len(t, sheet.Expenses(), 2)

	last, n := w.LastSync()
	assert.False(t, last.IsZero())
	assert.Equal(t, 1, n)
}

func TestSyncEmptyCache(t *testing.T) {
	sheet := memory.New()
	w := NewSyncWorker(staticSource{}, sheet)
	require.NoError(t, w.SyncNow(context.Background()))
	assert.Equal(t, 0, sheet.Writes())
}

func TestSyncErrors(t *testing.T) {
	w := NewSyncWorker(staticSource{err: errors.New("locked")}, memory.New())
	assert.ErrorContains(t, w.SyncNow(context.Background()), "load cache")

	w = NewSyncWorker(staticSource{doc: sampleDoc(), found: true}, failingWriter{memory.New()})
	assert.ErrorContains(t, w.SyncNow(context.Background()), "quota exceeded")
	_, n := w.LastSync()
	assert.Equal(t, 0, n)
}

func TestSyncFromKVCache(t *testing.T) {
	cache, err := storage.NewKVCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()
	require.NoError(t, cache.Save(context.Background(), sampleDoc()))

	sheet := memory.New()
	w := NewSyncWorker(cache, sheet)
	require.NoError(t, w.SyncNow(context.Background()))
	assert.Len(t, sheet.Farmers(), 3)
}

// overlapWriter records the highest number of rewrites in flight at once.
type overlapWriter struct {
	*memory.Store
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (w *overlapWriter) enter() func() {
	n := w.inFlight.Add(1)
	for {
		m := w.maxSeen.Load()
		if n <= m || w.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { w.inFlight.Add(-1) }
}

func (w *overlapWriter) ReplaceFarmers(ctx context.Context, records []core.FarmerRecord) error {
	defer w.enter()()
	return w.Store.ReplaceFarmers(ctx, records)
}

func (w *overlapWriter) ReplaceExpenses(ctx context.Context, records []core.ExpenseRecord) error {
	defer w.enter()()
	return w.Store.ReplaceExpenses(ctx, records)
}

func TestConcurrentSyncsDoNotOverlap(t *testing.T) {
	writer := &overlapWriter{Store: memory.New()}
	w := NewSyncWorker(staticSource{doc: sampleDoc(), found: true}, writer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.SyncNow(ctx))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, w.HandleRecordsChanged(ctx, amqp.NewRecordsChangedMessage(amqp.CollectionFarmers, "a", amqp.OpUpsert, 1)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), writer.maxSeen.Load())
	_, syncs := w.LastSync()
	assert.Equal(t, 8, syncs)
	assert.Len(t, writer.Farmers(), 3, "header plus two rows")
}
