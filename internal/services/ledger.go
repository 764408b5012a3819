// Package services holds the application workflows that sit between the
// surfaces and the record store.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"harvester/internal/amqp"
	"harvester/internal/core"
	"harvester/internal/dbfile"
	"harvester/internal/log"
	"harvester/internal/reminder"
	"harvester/internal/store"
)

// Notifier announces ledger mutations to other processes.
type Notifier interface {
	PublishRecordsChanged(ctx context.Context, msg *amqp.RecordsChangedMessage) error
}

// BackupStamps records when the data was last written somewhere safe.
type BackupStamps interface {
	LastBackup(ctx context.Context) (time.Time, error)
	MarkBackup(ctx context.Context, at time.Time) error
}

// FarmerForm carries the raw values of the bill form. ID is empty for a new
// bill.
type FarmerForm struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Contact    string `json:"contact"`
	Place      string `json:"place"`
	Crop       string `json:"crop"`
	Acres      string `json:"acres"`
	Rate       string `json:"rate"`
	PaidAmount string `json:"paidAmount"`
	IsSettled  bool   `json:"isSettled"`
	Comments   string `json:"comments"`
}

// ExpenseForm carries the raw values of the expense form.
type ExpenseForm struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Desc     string `json:"desc"`
	Amount   string `json:"amount"`
}

// LedgerService validates forms, assigns identity and bill numbers, and
// drives the store. Errors satisfying core.IsWarning mean the change was
// applied but a replica could not be written.
type LedgerService struct {
	store    *store.Store
	stamps   BackupStamps
	notifier Notifier
	logger   *log.Logger

	// saveMu keeps bill number allocation and insertion atomic.
	saveMu sync.Mutex

	now   func() time.Time
	newID func() string
}

func NewLedgerService(s *store.Store, stamps BackupStamps, notifier Notifier) *LedgerService {
	return &LedgerService{
		store:    s,
		stamps:   stamps,
		notifier: notifier,
		logger:   log.WithComponent(log.ComponentLedger),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *LedgerService) Store() *store.Store {
	return s.store
}

// SaveFarmer creates or edits a bill. The total is recomputed from acres and
// rate; the bill number is assigned only on creation.
func (s *LedgerService) SaveFarmer(ctx context.Context, form FarmerForm) (core.FarmerRecord, error) {
	r, err := parseFarmerForm(form)
	if err != nil {
		return core.FarmerRecord{}, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	op := log.OpUpdate
	if r.ID == "" {
		op = log.OpCreate
		r.ID = s.newID()
		r.BillNo = core.NextBillNo(s.store.Snapshot().Farmers)
	} else {
		existing, err := s.store.Farmer(r.ID)
		if err != nil {
			return core.FarmerRecord{}, err
		}
		r.BillNo = existing.BillNo
	}

	saved, err := s.store.UpsertFarmer(ctx, r)
	if err != nil && !core.IsWarning(err) {
		return core.FarmerRecord{}, fmt.Errorf("save farmer: %w", err)
	}
	s.logChange(ctx, op, saved.ID, saved.BillNo, err)
	s.publish(ctx, amqp.CollectionFarmers, saved.ID, amqp.OpUpsert)
	return saved, err
}

// DeleteFarmer removes a bill. Unknown ids are ignored.
func (s *LedgerService) DeleteFarmer(ctx context.Context, id string) error {
	removed, err := s.store.DeleteFarmer(ctx, id)
	if removed {
		s.logChange(ctx, log.OpDelete, id, 0, err)
		s.publish(ctx, amqp.CollectionFarmers, id, amqp.OpDelete)
	}
	return err
}

// SaveExpense creates an expense, or edits an existing one when form.ID is
// set.
func (s *LedgerService) SaveExpense(ctx context.Context, form ExpenseForm) (core.ExpenseRecord, error) {
	e, err := parseExpenseForm(form)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	op := log.OpUpdate
	if e.ID == "" {
		op = log.OpCreate
		e.ID = s.newID()
	} else if _, err := s.store.Expense(e.ID); err != nil {
		return core.ExpenseRecord{}, err
	}
	saved, err := s.store.UpsertExpense(ctx, e)
	if err != nil && !core.IsWarning(err) {
		return core.ExpenseRecord{}, fmt.Errorf("save expense: %w", err)
	}
	s.logChange(ctx, op, saved.ID, 0, err)
	s.publish(ctx, amqp.CollectionExpenses, saved.ID, amqp.OpUpsert)
	return saved, err
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	removed, err := s.store.DeleteExpense(ctx, id)
	if removed {
		s.logChange(ctx, log.OpDelete, id, 0, err)
		s.publish(ctx, amqp.CollectionExpenses, id, amqp.OpDelete)
	}
	return err
}

// ConnectDatabase writes the current data to path and keeps that file in
// step with every later change. An empty path means the user backed out.
func (s *LedgerService) ConnectDatabase(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return core.ErrUserCancelled
	}
	file := dbfile.New(path)
	if err := file.Save(ctx, s.store.Snapshot()); err != nil {
		return &core.PersistenceError{Replica: dbfile.ReplicaName, Op: "connect", Err: err}
	}
	s.store.AttachReplica(file)
	s.logger.InfoContext(ctx, "Database file connected", log.FieldFile, path)
	return s.markBackup(ctx)
}

// OpenDatabase replaces all data with the contents of path, then keeps that
// file connected. Nothing changes if the file cannot be read or lacks either
// collection.
func (s *LedgerService) OpenDatabase(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	doc, err := dbfile.Read(path)
	if err != nil {
		return err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.store.AttachReplica(dbfile.New(path))
	err = s.store.LoadAll(ctx, doc)
	if err != nil && !core.IsWarning(err) {
		s.store.DetachReplica(dbfile.ReplicaName)
		return err
	}
	s.logger.InfoContext(ctx, "Database file opened",
		log.FieldFile, path,
		log.FieldFarmers, len(doc.Farmers),
		log.FieldExpenses, len(doc.Expenses))
	s.publish(ctx, amqp.CollectionAll, "", amqp.OpLoad)
	return err
}

// ImportDocument replaces all data with doc without connecting a file.
func (s *LedgerService) ImportDocument(ctx context.Context, doc core.Document) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	err := s.store.LoadAll(ctx, doc)
	if err != nil && !core.IsWarning(err) {
		return err
	}
	s.publish(ctx, amqp.CollectionAll, "", amqp.OpLoad)
	return err
}

// Backup writes a dated copy of the data into dir and returns its path.
func (s *LedgerService) Backup(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	data, err := core.EncodeDocument(s.store.Snapshot())
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(dir, dbfile.BackupName(s.now()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	s.logger.InfoContext(ctx, "Backup written", log.FieldFile, path)
	return path, s.markBackup(ctx)
}

// MarkBackup records that the caller delivered the data elsewhere.
func (s *LedgerService) MarkBackup(ctx context.Context) error {
	return s.markBackup(ctx)
}

func (s *LedgerService) markBackup(ctx context.Context) error {
	if s.stamps == nil {
		return nil
	}
	if err := s.stamps.MarkBackup(ctx, s.now()); err != nil {
		return &core.PersistenceError{Replica: "backup-stamp", Op: "save", Err: err}
	}
	return nil
}

// BackupStatus reports how long ago the last backup was taken and whether
// that is more than days ago.
func (s *LedgerService) BackupStatus(ctx context.Context, days int) (reminder.Status, error) {
	if s.stamps == nil {
		return reminder.Check(time.Time{}, s.now(), days), nil
	}
	last, err := s.stamps.LastBackup(ctx)
	if err != nil {
		return reminder.Status{}, fmt.Errorf("read backup stamp: %w", err)
	}
	return reminder.Check(last, s.now(), days), nil
}

// Summary computes the dashboard totals over the current data.
func (s *LedgerService) Summary(f core.Filter) core.Summary {
	doc := s.store.Snapshot()
	return core.Summarize(doc.Farmers, doc.Expenses, f)
}

func (s *LedgerService) Charts() core.Charts {
	doc := s.store.Snapshot()
	return core.BuildCharts(doc.Farmers, doc.Expenses)
}

// Overdue maps record id to the overdue notice of every late bill.
func (s *LedgerService) Overdue() map[string]core.OverdueNotice {
	now := s.now()
	out := map[string]core.OverdueNotice{}
	for _, r := range s.store.Farmers(core.Filter{}) {
		if n, ok := core.Overdue(r, now); ok {
			out[r.ID] = n
		}
	}
	return out
}

// logChange records an applied mutation; warn carries a replica failure.
func (s *LedgerService) logChange(ctx context.Context, op, id string, billNo core.BillNo, warn error) {
	fields := log.NewFields().
		WithOperation(op).
		WithRecord(id, int64(billNo)).
		WithError(warn)
	if warn != nil {
		s.logger.WarnContext(ctx, "Record changed but a replica was not written", fields.ToSlice()...)
		return
	}
	s.logger.DebugContext(ctx, "Record changed", fields.ToSlice()...)
}

func (s *LedgerService) publish(ctx context.Context, collection, id, op string) {
	if s.notifier == nil {
		return
	}
	msg := amqp.NewRecordsChangedMessage(collection, id, op, s.store.Version())
	if err := s.notifier.PublishRecordsChanged(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change notification",
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}

func parseFarmerForm(form FarmerForm) (core.FarmerRecord, error) {
	date, err := core.ParseDate(form.Date)
	if err != nil {
		return core.FarmerRecord{}, err
	}
	acres, err := core.ParseAmount("acres", form.Acres)
	if err != nil {
		return core.FarmerRecord{}, err
	}
	rate, err := core.ParseAmount("rate", form.Rate)
	if err != nil {
		return core.FarmerRecord{}, err
	}
	paid, err := core.ParseOptionalAmount("paidAmount", form.PaidAmount)
	if err != nil {
		return core.FarmerRecord{}, err
	}

	r := core.FarmerRecord{
		ID:         strings.TrimSpace(form.ID),
		Name:       strings.TrimSpace(form.Name),
		Date:       date,
		Contact:    strings.Join(strings.Fields(form.Contact), ""),
		Place:      strings.TrimSpace(form.Place),
		Crop:       strings.TrimSpace(form.Crop),
		Acres:      acres,
		Rate:       rate,
		Total:      core.ComputeTotal(acres, rate),
		PaidAmount: &paid,
		IsSettled:  form.IsSettled,
		Comments:   strings.TrimSpace(form.Comments),
	}
	if err := r.Validate(); err != nil {
		return core.FarmerRecord{}, err
	}
	return r, nil
}

func parseExpenseForm(form ExpenseForm) (core.ExpenseRecord, error) {
	date, err := core.ParseDate(form.Date)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	amount, err := core.ParseAmount("amount", form.Amount)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	e := core.ExpenseRecord{
		ID:       strings.TrimSpace(form.ID),
		Date:     date,
		Category: strings.TrimSpace(form.Category),
		Desc:     strings.TrimSpace(form.Desc),
		Amount:   amount,
	}
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	return e, nil
}

// IsCancelled reports whether err only means the user backed out.
func IsCancelled(err error) bool {
	return errors.Is(err, core.ErrUserCancelled)
}
