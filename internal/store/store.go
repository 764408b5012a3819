// Package store owns the canonical farmer and expense collections and keeps
// every registered replica in step with them.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"harvester/internal/core"
	"harvester/internal/log"
)

// replicaTimeout bounds one round of replica writes.
const replicaTimeout = 30 * time.Second

// Replica receives the whole document after every mutation.
type Replica interface {
	Name() string
	Save(ctx context.Context, doc core.Document) error
}

// Store is the single owner of the in-memory collections. Reads return
// reconciled copies; mutations are applied in memory first and then written
// to all replicas. A replica failure never rolls the mutation back.
type Store struct {
	mu       sync.RWMutex
	farmers  []core.FarmerRecord
	expenses []core.ExpenseRecord
	version  uint64
	replicas []Replica
	logger   *log.Logger
}

func New(replicas ...Replica) *Store {
	return &Store{
		replicas: replicas,
		logger:   log.WithComponent(log.ComponentStore),
	}
}

// AttachReplica registers r, replacing any replica with the same name.
func (s *Store) AttachReplica(r Replica) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.replicas {
		if existing.Name() == r.Name() {
			s.replicas[i] = r
			return
		}
	}
	s.replicas = append(s.replicas, r)
}

func (s *Store) DetachReplica(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.replicas {
		if existing.Name() == name {
			s.replicas = append(s.replicas[:i], s.replicas[i+1:]...)
			return
		}
	}
}

// Replicas lists the names of the attached replicas.
func (s *Store) Replicas() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.replicas))
	for i, r := range s.replicas {
		names[i] = r.Name()
	}
	return names
}

// Version increases with every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpsertFarmer replaces the record with the same id in place or appends it.
// A replaced record keeps its stored bill number whatever r carries.
func (s *Store) UpsertFarmer(ctx context.Context, r core.FarmerRecord) (core.FarmerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r = core.Normalize(r.Clone())
	op := "insert"
	if i := s.farmerIndex(r.ID); i >= 0 {
		r.BillNo = s.farmers[i].BillNo
		s.farmers[i] = r
		op = "update"
	} else {
		s.farmers = append(s.farmers, r)
	}
	s.version++
	s.logger.Info("Farmer record saved",
		log.FieldRecordID, r.ID,
		log.FieldBillNo, int64(r.BillNo),
		log.FieldOperation, op)

	return r.Clone(), s.persist(ctx)
}

// DeleteFarmer removes the record with id. Deleting a missing id is a no-op
// and reports false.
func (s *Store) DeleteFarmer(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.farmerIndex(id)
	if i < 0 {
		return false, nil
	}
	s.farmers = append(s.farmers[:i], s.farmers[i+1:]...)
	s.version++
	s.logger.Info("Farmer record deleted", log.FieldRecordID, id)
	return true, s.persist(ctx)
}

// Farmer returns the reconciled record with id.
func (s *Store) Farmer(id string) (core.FarmerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.farmerIndex(id)
	if i < 0 {
		return core.FarmerRecord{}, fmt.Errorf("farmer %q: %w", id, core.ErrNotFound)
	}
	return core.Normalize(s.farmers[i].Clone()), nil
}

// Farmers lists reconciled records matching f, newest date first.
func (s *Store) Farmers(f core.Filter) []core.FarmerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.FilterFarmers(s.farmers, f)
}

// Expense returns the expense with id.
func (s *Store) Expense(id string) (core.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return core.ExpenseRecord{}, fmt.Errorf("expense %q: %w", id, core.ErrNotFound)
	}
	return s.expenses[i], nil
}

func (s *Store) UpsertExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := "insert"
	if i := s.expenseIndex(e.ID); i >= 0 {
		s.expenses[i] = e
		op = "update"
	} else {
		s.expenses = append(s.expenses, e)
	}
	s.version++
	s.logger.Info("Expense record saved",
		log.FieldRecordID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldOperation, op)

	return e, s.persist(ctx)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.expenseIndex(id)
	if i < 0 {
		return false, nil
	}
	s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
	s.version++
	s.logger.Info("Expense record deleted", log.FieldRecordID, id)
	return true, s.persist(ctx)
}

// Expenses lists expenses newest date first.
func (s *Store) Expenses() []core.ExpenseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]core.ExpenseRecord(nil), s.expenses...)
	core.SortExpenses(out)
	return out
}

// Snapshot returns a deep copy of both collections in insertion order,
// every farmer record reconciled.
func (s *Store) Snapshot() core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// LoadAll replaces both collections with doc and writes every replica. The
// document must carry both collections.
func (s *Store) LoadAll(ctx context.Context, doc core.Document) error {
	if doc.Farmers == nil || doc.Expenses == nil {
		return &core.ValidationError{Field: "document", Reason: "must contain both farmers and expenses"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(doc)
	return s.persist(ctx)
}

// Restore replaces the collections without touching the replicas. It is
// used at startup, when the document was just read from a replica.
func (s *Store) Restore(doc core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(doc)
}

func (s *Store) replace(doc core.Document) {
	migrated := 0
	s.farmers = make([]core.FarmerRecord, len(doc.Farmers))
	for i, r := range doc.Farmers {
		if core.Reconcile(r).Migrated {
			migrated++
		}
		s.farmers[i] = core.Normalize(r.Clone())
	}
	s.expenses = append([]core.ExpenseRecord{}, doc.Expenses...)
	s.version++
	s.logger.Info("Collections loaded",
		log.FieldFarmers, len(s.farmers),
		log.FieldExpenses, len(s.expenses),
		log.FieldMigrated, migrated)
}

func (s *Store) snapshot() core.Document {
	doc := core.Document{
		Version:  core.DocumentVersion,
		Farmers:  make([]core.FarmerRecord, len(s.farmers)),
		Expenses: append([]core.ExpenseRecord{}, s.expenses...),
	}
	for i, r := range s.farmers {
		doc.Farmers[i] = core.Normalize(r.Clone())
	}
	return doc
}

// persist writes the current state to every replica concurrently. Callers
// hold the write lock, so replica writes never interleave. The writes
// outlive a cancelled caller: the mutation is already applied in memory.
func (s *Store) persist(ctx context.Context) error {
	if len(s.replicas) == 0 {
		return nil
	}
	doc := s.snapshot()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replicaTimeout)
	defer cancel()

	// Every replica is attempted; each failure is reported.
	errs := make([]error, len(s.replicas))
	var g errgroup.Group
	for i, r := range s.replicas {
		g.Go(func() error {
			if err := r.Save(ctx, doc); err != nil {
				s.logger.Error("Replica write failed",
					log.FieldReplica, r.Name(),
					log.FieldError, err)
				errs[i] = &core.PersistenceError{Replica: r.Name(), Op: "save", Err: err}
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return errors.Join(errs...)
}

func (s *Store) farmerIndex(id string) int {
	for i, r := range s.farmers {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) expenseIndex(id string) int {
	for i, e := range s.expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}
