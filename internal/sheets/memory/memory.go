// Package memory is an in-process spreadsheet used for tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"sync"

	"harvester/internal/core"
	"harvester/internal/export"
	ports "harvester/internal/sheets"
)

var _ ports.LedgerWriter = (*Store)(nil)

// Store keeps the rows it was last given, header first.
type Store struct {
	mu       sync.Mutex
	farmers  [][]any
	expenses [][]any
	writes   int
}

func New() *Store {
	return &Store{}
}

func (s *Store) ReplaceFarmers(_ context.Context, records []core.FarmerRecord) error {
	rows := append([][]any{toRow(export.FarmerHeader)}, export.FarmerRows(records)...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.farmers = rows
	s.writes++
	return nil
}

func (s *Store) ReplaceExpenses(_ context.Context, records []core.ExpenseRecord) error {
	rows := append([][]any{toRow(export.ExpenseHeader)}, export.ExpenseRows(records)...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = rows
	s.writes++
	return nil
}

// Farmers returns a copy of the farmer rows including the header.
func (s *Store) Farmers() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.farmers...)
}

func (s *Store) Expenses() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.expenses...)
}

// Writes counts Replace calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func toRow(header []string) []any {
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}
