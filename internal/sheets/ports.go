package sheets

import (
	"context"

	"harvester/internal/core"
)

// Ports for outbound adapters.
type (
	// FarmerSheetWriter mirrors the farmer ledger into a spreadsheet. Every
	// call replaces the previous contents.
	FarmerSheetWriter interface {
		ReplaceFarmers(ctx context.Context, records []core.FarmerRecord) error
	}

	ExpenseSheetWriter interface {
		ReplaceExpenses(ctx context.Context, records []core.ExpenseRecord) error
	}

	LedgerWriter interface {
		FarmerSheetWriter
		ExpenseSheetWriter
	}
)
