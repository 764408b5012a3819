// Package export renders the farmer ledger as spreadsheet rows and .xlsx files.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"harvester/internal/core"
)

// FarmersSheet is the only sheet of an exported workbook.
const FarmersSheet = "Farmers"

// FarmerHeader lists the columns in persisted field order.
var FarmerHeader = []string{
	"id", "billNo", "name", "date", "contact", "place", "crop",
	"acres", "rate", "total", "paidAmount", "status", "isSettled", "comments",
}

// ExpenseHeader lists the expense columns in persisted field order.
var ExpenseHeader = []string{"id", "date", "category", "desc", "amount"}

// FarmerRow renders one reconciled record. Numbers stay numeric so
// spreadsheet formulas work on them.
func FarmerRow(r core.FarmerRecord) []any {
	r = core.Normalize(r)
	var billNo any = ""
	if r.BillNo != 0 {
		billNo = int64(r.BillNo)
	}
	return []any{
		r.ID,
		billNo,
		r.Name,
		r.Date.Key(),
		r.Contact,
		r.Place,
		r.Crop,
		r.Acres.InexactFloat64(),
		r.Rate.InexactFloat64(),
		r.Total.InexactFloat64(),
		r.Paid().InexactFloat64(),
		string(r.Status),
		r.IsSettled,
		r.Comments,
	}
}

func FarmerRows(records []core.FarmerRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = FarmerRow(r)
	}
	return rows
}

func ExpenseRows(records []core.ExpenseRecord) [][]any {
	rows := make([][]any, len(records))
	for i, e := range records {
		rows[i] = []any{e.ID, e.Date.Key(), e.Category, e.Desc, e.Amount.InexactFloat64()}
	}
	return rows
}

// WriteFarmersXLSX writes a workbook with a header row and one row per record.
func WriteFarmersXLSX(w io.Writer, records []core.FarmerRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), FarmersSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(FarmerHeader))
	for i, h := range FarmerHeader {
		header[i] = h
	}
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, row := range FarmerRows(records) {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(FarmersSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// FileName is the default export name for a workbook produced on now.
func FileName(now time.Time) string {
	return fmt.Sprintf("Harvester_Farmers_%s.xlsx", now.Format("2006-01-02"))
}
