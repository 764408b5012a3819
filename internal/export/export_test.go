package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"harvester/internal/core"
)

func sampleRecords() []core.FarmerRecord {
	paid := core.MustDecimal("1000")
	return []core.FarmerRecord{
		{
			ID: "f1", BillNo: 1001, Name: "Ramesh", Date: core.NewDate(2024, 1, 15),
			Contact: "9876543210", Place: "Nashik", Crop: "Paddy",
			Acres: core.MustDecimal("2.5"), Rate: core.MustDecimal("1200"), Total: core.MustDecimal("3000"),
			PaidAmount: &paid, Comments: "first",
		},
		{
			ID: "f2", Name: "Legacy", Date: core.NewDate(2023, 3, 1),
			Acres: core.MustDecimal("1"), Rate: core.MustDecimal("900"), Total: core.MustDecimal("900"),
			Status: core.StatusPaid,
		},
	}
}

func TestFarmerRow(t *testing.T) {
	rows := FarmerRows(sampleRecords())
	require.Len(t, rows, 2)
	require.Len(t, rows[0], len(FarmerHeader))

	assert.Equal(t, int64(1001), rows[0][1])
	assert.Equal(t, "2024-01-15", rows[0][3])
	assert.Equal(t, 2.5, rows[0][7])
	assert.Equal(t, 1000.0, rows[0][10])
	assert.Equal(t, "Partial", rows[0][11])

	// Legacy rows are reconciled before export.
	assert.Equal(t, "", rows[1][1])
	assert.Equal(t, 900.0, rows[1][10])
	assert.Equal(t, "Paid", rows[1][11])
}

func TestWriteFarmersXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFarmersXLSX(&buf, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{FarmersSheet}, f.GetSheetList())
	rows, err := f.GetRows(FarmersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, FarmerHeader, rows[0])
	assert.Equal(t, "Ramesh", rows[1][2])
	assert.Equal(t, "Nashik", rows[1][5])
}

func TestWriteFarmersXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFarmersXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(FarmersSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Harvester_Farmers_2024-05-06.xlsx", FileName(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)))
}
