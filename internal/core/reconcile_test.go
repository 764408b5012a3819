package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paid(s string) *Decimal {
	d := MustDecimal(s)
	return &d
}

func TestReconcileStatus(t *testing.T) {
	cases := []struct {
		name    string
		total   string
		paid    *Decimal
		legacy  Status
		settled bool
		want    Status
		balance string
	}{
		{"nothing paid", "1000", paid("0"), "", false, StatusPending, "1000"},
		{"part paid", "1000", paid("400"), "", false, StatusPartial, "600"},
		{"fully paid", "1000", paid("1000"), "", false, StatusPaid, "0"},
		{"overpaid", "1000", paid("1200"), "", false, StatusPaid, "-200"},
		{"settled with balance", "1000", paid("300"), "", true, StatusSettled, "700"},
		{"settled with nothing paid", "1000", paid("0"), "", true, StatusSettled, "1000"},
		{"legacy paid", "1500", nil, StatusPaid, false, StatusPaid, "0"},
		{"legacy pending", "1500", nil, StatusPending, false, StatusPending, "1500"},
		{"stale persisted status ignored", "1000", paid("0"), StatusPaid, false, StatusPending, "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := FarmerRecord{Total: MustDecimal(tc.total), PaidAmount: tc.paid, Status: tc.legacy, IsSettled: tc.settled}
			got := Reconcile(r)
			assert.Equal(t, tc.want, got.Status)
			assert.Equal(t, tc.balance, got.Balance.String())
			assert.Equal(t, tc.paid == nil, got.Migrated)
			assert.True(t, got.Balance.Equal(r.Total.Sub(got.PaidAmount)), "balance must equal total - paid")
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	records := []FarmerRecord{
		{Total: MustDecimal("2000"), Status: StatusPaid},
		{Total: MustDecimal("2000"), Status: "Partial"},
		{Total: MustDecimal("2000"), PaidAmount: paid("500"), IsSettled: true},
	}
	for _, r := range records {
		once := Normalize(r)
		twice := Normalize(once)
		require.NotNil(t, once.PaidAmount)
		assert.True(t, once.PaidAmount.Equal(*twice.PaidAmount))
		assert.Equal(t, once.Status, twice.Status)
		assert.False(t, Reconcile(once).Migrated)
	}
}

func TestNormalizeMigratesLegacyPaid(t *testing.T) {
	r := Normalize(FarmerRecord{Total: MustDecimal("1800"), Status: StatusPaid})
	require.NotNil(t, r.PaidAmount)
	assert.Equal(t, "1800", r.PaidAmount.String())
	assert.Equal(t, StatusPaid, r.Status)
}

func TestOverdue(t *testing.T) {
	now := time.Date(2024, 6, 30, 10, 0, 0, 0, time.UTC)
	base := FarmerRecord{Total: MustDecimal("1000"), PaidAmount: paid("0")}

	cases := []struct {
		name  string
		date  Date
		mod   func(*FarmerRecord)
		ok    bool
		label string
	}{
		{"recent", NewDate(2024, 6, 10), nil, false, ""},
		{"exactly thirty days rounds up to thirty one", NewDate(2024, 5, 31), nil, true, "31 days"},
		{"forty five days", NewDate(2024, 5, 16), nil, true, "46 days"},
		{"over sixty shows months", NewDate(2024, 3, 1), nil, true, "4 months"},
		{"settled", NewDate(2024, 1, 1), func(r *FarmerRecord) { r.IsSettled = true }, false, ""},
		{"paid", NewDate(2024, 1, 1), func(r *FarmerRecord) { r.PaidAmount = paid("1000") }, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := base.Clone()
			r.Date = tc.date
			if tc.mod != nil {
				tc.mod(&r)
			}
			n, ok := Overdue(r, now)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.label, n.Label)
		})
	}
}
