package core

import (
	"fmt"
	"math"
	"time"
)

// Reconciliation is the derived state of a billing record.
type Reconciliation struct {
	PaidAmount Decimal
	Balance    Decimal
	Status     Status
	// Migrated is set when PaidAmount had to be inferred from a legacy status.
	Migrated bool
}

// Reconcile derives paid amount, balance and status from the stored numeric
// fields. The persisted status is only consulted to migrate records that
// predate paidAmount.
func Reconcile(r FarmerRecord) Reconciliation {
	var out Reconciliation
	if r.PaidAmount == nil {
		out.Migrated = true
		if r.Status == StatusPaid {
			out.PaidAmount = r.Total
		}
	} else {
		out.PaidAmount = *r.PaidAmount
	}
	out.Balance = r.Total.Sub(out.PaidAmount)

	switch {
	case out.PaidAmount.Cmp(r.Total) >= 0:
		out.Status = StatusPaid
	case out.PaidAmount.IsPositive():
		out.Status = StatusPartial
	default:
		out.Status = StatusPending
	}
	if r.IsSettled {
		out.Status = StatusSettled
	}
	return out
}

// Normalize writes the reconciliation back into the record so that the
// migrated paid amount becomes authoritative. It is idempotent.
func Normalize(r FarmerRecord) FarmerRecord {
	rec := Reconcile(r)
	paid := rec.PaidAmount
	r.PaidAmount = &paid
	r.Status = rec.Status
	return r
}

// OverdueNotice is a presentation-only warning for an unpaid bill.
type OverdueNotice struct {
	Days  int
	Label string
}

func (n OverdueNotice) String() string {
	return "Due " + n.Label
}

// overdueAfterDays is the grace period before a balance is flagged.
const overdueAfterDays = 30

// Overdue reports whether r carries an unsettled balance older than the
// grace period, measured in whole days (rounded up) since the job date.
func Overdue(r FarmerRecord, now time.Time) (OverdueNotice, bool) {
	if r.IsSettled || r.Date.IsZero() {
		return OverdueNotice{}, false
	}
	if !Reconcile(r).Balance.IsPositive() {
		return OverdueNotice{}, false
	}
	elapsed := now.Sub(r.Date.Time)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	days := int(math.Ceil(elapsed.Hours() / 24))
	if days <= overdueAfterDays {
		return OverdueNotice{}, false
	}
	label := fmt.Sprintf("%d days", days)
	if days > 2*overdueAfterDays {
		label = fmt.Sprintf("%d months", days/30)
	}
	return OverdueNotice{Days: days, Label: label}, true
}
