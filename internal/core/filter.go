package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Filter narrows the farmer listing. The zero Filter matches everything.
type Filter struct {
	// Query is matched case-insensitively against name, place, contact,
	// crop and bill number.
	Query string
	// From and To bound the job date inclusively; zero means open.
	From Date
	To   Date
}

func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Query) == "" && f.From.IsZero() && f.To.IsZero()
}

// Key identifies the filter in caches.
func (f Filter) Key() string {
	return fmt.Sprintf("%s|%s|%s", strings.ToLower(strings.TrimSpace(f.Query)), f.From.Key(), f.To.Key())
}

func (f Filter) Match(r FarmerRecord) bool {
	if !f.From.IsZero() && r.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To.Time) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Query))
	if term == "" {
		return true
	}
	for _, field := range []string{r.Name, r.Place, r.Contact, r.Crop, r.BillNo.String()} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// PresetRange resolves the quick date filters: today, yesterday, month
// (first of the month through today) and all.
func PresetRange(preset string, now time.Time) (from, to Date, err error) {
	today := DateOf(now)
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "today":
		return today, today, nil
	case "yesterday":
		y := DateOf(now.AddDate(0, 0, -1))
		return y, y, nil
	case "month":
		return NewDate(now.Year(), int(now.Month()), 1), today, nil
	case "", "all":
		return Date{}, Date{}, nil
	}
	return Date{}, Date{}, &ValidationError{Field: "range", Reason: "must be one of today, yesterday, month, all"}
}

// FilterFarmers returns the reconciled records matching f, newest first.
func FilterFarmers(records []FarmerRecord, f Filter) []FarmerRecord {
	out := make([]FarmerRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, Normalize(r.Clone()))
		}
	}
	SortFarmers(out)
	return out
}

// SortFarmers orders records newest date first. Equal dates keep their order.
func SortFarmers(records []FarmerRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date.Time)
	})
}

// SortExpenses orders expenses newest date first. Equal dates keep their order.
func SortExpenses(records []ExpenseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date.Time)
	})
}
