package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	unknownCrop     = "Unknown"
	defaultCategory = "Misc"
)

// Summary holds the headline figures for the farmer and expense views.
type Summary struct {
	Count int `json:"count"`
	// Revenue, Acres and Pending cover the filtered farmer records.
	Revenue Decimal `json:"revenue"`
	Acres   Decimal `json:"acres"`
	Pending Decimal `json:"pending"`
	// Expenses, Collected and NetProfit always cover everything.
	Expenses  Decimal `json:"expenses"`
	Collected Decimal `json:"collected"`
	NetProfit Decimal `json:"netProfit"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount Decimal `json:"amount"`
}

// MonthBucket is one point of the collected-versus-spent chart.
type MonthBucket struct {
	Key       string  `json:"key"` // YYYY-MM
	Year      int     `json:"year"`
	Month     int     `json:"month"` // 1-12
	Label     string  `json:"label"` // e.g. "Jan 2024"
	Collected Decimal `json:"collected"`
	Expenses  Decimal `json:"expenses"`
}

// Charts bundles every rollup the analytics view draws.
type Charts struct {
	Monthly    []MonthBucket    `json:"monthly"`
	Crops      []CategoryAmount `json:"crops"`
	Categories []CategoryAmount `json:"categories"`
}

// Summarize computes the totals for the records matching f. Net profit is
// cash actually collected across all bills minus all expenses.
func Summarize(farmers []FarmerRecord, expenses []ExpenseRecord, f Filter) Summary {
	var s Summary
	for _, r := range farmers {
		rec := Reconcile(r)
		s.Collected = s.Collected.Add(rec.PaidAmount)
		if !f.Match(r) {
			continue
		}
		s.Count++
		s.Revenue = s.Revenue.Add(r.Total)
		s.Acres = s.Acres.Add(r.Acres)
		s.Pending = s.Pending.Add(rec.Balance)
	}
	for _, e := range expenses {
		s.Expenses = s.Expenses.Add(e.Amount)
	}
	s.NetProfit = s.Collected.Sub(s.Expenses)
	return s
}

// MonthlyRollup groups collected payments and expenses by calendar month,
// oldest month first. Records without a date are skipped.
func MonthlyRollup(farmers []FarmerRecord, expenses []ExpenseRecord) []MonthBucket {
	buckets := map[string]*MonthBucket{}
	bucket := func(d Date) *MonthBucket {
		key := d.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &MonthBucket{
				Key:   key,
				Year:  d.Year(),
				Month: int(d.Month()),
				Label: fmt.Sprintf("%s %d", d.Month().String()[:3], d.Year()),
			}
			buckets[key] = b
		}
		return b
	}
	for _, r := range farmers {
		if r.Date.IsZero() {
			continue
		}
		b := bucket(r.Date)
		b.Collected = b.Collected.Add(Reconcile(r).PaidAmount)
	}
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		b := bucket(e.Date)
		b.Expenses = b.Expenses.Add(e.Amount)
	}

	out := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CropRollup sums acres per normalized crop name in first-seen order.
func CropRollup(farmers []FarmerRecord) []CategoryAmount {
	var r rollup
	for _, f := range farmers {
		r.add(CropLabel(f.Crop), f.Acres)
	}
	return r.items
}

// ExpenseCategoryRollup sums expense amounts per category in first-seen order.
func ExpenseCategoryRollup(expenses []ExpenseRecord) []CategoryAmount {
	var r rollup
	for _, e := range expenses {
		name := strings.TrimSpace(e.Category)
		if name == "" {
			name = defaultCategory
		}
		r.add(name, e.Amount)
	}
	return r.items
}

// BuildCharts computes every chart series over the full collections.
func BuildCharts(farmers []FarmerRecord, expenses []ExpenseRecord) Charts {
	return Charts{
		Monthly:    MonthlyRollup(farmers, expenses),
		Crops:      CropRollup(farmers),
		Categories: ExpenseCategoryRollup(expenses),
	}
}

// CropLabel trims and case-folds a crop name, then capitalizes it.
func CropLabel(crop string) string {
	c := strings.ToLower(strings.TrimSpace(crop))
	if c == "" {
		return unknownCrop
	}
	first, size := utf8.DecodeRuneInString(c)
	return string(unicode.ToUpper(first)) + c[size:]
}

// Suggestions lists the distinct places and crops already used, sorted.
func Suggestions(farmers []FarmerRecord) (places, crops []string) {
	return distinctSorted(farmers, func(r FarmerRecord) string { return r.Place }),
		distinctSorted(farmers, func(r FarmerRecord) string { return r.Crop })
}

type rollup struct {
	index map[string]int
	items []CategoryAmount
}

func (r *rollup) add(name string, amount Decimal) {
	if r.index == nil {
		r.index = map[string]int{}
	}
	i, ok := r.index[name]
	if !ok {
		i = len(r.items)
		r.index[name] = i
		r.items = append(r.items, CategoryAmount{Name: name})
	}
	r.items[i].Amount = r.items[i].Amount.Add(amount)
}

func distinctSorted(farmers []FarmerRecord, field func(FarmerRecord) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range farmers {
		v := field(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
