package core

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

const (
	StatusPending Status = "Pending"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
	StatusSettled Status = "Settled"
)

// DocumentVersion is stamped on every document this package writes.
// Documents without a version predate it and are migrated on load.
const DocumentVersion = 2

const dateLayout = "2006-01-02"

type (
	Status string

	Date struct {
		time.Time
	}

	// FarmerRecord is one harvesting job billed to one farmer.
	FarmerRecord struct {
		ID         string   `json:"id"`
		BillNo     BillNo   `json:"billNo,omitempty"`
		Name       string   `json:"name"`
		Date       Date     `json:"date"`
		Contact    string   `json:"contact"`
		Place      string   `json:"place"`
		Crop       string   `json:"crop"`
		Acres      Decimal  `json:"acres"`
		Rate       Decimal  `json:"rate"`
		Total      Decimal  `json:"total"`
		PaidAmount *Decimal `json:"paidAmount,omitempty"` // nil on legacy records
		Status     Status   `json:"status"`
		IsSettled  bool     `json:"isSettled"`
		Comments   string   `json:"comments"`
	}

	// ExpenseRecord is one operating expense entry.
	ExpenseRecord struct {
		ID       string  `json:"id"`
		Date     Date    `json:"date"`
		Category string  `json:"category"`
		Desc     string  `json:"desc"`
		Amount   Decimal `json:"amount"`
	}

	// Document is the persisted layout shared by every replica.
	Document struct {
		Version  int             `json:"version,omitempty"`
		Farmers  []FarmerRecord  `json:"farmers"`
		Expenses []ExpenseRecord `json:"expenses"`
	}
)

var contactPattern = regexp.MustCompile(`^\d{10}$`)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD, or an RFC 3339 timestamp whose date part is kept.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, &ValidationError{Field: "date", Reason: "is required"}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// Key returns the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) Key() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Display formats the date the way bills print it (dd/mm/yyyy).
func (d Date) Display() string {
	if d.IsZero() {
		return "-"
	}
	return d.Format("02/01/2006")
}

func (d Date) String() string {
	return d.Key()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Key())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON keeps an explicit "paidAmount": null as a zero payment.
// Only a record without the key is migrated from its legacy status.
func (r *FarmerRecord) UnmarshalJSON(data []byte) error {
	type plain FarmerRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.PaidAmount == nil {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(data, &keys); err == nil {
			if _, ok := keys["paidAmount"]; ok {
				p.PaidAmount = &Decimal{}
			}
		}
	}
	*r = FarmerRecord(p)
	return nil
}

// Paid returns the collected amount, treating an absent value as zero.
func (r FarmerRecord) Paid() Decimal {
	if r.PaidAmount == nil {
		return Decimal{}
	}
	return *r.PaidAmount
}

// Balance is always derived from total and paid amount.
func (r FarmerRecord) Balance() Decimal {
	return r.Total.Sub(r.Paid())
}

// Clone returns a copy that shares no pointers with r.
func (r FarmerRecord) Clone() FarmerRecord {
	if r.PaidAmount != nil {
		paid := *r.PaidAmount
		r.PaidAmount = &paid
	}
	return r
}

// Validate checks the fields a new or edited bill must carry.
func (r FarmerRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Place) == "" {
		return &ValidationError{Field: "place", Reason: "is required"}
	}
	if strings.TrimSpace(r.Crop) == "" {
		return &ValidationError{Field: "crop", Reason: "is required"}
	}
	if !contactPattern.MatchString(r.Contact) {
		return &ValidationError{Field: "contact", Reason: "must be a 10-digit mobile number"}
	}
	if !r.Acres.IsPositive() {
		return &ValidationError{Field: "acres", Reason: "must be greater than zero"}
	}
	if !r.Rate.IsPositive() {
		return &ValidationError{Field: "rate", Reason: "must be greater than zero"}
	}
	if r.Paid().IsNegative() {
		return &ValidationError{Field: "paidAmount", Reason: "cannot be negative"}
	}
	return nil
}

func (e ExpenseRecord) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if len(e.Desc) > 200 {
		return &ValidationError{Field: "desc", Reason: "too long (max 200 characters)"}
	}
	return nil
}

// DecodeDocument parses a persisted document. Both collections must be
// present; an empty array is fine, a missing key is not.
func DecodeDocument(data []byte) (Document, error) {
	var raw struct {
		Version  int              `json:"version"`
		Farmers  *[]FarmerRecord  `json:"farmers"`
		Expenses *[]ExpenseRecord `json:"expenses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, &PersistenceError{Replica: "document", Op: "decode", Err: err}
	}
	if raw.Farmers == nil || raw.Expenses == nil {
		return Document{}, &ValidationError{Field: "document", Reason: "must contain both farmers and expenses"}
	}
	if raw.Version > DocumentVersion {
		return Document{}, &ValidationError{Field: "version", Reason: "is newer than this program supports"}
	}
	return Document{Version: raw.Version, Farmers: *raw.Farmers, Expenses: *raw.Expenses}, nil
}

// EncodeDocument writes doc indented by two spaces, stamped with the
// current DocumentVersion.
func EncodeDocument(doc Document) ([]byte, error) {
	doc.Version = DocumentVersion
	if doc.Farmers == nil {
		doc.Farmers = []FarmerRecord{}
	}
	if doc.Expenses == nil {
		doc.Expenses = []ExpenseRecord{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
