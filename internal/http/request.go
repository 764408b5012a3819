package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"harvester/internal/core"
	"harvester/internal/services"
)

// maxFormBytes caps form and JSON bodies; database imports get maxImportBytes.
const (
	maxFormBytes   = 64 << 10
	maxImportBytes = 16 << 20
)

// RequestBodyParser reads a body once and serves values from it whether the
// client sent JSON or a url-encoded form.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBytes))
	return p
}

// Parse decodes the body. JSON is detected by its first byte.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}
	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal([]byte(body), &p.jsonData)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a trimmed, control-character free value.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Bool treats checkbox values ("on") and the usual spellings of true as set.
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab and newlines, then trims.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}

func farmerForm(p *RequestBodyParser, id string) services.FarmerForm {
	return services.FarmerForm{
		ID:         id,
		Name:       p.Get("name"),
		Date:       p.Get("date"),
		Contact:    p.Get("contact"),
		Place:      p.Get("place"),
		Crop:       p.Get("crop"),
		Acres:      p.Get("acres"),
		Rate:       p.Get("rate"),
		PaidAmount: p.Get("paidAmount"),
		IsSettled:  p.Bool("isSettled"),
		Comments:   p.Get("comments"),
	}
}

func expenseForm(p *RequestBodyParser, id string) services.ExpenseForm {
	return services.ExpenseForm{
		ID:       id,
		Date:     p.Get("date"),
		Category: p.Get("category"),
		Desc:     p.Get("desc"),
		Amount:   p.Get("amount"),
	}
}

// filterFromQuery reads q, range (today, yesterday, month, all), from and
// to. Explicit from/to override the bounds a range preset set.
func filterFromQuery(q url.Values, now time.Time) (core.Filter, error) {
	f := core.Filter{Query: sanitizeInput(q.Get("q"))}
	if preset := q.Get("range"); preset != "" {
		from, to, err := core.PresetRange(preset, now)
		if err != nil {
			return core.Filter{}, err
		}
		f.From, f.To = from, to
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, &core.ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		f.From = d
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, &core.ValidationError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		f.To = d
	}
	return f, nil
}
