package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal is an exact quantity used for acres and currency amounts.
//
// It is written to JSON as a bare number. Reading is lenient because older
// documents stored raw form values: numbers, numeric strings, "" and null
// are all accepted ("" and null read as zero).
type Decimal struct {
	decimal.Decimal
}

func NewDecimal(v int64) Decimal {
	return Decimal{decimal.NewFromInt(v)}
}

func DecimalFromFloat(v float64) Decimal {
	return Decimal{decimal.NewFromFloat(v)}
}

// MustDecimal parses s and panics on failure. Intended for constants and tests.
func MustDecimal(s string) Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("core: invalid decimal %q: %v", s, err))
	}
	return Decimal{d}
}

func (d Decimal) Add(o Decimal) Decimal { return Decimal{d.Decimal.Add(o.Decimal)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d.Decimal.Sub(o.Decimal)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{d.Decimal.Mul(o.Decimal)} }
func (d Decimal) Cmp(o Decimal) int     { return d.Decimal.Cmp(o.Decimal) }
func (d Decimal) Equal(o Decimal) bool  { return d.Decimal.Equal(o.Decimal) }

// Round rounds half away from zero to the given number of places.
func (d Decimal) Round(places int32) Decimal { return Decimal{d.Decimal.Round(places)} }

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = Decimal{}
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*d = Decimal{}
			return nil
		}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", string(b), err)
	}
	*d = Decimal{v}
	return nil
}
