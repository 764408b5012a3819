package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FirstBillNo seeds the bill sequence in a four-digit range.
const FirstBillNo BillNo = 1001

// BillNo is the human-facing sequential bill number. Zero means unassigned.
type BillNo int64

func (b BillNo) String() string {
	if b == 0 {
		return ""
	}
	return strconv.FormatInt(int64(b), 10)
}

// maxBillNo is the largest bill number a JSON number holds exactly.
const maxBillNo = 1 << 53

// UnmarshalJSON coerces anything that is not a whole number in
// [0, maxBillNo], or a string holding one, to zero.
func (b *BillNo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			*b = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > maxBillNo || f != math.Trunc(f) {
		*b = 0
		return nil
	}
	*b = BillNo(f)
	return nil
}

// NextBillNo allocates the number for a new record. It is never used on
// edits: an existing record keeps its number for life.
func NextBillNo(records []FarmerRecord) BillNo {
	var highest BillNo
	for _, r := range records {
		if r.BillNo > highest {
			highest = r.BillNo
		}
	}
	if highest < 1000 {
		return FirstBillNo
	}
	return highest + 1
}

// ComputeTotal prices a job: acres times rate, rounded to a whole currency unit.
func ComputeTotal(acres, rate Decimal) Decimal {
	return acres.Mul(rate).Round(0)
}
