// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing amounts typed into forms and
// for rendering rupee amounts with Indian digit grouping.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a form value to a non-negative Decimal.
//
// Commas are treated as digit-group separators ("1,50,000" is 150000) and a
// leading rupee sign is ignored. Signs, exponents and anything that is not a
// plain decimal are rejected.
//
// Examples:
//
//	ParseAmount("2.5")      -> 2.5
//	ParseAmount("₹1,500")   -> 1500
//	ParseAmount("-1")       -> error
func ParseAmount(field, s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, &ValidationError{Field: field, Reason: "is required"}
	}
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case !unicode.IsDigit(r):
			return Decimal{}, &ValidationError{Field: field, Reason: "must be a number"}
		}
	}
	if dots > 1 || s == "." {
		return Decimal{}, &ValidationError{Field: field, Reason: "must be a number"}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, &ValidationError{Field: field, Reason: "must be a number"}
	}
	return Decimal{v}, nil
}

// ParseOptionalAmount is ParseAmount with blank input meaning zero.
func ParseOptionalAmount(field, s string) (Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return Decimal{}, nil
	}
	return ParseAmount(field, s)
}

// FormatRupees renders d as "₹1,23,456.5": Indian grouping, at most two
// decimals, trailing zeros dropped.
func FormatRupees(d Decimal) string {
	neg := d.IsNegative()
	if neg {
		d = Decimal{d.Decimal.Neg()}
	}
	s := d.Decimal.Round(2).String()
	intPart, frac, _ := strings.Cut(s, ".")
	out := "₹" + groupIndian(intPart)
	if frac != "" {
		out += "." + frac
	}
	if neg {
		return "-" + out
	}
	return out
}

// FormatAcres renders acreage with one decimal place.
func FormatAcres(d Decimal) string {
	return d.Decimal.StringFixed(1)
}

// groupIndian inserts separators after the last three digits, then every two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}
