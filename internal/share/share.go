// Package share formats bills for messaging apps and delivers them.
package share

import (
	"fmt"
	"net/url"
	"strings"

	"harvester/internal/core"
)

const divider = "------------------"

// Text renders the plain-text bill sent to a farmer. Amounts are reconciled
// first, so legacy records show their migrated paid amount.
func Text(r core.FarmerRecord) string {
	rec := core.Reconcile(r)
	crop := r.Crop
	if strings.TrimSpace(crop) == "" {
		crop = "N/A"
	}
	status := string(rec.Status)
	if r.IsSettled {
		status = "Settled (Fully Paid)"
	}

	lines := []string{
		"*Harvester Bill*",
		"Name: " + r.Name,
		"Date: " + r.Date.Display(),
		"Place: " + r.Place,
		"Crop: " + crop,
		divider,
		"Acres: " + r.Acres.String(),
		fmt.Sprintf("Rate: ₹%s/acre", r.Rate),
		fmt.Sprintf("*Total Bill: ₹%s*", r.Total),
		fmt.Sprintf("Amount Paid: ₹%s", rec.PaidAmount),
		fmt.Sprintf("*Balance Due: ₹%s*", rec.Balance),
		divider,
		"Status: " + status,
	}
	return strings.Join(lines, "\n")
}

// WhatsAppLink opens the WhatsApp composer with text prefilled and no
// recipient chosen.
func WhatsAppLink(text string) string {
	return "https://wa.me/?text=" + escapeComponent(text)
}

// escapeComponent percent-encodes s for use inside a query value, spaces as %20.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Recipient converts a stored 10-digit contact to the international form the
// Cloud API expects. Numbers that already carry a country code pass through.
func Recipient(contact, countryCode string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, contact)
	switch {
	case len(digits) == 10:
		return countryCode + digits, nil
	case len(digits) > 10:
		return digits, nil
	}
	return "", &core.ValidationError{Field: "contact", Reason: "must be a 10-digit mobile number"}
}
