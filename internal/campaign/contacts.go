// Package campaign runs sequential outreach campaigns: every pending
// target in the sheet is attempted once per active sender identity, in
// pool order, with per-sender daily quotas enforced along the way.
package campaign

import "strings"

// FirstValidEmail picks the recipient address from a comma-separated
// cell. The first entry containing an @ wins; addresses are lowercased
// the same way the scraper stores them.
func FirstValidEmail(cell string) (string, bool) {
	for _, part := range strings.Split(cell, ",") {
		email := strings.TrimSpace(part)
		if email != "" && strings.Contains(email, "@") {
			return strings.ToLower(email), true
		}
	}
	return "", false
}

// ValidPhones extracts dialable numbers from a comma-separated cell.
// Only all-digit entries qualify; each is prefixed with + and
// deduplicated in first-seen order.
func ValidPhones(cell string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(cell, ",") {
		phone := strings.TrimSpace(part)
		if phone == "" || !allDigits(phone) {
			continue
		}
		number := "+" + phone
		if _, dup := seen[number]; dup {
			continue
		}
		seen[number] = struct{}{}
		out = append(out, number)
	}
	return out
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
