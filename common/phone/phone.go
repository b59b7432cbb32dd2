// Package phone normalizes dial strings to a canonical international form.
//
// Telephony sources report numbers in whatever shape the softphone client
// happened to have: "5551234567", "+1 (555) 123-4567", "1-555-123-4567".
// Correlation keys and CRM lookups both need a single canonical rendering,
// so every number crosses through Normalize before it is compared or stored.
package phone

import "strings"

// Normalize returns the canonical form of a dial string.
//
// Ten-digit numbers are assumed to be NANP and get a +1 prefix; eleven-digit
// numbers keep their leading country digit. Anything else (short codes,
// extensions, already-mangled input) is passed through unchanged, so callers
// must treat the result as best-effort rather than validated E.164.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	digits := digitsOnly(raw)
	switch len(digits) {
	case 10:
		return "+1 " + digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
	case 11:
		return "+" + digits[:1] + " " + digits[1:4] + "-" + digits[4:7] + "-" + digits[7:]
	}
	return raw
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
