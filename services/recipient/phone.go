package recipient

import "strings"

// NormalizePhone canonicalises a phone number to digits with a leading country
// code. Separators are dropped, "+CC" and "00CC" prefixes lose their marker
// and a national trunk "0" is replaced by defaultCountryCode, so
// "+60123456789", "0123456789" and "012-345 6789" all become "60123456789".
func NormalizePhone(raw, defaultCountryCode string) string {
	var b strings.Builder
	s := strings.TrimSpace(raw)
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}

	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "+"):
		return digits[1:]
	case strings.HasPrefix(digits, "00"):
		return digits[2:]
	case strings.HasPrefix(digits, "0"):
		return strings.TrimPrefix(defaultCountryCode, "+") + digits[1:]
	default:
		return digits
	}
}
