// Package phone normalises phone numbers shared through the bots.
package phone

import "strings"

// Normalize keeps digits and '+'.
func Normalize(phone string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, phone)
}

// E164 formats a Russian number as +7XXXXXXXXXX; a leading 8 is the domestic
// trunk prefix. Other numbers only get a '+'.
func E164(phone string) string {
	digits := digitsOnly(phone)
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "7"):
		return "+" + digits
	case strings.HasPrefix(digits, "8"):
		return "+7" + digits[1:]
	}
	return "+" + digits
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
