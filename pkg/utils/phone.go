package utils

import (
	"regexp"
	"strings"
)

var (
	e164MaskRe = regexp.MustCompile(`^(\+)(\d{1,3})(\d{3})(\d+)$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

// MaskPhoneNumber masks a phone number for logging
// Example: +15551234567 -> +155512•4567
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	phone = strings.TrimSpace(phone)

	matches := e164MaskRe.FindStringSubmatch(phone)
	if len(matches) == 5 {
		countryCode := matches[2]
		first3 := matches[3]
		lastDigits := matches[4]

		if len(lastDigits) >= 4 {
			last4 := lastDigits[len(lastDigits)-4:]
			masked := strings.Repeat("•", len(lastDigits)-4)
			return "+" + countryCode + first3 + masked + last4
		}
	}

	// Fallback: mask all but last 4 characters
	if len(phone) > 4 {
		masked := strings.Repeat("•", len(phone)-4)
		return masked + phone[len(phone)-4:]
	}

	return strings.Repeat("•", len(phone))
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}
