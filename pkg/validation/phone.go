package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/troikatech/callbridge/pkg/utils"
)

var e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

func ValidateE164(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}

	phone = strings.TrimSpace(phone)

	if !e164Regex.MatchString(phone) {
		return fmt.Errorf("phone number must be in E.164 format (e.g., +15551234567)")
	}

	return nil
}

// NormalizeE164 reduces a dialable number to the carrier's canonical form:
// a leading "+" followed by digits only. No country code is assumed.
func NormalizeE164(phone string) (string, error) {
	digits := utils.DigitsOnly(phone)
	if digits == "" {
		return "", fmt.Errorf("phone number %q contains no digits", phone)
	}
	return "+" + digits, nil
}

// SanitizeString removes null bytes and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
