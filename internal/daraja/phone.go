package daraja

import (
	"regexp"
	"strings"
)

var (
	nonDigits  = regexp.MustCompile(`\D`)
	kenyanLine = regexp.MustCompile(`^254[17]\d{8}$`)
)

// NormalizePhone converts a Kenyan phone number to the 254XXXXXXXXX form
// Daraja expects. Accepted inputs: 07XXXXXXXX / 01XXXXXXXX, +254XXXXXXXXX
// and 254XXXXXXXXX; separators and whitespace are stripped.
func NormalizePhone(phone string) (string, bool) {
	phone = nonDigits.ReplaceAllString(strings.TrimSpace(phone), "")

	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = "254" + phone[1:]
	}

	if !kenyanLine.MatchString(phone) {
		return "", false
	}

	return phone, true
}
