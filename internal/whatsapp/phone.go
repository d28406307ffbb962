package whatsapp

import (
	"fmt"
	"strings"

	"github.com/ibrasoft/cobranca/internal/domain"
)

const countryCode = "55"

// FormatPhone normalizes a Brazilian phone number to its international
// digit form. Local numbers (10 or 11 digits) gain the country prefix.
func FormatPhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 || len(digits) == 11 {
		digits = countryCode + digits
	}
	if len(digits) < 12 {
		return "", fmt.Errorf("telefone inválido %q: %w", raw, domain.ErrInvalidPayload)
	}
	return digits, nil
}

// ChatID converts a normalized phone into the session chat address
func ChatID(phone string) string {
	return phone + "@c.us"
}
