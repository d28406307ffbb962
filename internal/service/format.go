package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatBRL renders an amount in Brazilian currency notation: R$ 1.234,56
func FormatBRL(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	intPart, fracPart := parts[0], parts[1]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + fracPart
	if negative {
		out = "R$ -" + b.String() + "," + fracPart
	}
	return out
}

// FormatDate renders a date as dd/mm/yyyy
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}
