package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedAmount = errors.New("malformed amount")

// Round rounds to currency precision.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Format renders amount as symbol-prefixed text with thousands separators,
// e.g. Format(1234.5, "$") == "$1,234.50".
func Format(amount decimal.Decimal, symbol string) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return sign + symbol + b.String() + "." + frac
}

// Parse reads operator-entered amount text. Surrounding spaces, a leading
// symbol and thousands separators are accepted; anything else is an error.
func Parse(text, symbol string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(text)
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, symbol))
	}
	if cleaned == "" {
		return decimal.Zero, ErrMalformedAmount
	}
	if strings.Contains(cleaned, ",") {
		if !validGrouping(cleaned) {
			return decimal.Zero, ErrMalformedAmount
		}
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	return value, nil
}

// validGrouping accepts 1,234 and 1,00,000 style separators in the integer
// part. The last group must hold three digits.
func validGrouping(text string) bool {
	whole, frac, _ := strings.Cut(text, ".")
	if strings.Contains(frac, ",") {
		return false
	}
	whole = strings.TrimPrefix(whole, "-")
	groups := strings.Split(whole, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return false
	}
	for i, group := range groups[1:] {
		last := i == len(groups)-2
		if !allDigits(group) || (last && len(group) != 3) || (!last && len(group) != 2 && len(group) != 3) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
