package cart

import (
	"github.com/shopspring/decimal"

	"marketcrm/backend/internal/domain"
	"marketcrm/backend/internal/money"
)

// ComputeTotals sums the lines and applies the discount. Negative discounts
// count as zero; a discount above the subtotal floors the total at zero and
// marks the result as clamped.
func ComputeTotals(lines []domain.CartLine, discount decimal.Decimal) domain.Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount())
	}
	subtotal = money.Round(subtotal)

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = money.Round(discount)

	totals := domain.Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}
	if totals.Total.IsNegative() {
		totals.Total = decimal.Zero
		totals.Clamped = true
	}
	return totals
}

// ParseDiscount turns operator input into a discount amount. The input may
// carry the currency symbol and thousands separators. Anything that is not a
// non-negative number becomes zero.
func ParseDiscount(raw string, symbol string) decimal.Decimal {
	value, err := money.Parse(raw, symbol)
	if err != nil || value.IsNegative() {
		return decimal.Zero
	}
	return value
}
