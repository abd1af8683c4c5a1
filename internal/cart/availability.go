package cart

import (
	"strings"

	"marketcrm/backend/internal/domain"
)

const (
	LowStockThreshold = 5
	// MaxSelectable caps the quantity picker offered for a single add.
	MaxSelectable = 10
)

// StockState classifies a remaining quantity.
func StockState(remaining int) string {
	switch {
	case remaining <= 0:
		return domain.StockOutOfStock
	case remaining < LowStockThreshold:
		return domain.StockLow
	default:
		return domain.StockInStock
	}
}

// FilterAvailable returns every catalog product whose name contains term
// (case-insensitive), in catalog order, annotated with what the cart leaves
// available. Out-of-stock products stay in the result with adding disabled.
func FilterAvailable(products []domain.Product, c *Cart, term string) []domain.ProductAvailability {
	needle := strings.ToLower(strings.TrimSpace(term))
	result := make([]domain.ProductAvailability, 0, len(products))
	for _, product := range products {
		if needle != "" && !strings.Contains(strings.ToLower(product.Name), needle) {
			continue
		}
		remaining := Remaining(product, c)
		item := domain.ProductAvailability{
			Product:    product,
			Remaining:  remaining,
			StockState: StockState(remaining),
			CanAdd:     remaining > 0,
		}
		if remaining > 0 {
			item.MaxSelectable = min(remaining, MaxSelectable)
		} else {
			item.RestockNote = restockNote(product)
		}
		result = append(result, item)
	}
	return result
}

func restockNote(product domain.Product) string {
	if product.RestockDate == nil {
		return "Restock date TBD"
	}
	return "Restock expected: " + product.RestockDate.Format("2006-01-02")
}
