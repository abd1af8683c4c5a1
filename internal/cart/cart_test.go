package cart

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcrm/backend/internal/domain"
)

func milk() domain.Product {
	return domain.Product{ID: 1, Name: "Milk", Price: decimal.RequireFromString("2.50"), Stock: 10}
}

func TestAddMergesAndSnapshotsPrice(t *testing.T) {
	c := New()
	product := milk()

	require.NoError(t, c.Add(product, 3))
	product.Price = decimal.RequireFromString("9.99")
	require.NoError(t, c.Add(product, 2))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.True(t, lines[0].Price.Equal(decimal.RequireFromString("2.50")), "price should stay at the first snapshot")
}

func TestAddRejectsBeyondRemaining(t *testing.T) {
	c := New()
	product := milk()
	require.NoError(t, c.Add(product, 3))

	err := c.Add(product, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 7, stockErr.Remaining)
	assert.Equal(t, "only 7 available for Milk", stockErr.Error())
	assert.Equal(t, 3, c.Quantity(product.ID), "cart must be unchanged after a rejected add")
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Add(milk(), 0), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
}

func TestAddOutOfStockMessage(t *testing.T) {
	c := New()
	product := milk()
	product.Stock = 0

	err := c.Add(product, 1)
	require.Error(t, err)
	assert.Equal(t, "Milk is out of stock", err.Error())
}

func TestUpdateQuantityClampsToOne(t *testing.T) {
	c := New()
	product := milk()
	require.NoError(t, c.Add(product, 2))

	require.NoError(t, c.UpdateQuantity(product, -5))
	assert.Equal(t, 1, c.Quantity(product.ID))
}

func TestUpdateQuantityRevalidatesIncrease(t *testing.T) {
	c := New()
	product := milk()
	require.NoError(t, c.Add(product, 10))

	err := c.UpdateQuantity(product, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 10, c.Quantity(product.ID))

	// A shrinking catalog still lets the operator step the line down.
	product.Stock = 4
	require.NoError(t, c.UpdateQuantity(product, -1))
	assert.Equal(t, 9, c.Quantity(product.ID))
}

func TestUpdateQuantityMissingLine(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.UpdateQuantity(milk(), 1), ErrNotInCart)
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := New()
	product := milk()
	require.NoError(t, c.Add(product, 1))

	c.Remove(product.ID)
	before := c.Lines()
	c.Remove(product.ID)
	c.Remove(42)

	assert.Equal(t, before, c.Lines())
	assert.True(t, c.IsEmpty())
}

func TestRemainingCountsOnlyThatProduct(t *testing.T) {
	c := New()
	bread := domain.Product{ID: 2, Name: "Bread", Price: decimal.RequireFromString("1.20"), Stock: 4}
	require.NoError(t, c.Add(milk(), 6))
	require.NoError(t, c.Add(bread, 1))

	assert.Equal(t, 4, Remaining(milk(), c))
	assert.Equal(t, 3, Remaining(bread, c))
	assert.Equal(t, 10, Remaining(milk(), nil))
}

// Random accepted operations never leave a line above its product's stock.
func TestAcceptedOperationsConserveStock(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	products := []domain.Product{
		{ID: 1, Name: "Milk", Price: decimal.RequireFromString("2.50"), Stock: 10},
		{ID: 2, Name: "Bread", Price: decimal.RequireFromString("1.20"), Stock: 3},
		{ID: 3, Name: "Rice", Price: decimal.RequireFromString("12.99"), Stock: 1},
	}

	for round := 0; round < 200; round++ {
		c := New()
		for step := 0; step < 30; step++ {
			product := products[rng.Intn(len(products))]
			switch rng.Intn(3) {
			case 0:
				_ = c.Add(product, 1+rng.Intn(5))
			case 1:
				_ = c.UpdateQuantity(product, rng.Intn(7)-3)
			default:
				if rng.Intn(4) == 0 {
					c.Remove(product.ID)
				}
			}
			for _, p := range products {
				require.LessOrEqual(t, c.Quantity(p.ID), p.Stock, "round %d step %d product %d", round, step, p.ID)
			}
		}
	}
}

func TestComputeTotals(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(milk(), 3))

	totals := ComputeTotals(c.Lines(), decimal.Zero)
	assert.Equal(t, "7.5", totals.Subtotal.String())
	assert.True(t, totals.Total.Equal(totals.Subtotal))

	totals = ComputeTotals(c.Lines(), decimal.RequireFromString("1.00"))
	assert.Equal(t, "6.50", totals.Total.StringFixed(2))
	assert.False(t, totals.Clamped)
}

func TestComputeTotalsClampsOversizedDiscount(t *testing.T) {
	lines := []domain.CartLine{{ProductID: 1, Name: "Milk", Price: decimal.RequireFromString("2.50"), Quantity: 1}}

	totals := ComputeTotals(lines, decimal.RequireFromString("5"))
	assert.True(t, totals.Total.IsZero())
	assert.True(t, totals.Clamped)

	totals = ComputeTotals(lines, decimal.RequireFromString("-3"))
	assert.True(t, totals.Discount.IsZero())
	assert.Equal(t, "2.50", totals.Total.StringFixed(2))
}

func TestComputeTotalsRoundsToCents(t *testing.T) {
	lines := []domain.CartLine{
		{ProductID: 1, Price: decimal.RequireFromString("0.333"), Quantity: 3},
		{ProductID: 2, Price: decimal.RequireFromString("1.10"), Quantity: 7},
	}
	totals := ComputeTotals(lines, decimal.RequireFromString("0.005"))
	assert.Equal(t, "8.70", totals.Subtotal.StringFixed(2))
	assert.True(t, totals.Total.Equal(totals.Subtotal.Sub(totals.Discount)))
}

func TestParseDiscount(t *testing.T) {
	cases := map[string]string{
		"1.00":      "1",
		" 2.5 ":     "2.5",
		"$1,250.75": "1250.75",
		"1e3":       "1000",
		"abc":       "0",
		"NaN":       "0",
		"":          "0",
		"-4":        "0",
		"1.2.3":     "0",
		"1,5":       "0",
		"Rs. 5":     "0",
		"5abc":      "0",
	}
	for raw, want := range cases {
		got := ParseDiscount(raw, "$")
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "ParseDiscount(%q) = %s, want %s", raw, got, want)
	}
}

func TestParseDiscountWithDottedSymbol(t *testing.T) {
	assert.Equal(t, "5.00", ParseDiscount("Rs. 5", "Rs.").StringFixed(2))
	assert.Equal(t, "1250.00", ParseDiscount("Rs.1,250", "Rs.").StringFixed(2))
	assert.True(t, ParseDiscount("$5", "Rs.").IsZero())
}

func TestFilterAvailableFlagsStockStates(t *testing.T) {
	restock := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: 1, Name: "Whole Milk", Price: decimal.RequireFromString("2.50"), Stock: 10},
		{ID: 2, Name: "Skim MILK", Price: decimal.RequireFromString("2.30"), Stock: 6},
		{ID: 3, Name: "Milk Powder", Price: decimal.RequireFromString("8.00"), Stock: 0, RestockDate: &restock},
		{ID: 4, Name: "Bread", Price: decimal.RequireFromString("1.20"), Stock: 80},
		{ID: 5, Name: "Milkshake", Price: decimal.RequireFromString("3.10"), Stock: 0},
	}
	c := New()
	require.NoError(t, c.Add(products[1], 2))

	result := FilterAvailable(products, c, "  milk ")
	require.Len(t, result, 4)

	assert.Equal(t, int64(1), result[0].Product.ID)
	assert.Equal(t, domain.StockInStock, result[0].StockState)
	assert.Equal(t, 10, result[0].MaxSelectable)

	assert.Equal(t, 4, result[1].Remaining)
	assert.Equal(t, domain.StockLow, result[1].StockState)
	assert.True(t, result[1].CanAdd)
	assert.Equal(t, 4, result[1].MaxSelectable)

	assert.Equal(t, domain.StockOutOfStock, result[2].StockState)
	assert.False(t, result[2].CanAdd)
	assert.Equal(t, "Restock expected: 2026-11-02", result[2].RestockNote)

	assert.Equal(t, "Restock date TBD", result[3].RestockNote)
}

func TestFilterAvailableEmptyTermReturnsAll(t *testing.T) {
	products := []domain.Product{milk(), {ID: 2, Name: "Bread", Stock: 1}}
	assert.Len(t, FilterAvailable(products, nil, ""), 2)
}
