package cart

import (
	"errors"
	"fmt"

	"marketcrm/backend/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrNotInCart         = errors.New("product not in cart")
)

// StockError reports a rejected quantity together with what is still available.
type StockError struct {
	ProductID int64
	Name      string
	Requested int
	Remaining int
}

func (e *StockError) Error() string {
	if e.Remaining <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Name)
	}
	return fmt.Sprintf("only %d available for %s", e.Remaining, e.Name)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Cart holds the line items of one in-progress sale. It is not safe for
// concurrent use; billing sessions guard it.
type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Quantity returns how many units of the product are already in the cart.
func (c *Cart) Quantity(productID int64) int {
	if idx := c.indexOf(productID); idx >= 0 {
		return c.lines[idx].Quantity
	}
	return 0
}

func (c *Cart) Reset() {
	c.lines = nil
}

// Remaining is the product's stock minus what the cart already reserves.
// A nil cart reserves nothing.
func Remaining(product domain.Product, c *Cart) int {
	if c == nil {
		return product.Stock
	}
	return product.Stock - c.Quantity(product.ID)
}

// Add puts qty units of product into the cart, merging with an existing line.
// The price is snapshotted when the line is first created.
func (c *Cart) Add(product domain.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	remaining := Remaining(product, c)
	if qty > remaining {
		return &StockError{ProductID: product.ID, Name: product.Name, Requested: qty, Remaining: remaining}
	}

	if idx := c.indexOf(product.ID); idx >= 0 {
		c.lines[idx].Quantity += qty
		return nil
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  qty,
	})
	return nil
}

// UpdateQuantity moves an existing line by delta. The result never drops
// below 1; increases are checked against the product's current stock.
func (c *Cart) UpdateQuantity(product domain.Product, delta int) error {
	idx := c.indexOf(product.ID)
	if idx < 0 {
		return ErrNotInCart
	}
	if delta == 0 {
		return nil
	}

	current := c.lines[idx].Quantity
	next := current + delta
	if next < 1 {
		next = 1
	}
	if delta > 0 && product.Stock-next < 0 {
		return &StockError{ProductID: product.ID, Name: product.Name, Requested: next, Remaining: product.Stock - current}
	}
	c.lines[idx].Quantity = next
	return nil
}

// Remove deletes the product's line. Removing an absent product is a no-op.
func (c *Cart) Remove(productID int64) {
	idx := c.indexOf(productID)
	if idx < 0 {
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}
