package cart

import (
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-keramik/internal/pricing"
)

var (
	// ErrStockExceeded is returned when a quantity change would pass the stock ceiling.
	ErrStockExceeded = errors.New("cart: requested quantity exceeds available stock")
	// ErrOutOfStock is returned when adding a product with no stock at all.
	ErrOutOfStock = errors.New("cart: product out of stock")
	// ErrNotFound indicates the product is not present in the cart.
	ErrNotFound = errors.New("cart: item not found")
	// ErrRemovalConfirmation signals that dropping the quantity to zero requires
	// an explicit Remove call. The line is left untouched.
	ErrRemovalConfirmation = errors.New("cart: removal requires confirmation")
	// ErrInvalidQty is returned for non-positive requested quantities on Add.
	ErrInvalidQty = errors.New("cart: qty must be positive")
)

// Product carries the catalog data needed to open a cart line. Stock becomes
// the line's ceiling and is refreshed by the caller on lookup.
type Product struct {
	ID            uuid.UUID
	Name          string
	Price         pricing.Money
	DiscountPrice *pricing.Money
	Stock         int
}

// UnitPrice resolves the effective price: the discounted price when present,
// the regular price otherwise.
func (p Product) UnitPrice() pricing.Money {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.Price
}

// Line is a single cart entry. Invariant: 0 < Qty <= StockCeiling.
type Line struct {
	ProductID    uuid.UUID
	Name         string
	UnitPrice    pricing.Money
	Qty          int
	StockCeiling int
}

// Subtotal returns the line amount in minor units.
func (l Line) Subtotal() pricing.Money {
	return pricing.Money(l.Qty) * l.UnitPrice
}

// Cart is an ordered collection of lines keyed by product ID. It is not safe
// for concurrent use; the owning session serializes access.
type Cart struct {
	lines []Line
	index map[uuid.UUID]int
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{index: make(map[uuid.UUID]int)}
}

// Add inserts a new line or increments an existing one. The mutation is
// rejected without side effects when it would exceed the stock ceiling.
func (c *Cart) Add(p Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	if pos, ok := c.index[p.ID]; ok {
		// The caller looks the product up on every add, so the fresh stock
		// figure supersedes the ceiling captured when the line was opened.
		if c.lines[pos].Qty+qty > p.Stock {
			return ErrStockExceeded
		}
		c.lines[pos].Qty += qty
		c.lines[pos].StockCeiling = p.Stock
		return nil
	}
	if p.Stock <= 0 {
		return ErrOutOfStock
	}
	if qty > p.Stock {
		return ErrStockExceeded
	}
	c.lines = append(c.lines, Line{
		ProductID:    p.ID,
		Name:         p.Name,
		UnitPrice:    p.UnitPrice(),
		Qty:          qty,
		StockCeiling: p.Stock,
	})
	c.index[p.ID] = len(c.lines) - 1
	return nil
}

// SetQty replaces a line quantity. A requested quantity of zero or less does
// not mutate; it returns ErrRemovalConfirmation so the caller can run the
// deliberate two-step removal.
func (c *Cart) SetQty(productID uuid.UUID, qty int) error {
	pos, ok := c.index[productID]
	if !ok {
		return ErrNotFound
	}
	if qty <= 0 {
		return ErrRemovalConfirmation
	}
	if qty > c.lines[pos].StockCeiling {
		return ErrStockExceeded
	}
	c.lines[pos].Qty = qty
	return nil
}

// Remove deletes the line for the given product. Removing an absent product
// is a no-op.
func (c *Cart) Remove(productID uuid.UUID) {
	pos, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	delete(c.index, productID)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].ProductID] = i
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[uuid.UUID]int)
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line returns the line for a product when present.
func (c *Cart) Line(productID uuid.UUID) (Line, bool) {
	pos, ok := c.index[productID]
	if !ok {
		return Line{}, false
	}
	return c.lines[pos], true
}

// PricingItems converts the cart into the pricing engine's input shape.
func (c *Cart) PricingItems() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, pricing.Item{Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return items
}

// Subtotal sums unit price times quantity over all lines.
func (c *Cart) Subtotal() pricing.Money {
	var total pricing.Money
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}
