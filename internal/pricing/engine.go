package pricing

// Money represents a monetary value stored in minor units (centavos).
type Money = int64

// Item describes a line item used for totals calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed pricing components for a transaction.
type Summary struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money
}

// Compute derives transaction totals from the provided inputs. Tax applies to
// the undiscounted subtotal at the given basis-point rate; the discount is
// clamped to the subtotal and the grand total never goes negative.
func Compute(items []Item, discount Money, taxBps int) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	if taxBps < 0 {
		taxBps = 0
	}
	tax := (subtotal * Money(taxBps)) / 10000
	total := subtotal + tax - discount
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    total,
	}
}
