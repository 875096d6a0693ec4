package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal     Money           `json:"subtotal"`
	ShippingRate decimal.Decimal `json:"shippingRate"`
	Shipping     Money           `json:"shipping"`
	Total        Money           `json:"total"`
}

// Subtotal sums quantity times unit price, ignoring non-positive quantities.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	return subtotal
}

// Compute calculates order totals with shipping charged as a fraction of the subtotal.
func Compute(items []Item, shippingRate decimal.Decimal) Summary {
	subtotal := Subtotal(items)
	if shippingRate.IsNegative() {
		shippingRate = decimal.Zero
	}
	shipping := ShippingAmount(subtotal, shippingRate)
	return Summary{
		Subtotal:     subtotal,
		ShippingRate: shippingRate,
		Shipping:     shipping,
		Total:        subtotal + shipping,
	}
}

// ShippingAmount applies rate to subtotal, rounding half away from zero to minor units.
func ShippingAmount(subtotal Money, rate decimal.Decimal) Money {
	if subtotal <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(subtotal).Mul(rate).Round(0).IntPart()
}
