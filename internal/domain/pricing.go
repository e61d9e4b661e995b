package domain

import "math"

// DefaultTaxRateBasisPoints is the fixed 20% tax applied to every order.
const DefaultTaxRateBasisPoints = 2000

const basisPointsScale = 10000

// Money is an amount in minor units (cents).
type Money int64

// MoneyFromMajor converts a decimal amount to minor units, rounding half away from zero.
func MoneyFromMajor(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// Major returns the amount in major units.
func (m Money) Major() float64 {
	return float64(m) / 100
}

// OrderSummary is derived from a cart and never persisted.
type OrderSummary struct {
	Subtotal           Money
	Tax                Money
	Total              Money
	TaxRateBasisPoints int
	ItemCount          int
}

// LineTotal returns unit price times quantity in minor units.
func LineTotal(item LineItem) Money {
	return MoneyFromMajor(item.UnitPrice) * Money(item.Quantity)
}

// Summarize computes subtotal, tax and total for the cart.
func Summarize(cart Cart, taxRateBasisPoints int) OrderSummary {
	if taxRateBasisPoints < 0 {
		taxRateBasisPoints = 0
	}
	var subtotal Money
	for _, item := range cart.Items {
		subtotal += LineTotal(item)
	}
	tax := applyRate(subtotal, taxRateBasisPoints)
	return OrderSummary{
		Subtotal:           subtotal,
		Tax:                tax,
		Total:              subtotal + tax,
		TaxRateBasisPoints: taxRateBasisPoints,
		ItemCount:          cart.ItemCount(),
	}
}

func applyRate(amount Money, basisPoints int) Money {
	if amount <= 0 || basisPoints == 0 {
		return 0
	}
	scaled := int64(amount) * int64(basisPoints)
	return Money((scaled + basisPointsScale/2) / basisPointsScale)
}
