package coupon

import (
	"coupon-settlement/internal/domain/money"
)

// ComputeDiscount returns the discount amount for an eligible coupon applied
// to orderAmount. Pure function of its inputs; quota state never affects it.
//
// Guarantees 0 <= result <= orderAmount.
func ComputeDiscount(c *Coupon, orderAmount money.Money) money.Money {
	d := c.Discount()

	if !d.IsPercentage() {
		// Never discount more than the order costs.
		return money.Money(d.Value().IntPart()).Min(orderAmount)
	}

	raw := orderAmount.Percent(d.Value())
	if max := d.MaxDiscount(); max != nil {
		raw = raw.Min(*max)
	}
	return raw.Min(orderAmount)
}
