// Package pricing computes the monetary breakdown of a cart. Quote is a pure
// function: identical inputs always produce identical numbers.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidCoupon = errors.New("pricing: invalid or unknown coupon code")

// CouponEffect discriminates how a coupon changes the quote.
type CouponEffect string

const (
	EffectPercentage   CouponEffect = "percentage"
	EffectFixed        CouponEffect = "fixed"
	EffectFreeShipping CouponEffect = "free_shipping"
)

type Coupon struct {
	Code   string          `json:"code"`
	Effect CouponEffect    `json:"effect"`
	Value  decimal.Decimal `json:"value"`
}

// Table maps coupon codes to their effects. It is built once from
// configuration and injected; there is no process-wide coupon state.
type Table map[string]Coupon

// Resolve returns the coupon for code, or ErrInvalidCoupon for unknown codes.
// An empty code means "no coupon" and resolves to nil without error.
func (t Table) Resolve(code string) (*Coupon, error) {
	if code == "" {
		return nil, nil
	}
	c, ok := t[code]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return &c, nil
}

type LineInput struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

var (
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShippingFee       = decimal.RequireFromString("9.99")
	taxRate               = decimal.RequireFromString("0.05")
	oneHundred            = decimal.NewFromInt(100)
)

// Compute produces the pricing breakdown for the given lines and an already
// resolved coupon (nil means none). Shipping is waived at or above the free
// threshold, tax is 5% of the subtotal, and the total is floored at zero.
func Compute(lines []LineInput, coupon *Coupon) Quote {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	shipping := flatShippingFee
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(taxRate).Round(2)

	discount := decimal.Zero
	if coupon != nil {
		switch coupon.Effect {
		case EffectPercentage:
			discount = subtotal.Mul(coupon.Value).Div(oneHundred).Round(2)
		case EffectFixed:
			discount = coupon.Value.Round(2)
		case EffectFreeShipping:
			// The fee stays on its line; the discount line cancels it out.
			discount = shipping
		}
	}

	total := subtotal.Add(shipping).Add(tax).Sub(discount).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Subtotal: subtotal.Round(2),
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}
}
