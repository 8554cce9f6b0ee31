package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountType is the kind of reduction a discount applies.
type DiscountType string

const (
	// DiscountPercentOff takes Amount percent off the price.
	DiscountPercentOff DiscountType = "off"

	// DiscountFlat subtracts Amount from the price.
	DiscountFlat DiscountType = "fixed"
)

// Default values for a freshly added discount.
const (
	DefaultDiscountAmount = "20"
	DefaultDiscountType   = DiscountPercentOff
)

// Discount is a per-product or per-variant price reduction edited in the
// selection list. Amount stays a string so partially typed input survives
// round trips through the view.
type Discount struct {
	Active bool         `json:"is_active"`
	Amount string       `json:"amount"`
	Type   DiscountType `json:"type"`
}

// NewDiscount returns the discount a row gets when the user first adds one.
func NewDiscount() Discount {
	return Discount{Active: true, Amount: DefaultDiscountAmount, Type: DefaultDiscountType}
}

// DiscountKey is productID for product-level discounts and
// productID-variantID for variant-level discounts.
func DiscountKey(productID, variantID ID) string {
	if variantID == "" {
		return string(productID)
	}
	return string(productID) + "-" + string(variantID)
}

// ParseDiscountType validates a discount type name.
func ParseDiscountType(s string) (DiscountType, error) {
	switch DiscountType(s) {
	case DiscountPercentOff, DiscountFlat:
		return DiscountType(s), nil
	default:
		return "", NewValidationError("type", fmt.Sprintf("%q is not one of off, fixed", s))
	}
}

// ParseAmount parses a decimal amount string. Empty parses as zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", fmt.Sprintf("%q is not a number", s))
	}
	return d, nil
}

// Apply returns price after the discount. Inactive discounts return price
// unchanged. Results never go below zero.
// Examples: 100 with 20 off → 80, 100 with 15 fixed → 85, 10 with 15 fixed → 0
func (d Discount) Apply(price decimal.Decimal) (decimal.Decimal, error) {
	if !d.Active {
		return price, nil
	}
	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return price, err
	}
	if amount.IsNegative() {
		return price, NewValidationError("amount", "must not be negative")
	}

	var out decimal.Decimal
	switch d.Type {
	case DiscountPercentOff:
		if amount.GreaterThan(decimal.NewFromInt(100)) {
			return price, NewValidationError("amount", "percentage must not exceed 100")
		}
		out = price.Mul(decimal.NewFromInt(100).Sub(amount)).Div(decimal.NewFromInt(100))
	case DiscountFlat:
		out = price.Sub(amount)
	default:
		return price, NewValidationError("type", fmt.Sprintf("%q is not one of off, fixed", d.Type))
	}

	if out.IsNegative() {
		return decimal.Zero, nil
	}
	return out.Round(2), nil
}
