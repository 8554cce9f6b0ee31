package selection

import (
	"github.com/shopspring/decimal"

	"product-picker/internal/model"
)

// DiscountUpdate carries the fields of a discount edit. Nil fields are left
// as they are.
type DiscountUpdate struct {
	Active *bool               `json:"is_active,omitempty"`
	Amount *string             `json:"amount,omitempty"`
	Type   *model.DiscountType `json:"type,omitempty"`
}

// AddDiscount activates the default discount for a product (variantID empty)
// or a single variant.
func (h *Holder) AddDiscount(productID, variantID model.ID) model.Discount {
	d := model.NewDiscount()

	h.mu.Lock()
	h.discounts[model.DiscountKey(productID, variantID)] = d
	h.mu.Unlock()

	h.emitDiscount()
	return d
}

// UpdateDiscount upserts the discount under productID or productID-variantID.
// A key with no discount yet starts from the default.
func (h *Holder) UpdateDiscount(productID, variantID model.ID, upd DiscountUpdate) (model.Discount, error) {
	if upd.Type != nil {
		if _, err := model.ParseDiscountType(string(*upd.Type)); err != nil {
			return model.Discount{}, err
		}
	}

	key := model.DiscountKey(productID, variantID)

	h.mu.Lock()
	d, ok := h.discounts[key]
	if !ok {
		d = model.NewDiscount()
	}
	if upd.Active != nil {
		d.Active = *upd.Active
	}
	if upd.Amount != nil {
		d.Amount = *upd.Amount
	}
	if upd.Type != nil {
		d.Type = *upd.Type
	}
	h.discounts[key] = d
	h.mu.Unlock()

	h.emitDiscount()
	return d, nil
}

// Discount returns the discount stored under the key, if any.
func (h *Holder) Discount(productID, variantID model.ID) (model.Discount, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.discounts[model.DiscountKey(productID, variantID)]
	return d, ok
}

// emitDiscount notifies only when discount propagation is enabled.
func (h *Holder) emitDiscount() {
	if !h.propagateDiscounts {
		return
	}
	h.emit(ChangeDiscount)
}

// priceLocked resolves the price of v after discounts. A variant discount
// wins over a product discount. Caller holds h.mu.
func (h *Holder) priceLocked(productID model.ID, v model.Variant) decimal.Decimal {
	d, ok := h.discounts[model.DiscountKey(productID, v.ID)]
	if !ok || !d.Active {
		d, ok = h.discounts[model.DiscountKey(productID, "")]
	}
	if !ok {
		return v.Price
	}
	price, err := d.Apply(v.Price)
	if err != nil {
		return v.Price
	}
	return price
}

func cloneDiscounts(in map[string]model.Discount) map[string]model.Discount {
	out := make(map[string]model.Discount, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
