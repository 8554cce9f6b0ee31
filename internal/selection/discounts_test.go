package selection

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-picker/internal/model"
)

func strPtr(s string) *string { return &s }

func TestDiscountEditsDoNotNotifyByDefault(t *testing.T) {
	h, changes := newHolder(t, sampleEntries(), Options{})

	d := h.AddDiscount("p1", "")
	assert.Equal(t, model.NewDiscount(), d)

	_, err := h.UpdateDiscount("p1", "", DiscountUpdate{Amount: strPtr("35")})
	require.NoError(t, err)

	got, ok := h.Discount("p1", "")
	require.True(t, ok)
	assert.Equal(t, "35", got.Amount)
	assert.Empty(t, *changes)
}

func TestDiscountEditsNotifyWhenPropagated(t *testing.T) {
	h, changes := newHolder(t, sampleEntries(), Options{PropagateDiscounts: true})

	h.AddDiscount("p1", "v2")

	require.Len(t, *changes, 1)
	c := (*changes)[0]
	assert.Equal(t, ChangeDiscount, c.Kind)
	assert.Contains(t, c.Discounts, "p1-v2")
	assert.Len(t, c.Entries, 3)
}

func TestUpdateDiscountUpsertsFromDefault(t *testing.T) {
	h, _ := newHolder(t, sampleEntries(), Options{})

	flat := model.DiscountFlat
	d, err := h.UpdateDiscount("p2", "v3", DiscountUpdate{Type: &flat})
	require.NoError(t, err)

	assert.True(t, d.Active)
	assert.Equal(t, model.DefaultDiscountAmount, d.Amount)
	assert.Equal(t, model.DiscountFlat, d.Type)
}

func TestUpdateDiscountRejectsUnknownType(t *testing.T) {
	h, _ := newHolder(t, sampleEntries(), Options{})

	bogus := model.DiscountType("bogo")
	_, err := h.UpdateDiscount("p1", "", DiscountUpdate{Type: &bogus})

	assert.True(t, errors.Is(err, model.ErrInvalidRequest))
	_, ok := h.Discount("p1", "")
	assert.False(t, ok)
}

func TestStatePrices(t *testing.T) {
	h, _ := newHolder(t, sampleEntries(), Options{})

	// Product-level 20% off p1, variant-level flat 5 on v2 wins over it.
	h.AddDiscount("p1", "")
	flat := model.DiscountFlat
	_, err := h.UpdateDiscount("p1", "v2", DiscountUpdate{Type: &flat, Amount: strPtr("5")})
	require.NoError(t, err)
	// Unparseable amount falls back to list price.
	_, err = h.UpdateDiscount("p2", "", DiscountUpdate{Amount: strPtr("abc")})
	require.NoError(t, err)

	prices := h.State().Prices

	assert.True(t, prices["p1-v1"].Equal(decimal.NewFromInt(80)), "p1-v1 = %s", prices["p1-v1"])
	assert.True(t, prices["p1-v2"].Equal(decimal.NewFromInt(45)), "p1-v2 = %s", prices["p1-v2"])
	assert.True(t, prices["p2-v3"].Equal(decimal.NewFromInt(80)), "p2-v3 = %s", prices["p2-v3"])
	assert.True(t, prices["p3-v4"].Equal(decimal.NewFromInt(12)), "p3-v4 = %s", prices["p3-v4"])
}
