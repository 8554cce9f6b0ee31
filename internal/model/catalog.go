// Package model defines the catalog, selection, and discount types shared by
// the picker service and its upstream client.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ID is a catalog identifier. The search endpoint sends numeric ids; the
// service treats every id as an opaque string.
type ID string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Image is the product thumbnail reference.
type Image struct {
	ID  ID     `json:"id"`
	Src string `json:"src"`
}

// Variant is one purchasable option of a product.
type Variant struct {
	ID                ID              `json:"id"`
	ProductID         ID              `json:"product_id,omitempty"`
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price"`
	InventoryQuantity *int            `json:"inventory_quantity,omitempty"`
}

// Product is a catalog product as returned by the search endpoint.
// Products are read-only from the service's point of view.
type Product struct {
	ID       ID        `json:"id"`
	Title    string    `json:"title"`
	Image    *Image    `json:"image,omitempty"`
	Variants []Variant `json:"variants"`
}

// VariantIDs returns the variant ids in catalog order.
func (p *Product) VariantIDs() []ID {
	ids := make([]ID, len(p.Variants))
	for i, v := range p.Variants {
		ids[i] = v.ID
	}
	return ids
}

// Variant looks up a variant by id.
func (p *Product) Variant(id ID) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// SelectionEntry is a product row in the selection list together with the
// subset of its variants the user picked. Variants may be empty: placeholder
// rows and entries whose variants were all removed under the retain policy.
type SelectionEntry struct {
	ID       ID        `json:"id"`
	Title    string    `json:"title"`
	Image    *Image    `json:"image,omitempty"`
	Variants []Variant `json:"variants"`
}

// NewEntry builds a selection entry for p holding the given variants.
func NewEntry(p Product, variants []Variant) SelectionEntry {
	return SelectionEntry{
		ID:       p.ID,
		Title:    p.Title,
		Image:    p.Image,
		Variants: append([]Variant{}, variants...),
	}
}

// HasVariant reports whether the entry holds the variant.
func (e *SelectionEntry) HasVariant(id ID) bool {
	return e.variantIndex(id) >= 0
}

func (e *SelectionEntry) variantIndex(id ID) int {
	for i, v := range e.Variants {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// WithoutVariant returns a copy of the entry with the variant removed.
func (e SelectionEntry) WithoutVariant(id ID) SelectionEntry {
	out := e.Clone()
	if i := out.variantIndex(id); i >= 0 {
		out.Variants = append(out.Variants[:i], out.Variants[i+1:]...)
	}
	return out
}

// Clone returns a deep copy of the entry.
func (e SelectionEntry) Clone() SelectionEntry {
	e.Variants = append([]Variant{}, e.Variants...)
	if e.Image != nil {
		img := *e.Image
		e.Image = &img
	}
	return e
}

// CloneEntries deep-copies a selection list. A nil input yields an empty,
// non-nil slice so JSON responses always carry an array.
func CloneEntries(entries []SelectionEntry) []SelectionEntry {
	out := make([]SelectionEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// EmptyEntryPolicy decides what happens to a selection entry when its last
// variant is removed.
type EmptyEntryPolicy string

const (
	// DropEmptyEntry removes the entry together with its last variant.
	DropEmptyEntry EmptyEntryPolicy = "drop"

	// RetainEmptyEntry keeps the entry with an empty variant list.
	RetainEmptyEntry EmptyEntryPolicy = "retain"
)

// ParseEmptyEntryPolicy validates a policy name. Empty selects DropEmptyEntry.
func ParseEmptyEntryPolicy(s string) (EmptyEntryPolicy, error) {
	switch EmptyEntryPolicy(s) {
	case "", DropEmptyEntry:
		return DropEmptyEntry, nil
	case RetainEmptyEntry:
		return RetainEmptyEntry, nil
	default:
		return "", fmt.Errorf("unknown empty entry policy %q (want drop or retain)", s)
	}
}
