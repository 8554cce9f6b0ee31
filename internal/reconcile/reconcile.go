// Package reconcile computes the delta between a widget's selection list and
// the list a picker session commits over it. The store logs the delta and the
// commit routes return it so callers can sync downstream state (carts,
// bundles) without diffing the lists themselves.
package reconcile

import "product-picker/internal/model"

// SelectionDiff describes what a commit changed.
// Order within each slice follows the list the item came from.
type SelectionDiff struct {
	AddedProducts   []model.ID   `json:"added_products"`   // in desired but not current
	RemovedProducts []model.ID   `json:"removed_products"` // in current but not desired
	AddedVariants   []VariantRef `json:"added_variants"`   // new variants of products in both
	RemovedVariants []VariantRef `json:"removed_variants"` // dropped variants of products in both
	Reordered       bool         `json:"reordered"`        // surviving products changed relative order
}

// VariantRef names one variant of one product.
type VariantRef struct {
	ProductID model.ID `json:"product_id"`
	VariantID model.ID `json:"variant_id"`
}

// IsEmpty returns true if the commit left the list as it was.
func (d *SelectionDiff) IsEmpty() bool {
	return len(d.AddedProducts) == 0 && len(d.RemovedProducts) == 0 &&
		len(d.AddedVariants) == 0 && len(d.RemovedVariants) == 0 && !d.Reordered
}

// DiffSelections computes the delta between the current and desired lists.
// Matching is by product id, then by variant id within a product.
//
// Algorithm:
//  1. Index both lists by product id
//  2. Products only in desired are added, products only in current are removed
//  3. For products in both, diff the variant id sets
//  4. Compare the order of the products present in both lists
func DiffSelections(current, desired []model.SelectionEntry) SelectionDiff {
	diff := SelectionDiff{
		AddedProducts:   []model.ID{},
		RemovedProducts: []model.ID{},
		AddedVariants:   []VariantRef{},
		RemovedVariants: []VariantRef{},
	}

	currentByID := indexEntries(current)
	desiredByID := indexEntries(desired)

	var keptDesired []model.ID
	for _, d := range desired {
		c, exists := currentByID[d.ID]
		if !exists {
			diff.AddedProducts = append(diff.AddedProducts, d.ID)
			continue
		}
		keptDesired = append(keptDesired, d.ID)

		added, removed := diffVariants(c, d)
		diff.AddedVariants = append(diff.AddedVariants, added...)
		diff.RemovedVariants = append(diff.RemovedVariants, removed...)
	}

	var keptCurrent []model.ID
	for _, c := range current {
		if _, exists := desiredByID[c.ID]; !exists {
			diff.RemovedProducts = append(diff.RemovedProducts, c.ID)
			continue
		}
		keptCurrent = append(keptCurrent, c.ID)
	}

	for i := range keptCurrent {
		if keptCurrent[i] != keptDesired[i] {
			diff.Reordered = true
			break
		}
	}

	return diff
}

func indexEntries(entries []model.SelectionEntry) map[model.ID]model.SelectionEntry {
	out := make(map[model.ID]model.SelectionEntry, len(entries))
	for _, e := range entries {
		out[e.ID] = e
	}
	return out
}

// diffVariants compares the variant id sets of one product.
func diffVariants(current, desired model.SelectionEntry) (added, removed []VariantRef) {
	for _, v := range desired.Variants {
		if !current.HasVariant(v.ID) {
			added = append(added, VariantRef{ProductID: desired.ID, VariantID: v.ID})
		}
	}
	for _, v := range current.Variants {
		if !desired.HasVariant(v.ID) {
			removed = append(removed, VariantRef{ProductID: current.ID, VariantID: v.ID})
		}
	}
	return added, removed
}
