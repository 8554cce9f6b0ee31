package picker

import "product-picker/internal/model"

// CheckState drives the three-state product checkbox.
type CheckState string

const (
	Unchecked     CheckState = "unchecked"
	Indeterminate CheckState = "indeterminate"
	Checked       CheckState = "checked"
)

// ToggleProduct deselects a fully selected product, otherwise selects it
// with every variant from the fetched product data. A partially selected
// product becomes fully selected in place.
func (s *Session) ToggleProduct(productID model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.NewSessionClosedError()
	}
	s.touch()

	i := s.entryIndexLocked(productID)
	product, known := s.productLocked(productID)
	if !known {
		// Rows seeded from the committed list may not be among the results
		// yet; they can still be deselected.
		if i < 0 {
			return model.NewNotFoundError("product")
		}
		s.removeEntryLocked(i)
		return nil
	}

	switch {
	case i >= 0 && fullySelected(&s.working[i], product):
		s.removeEntryLocked(i)
	case i >= 0:
		s.working[i] = model.NewEntry(*product, product.Variants)
	default:
		s.working = append(s.working, model.NewEntry(*product, product.Variants))
	}
	return nil
}

// ToggleVariant flips one variant. Without an entry for the product a new
// entry holding only this variant is created. Removing the last variant of
// an entry follows the session's EmptyEntryPolicy.
func (s *Session) ToggleVariant(productID, variantID model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.NewSessionClosedError()
	}
	s.touch()

	i := s.entryIndexLocked(productID)
	if i >= 0 && s.working[i].HasVariant(variantID) {
		updated := s.working[i].WithoutVariant(variantID)
		if len(updated.Variants) == 0 && s.policy == model.DropEmptyEntry {
			s.removeEntryLocked(i)
		} else {
			s.working[i] = updated
		}
		return nil
	}

	product, known := s.productLocked(productID)
	if !known {
		return model.NewNotFoundError("product")
	}
	v, ok := product.Variant(variantID)
	if !ok {
		return model.NewNotFoundError("variant")
	}

	if i < 0 {
		s.working = append(s.working, model.NewEntry(*product, []model.Variant{v}))
		return nil
	}
	entry := s.working[i].Clone()
	entry.Variants = append(entry.Variants, v)
	s.working[i] = entry
	return nil
}

// IsFullySelected reports whether the product's entry holds every variant
// of the fetched product.
func (s *Session) IsFullySelected(productID model.ID) bool {
	return s.CheckState(productID) == Checked
}

// IsPartiallySelected reports whether some but not all variants of the
// product are selected.
func (s *Session) IsPartiallySelected(productID model.ID) bool {
	return s.CheckState(productID) == Indeterminate
}

// CheckState returns the checkbox state of a fetched product. Products not
// among the results are Unchecked.
func (s *Session) CheckState(productID model.ID) CheckState {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.productLocked(productID)
	if !ok {
		return Unchecked
	}
	return s.checkStateLocked(product)
}

// Working returns a copy of the working selection.
func (s *Session) Working() []model.SelectionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneEntries(s.working)
}

// SelectedCount is the number of products in the working selection.
func (s *Session) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.working)
}

func (s *Session) checkStateLocked(product *model.Product) CheckState {
	i := s.entryIndexLocked(product.ID)
	if i < 0 {
		return Unchecked
	}
	entry := &s.working[i]
	if fullySelected(entry, product) {
		return Checked
	}
	for _, v := range product.Variants {
		if entry.HasVariant(v.ID) {
			return Indeterminate
		}
	}
	return Unchecked
}

// fullySelected: the entry contains every variant id of the product.
func fullySelected(entry *model.SelectionEntry, product *model.Product) bool {
	for _, v := range product.Variants {
		if !entry.HasVariant(v.ID) {
			return false
		}
	}
	return true
}

func (s *Session) productLocked(id model.ID) (*model.Product, bool) {
	i, ok := s.resultIndex[id]
	if !ok {
		return nil, false
	}
	return &s.results[i], true
}

func (s *Session) entryIndexLocked(productID model.ID) int {
	for i, e := range s.working {
		if e.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Session) removeEntryLocked(i int) {
	s.working = append(s.working[:i:i], s.working[i+1:]...)
}
