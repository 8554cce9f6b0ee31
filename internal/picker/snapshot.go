package picker

import "product-picker/internal/model"

// VariantView is a result variant with its checkbox state.
type VariantView struct {
	model.Variant
	Selected bool `json:"selected"`
}

// ProductView is a result row ready for rendering.
type ProductView struct {
	ID       model.ID      `json:"id"`
	Title    string        `json:"title"`
	Image    *model.Image  `json:"image,omitempty"`
	Check    CheckState    `json:"check"`
	Variants []VariantView `json:"variants"`
}

// Snapshot is a consistent read of all session state.
type Snapshot struct {
	State         State                  `json:"state"`
	SearchText    string                 `json:"search_text"`
	DebouncedText string                 `json:"debounced_text"`
	Page          int                    `json:"page"`
	HasMore       bool                   `json:"has_more"`
	Generation    uint64                 `json:"generation"`
	Results       []ProductView          `json:"results"`
	Selection     []model.SelectionEntry `json:"selection"`
	SelectedCount int                    `json:"selected_count"`
	LastError     string                 `json:"last_error,omitempty"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]ProductView, len(s.results))
	for i := range s.results {
		p := &s.results[i]
		entry := s.entryIndexLocked(p.ID)
		variants := make([]VariantView, len(p.Variants))
		for j, v := range p.Variants {
			variants[j] = VariantView{
				Variant:  v,
				Selected: entry >= 0 && s.working[entry].HasVariant(v.ID),
			}
		}
		results[i] = ProductView{
			ID:       p.ID,
			Title:    p.Title,
			Image:    p.Image,
			Check:    s.checkStateLocked(p),
			Variants: variants,
		}
	}

	snap := Snapshot{
		State:         s.stateLocked(),
		SearchText:    s.searchText,
		DebouncedText: s.debouncedText,
		Page:          s.page,
		HasMore:       s.hasMore,
		Generation:    s.generation,
		Results:       results,
		Selection:     model.CloneEntries(s.working),
		SelectedCount: len(s.working),
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
