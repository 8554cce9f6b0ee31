package handler

import (
	"product-picker/internal/model"
	"product-picker/internal/picker"
	"product-picker/internal/reconcile"
	"product-picker/internal/selection"
)

// MCP output schemas are inferred from these types, so every field is a
// plain JSON type. Prices are decimal strings.

// VariantOutput is a variant in a tool result.
type VariantOutput struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	InventoryQuantity *int   `json:"inventory_quantity,omitempty"`
	Selected          *bool  `json:"selected,omitempty"`
}

// EntryOutput is a selection entry in a tool result.
type EntryOutput struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	ImageSrc string          `json:"image_src,omitempty"`
	Variants []VariantOutput `json:"variants"`
}

// DiscountOutput is a discount in a tool result.
type DiscountOutput struct {
	Active bool   `json:"is_active"`
	Amount string `json:"amount"`
	Type   string `json:"type"`
}

// WidgetOutput is the selection list of a widget.
type WidgetOutput struct {
	WidgetID         string                    `json:"widget_id"`
	Entries          []EntryOutput             `json:"entries"`
	Discounts        map[string]DiscountOutput `json:"discounts"`
	DiscountedPrices map[string]string         `json:"discounted_prices"`
	Changes          *ChangesOutput            `json:"changes,omitempty"`
}

// ChangesOutput is what a commit changed. Variants are productId-variantId keys.
type ChangesOutput struct {
	AddedProducts   []string `json:"added_products"`
	RemovedProducts []string `json:"removed_products"`
	AddedVariants   []string `json:"added_variants"`
	RemovedVariants []string `json:"removed_variants"`
	Reordered       bool     `json:"reordered"`
}

// ProductOutput is a search result row.
type ProductOutput struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	ImageSrc string          `json:"image_src,omitempty"`
	Check    string          `json:"check"`
	Variants []VariantOutput `json:"variants"`
}

// PickerOutput is the state of a picker session.
type PickerOutput struct {
	SessionID     string          `json:"session_id"`
	WidgetID      string          `json:"widget_id,omitempty"`
	State         string          `json:"state"`
	Outcome       picker.Outcome  `json:"outcome,omitempty"`
	SearchText    string          `json:"search_text"`
	DebouncedText string          `json:"debounced_text"`
	Page          int             `json:"page"`
	HasMore       bool            `json:"has_more"`
	Results       []ProductOutput `json:"results"`
	Selection     []EntryOutput   `json:"selection"`
	SelectedCount int             `json:"selected_count"`
	LastError     string          `json:"last_error,omitempty"`
}

func widgetOutput(id string, sel *selection.Holder) *WidgetOutput {
	state := sel.State()
	out := &WidgetOutput{
		WidgetID:         id,
		Entries:          entriesOutput(state.Entries),
		Discounts:        make(map[string]DiscountOutput, len(state.Discounts)),
		DiscountedPrices: make(map[string]string, len(state.Prices)),
	}
	for k, d := range state.Discounts {
		out.Discounts[k] = DiscountOutput{Active: d.Active, Amount: d.Amount, Type: string(d.Type)}
	}
	for k, p := range state.Prices {
		out.DiscountedPrices[k] = p.StringFixed(2)
	}
	return out
}

func pickerOutput(id string, snap picker.Snapshot) *PickerOutput {
	out := &PickerOutput{
		SessionID:     id,
		State:         string(snap.State),
		SearchText:    snap.SearchText,
		DebouncedText: snap.DebouncedText,
		Page:          snap.Page,
		HasMore:       snap.HasMore,
		Results:       make([]ProductOutput, len(snap.Results)),
		Selection:     entriesOutput(snap.Selection),
		SelectedCount: snap.SelectedCount,
		LastError:     snap.LastError,
	}
	for i, p := range snap.Results {
		row := ProductOutput{
			ID:       string(p.ID),
			Title:    p.Title,
			ImageSrc: imageSrc(p.Image),
			Check:    string(p.Check),
			Variants: make([]VariantOutput, len(p.Variants)),
		}
		for j, v := range p.Variants {
			selected := v.Selected
			row.Variants[j] = variantOutput(v.Variant)
			row.Variants[j].Selected = &selected
		}
		out.Results[i] = row
	}
	return out
}

func entriesOutput(entries []model.SelectionEntry) []EntryOutput {
	out := make([]EntryOutput, len(entries))
	for i, e := range entries {
		row := EntryOutput{
			ID:       string(e.ID),
			Title:    e.Title,
			ImageSrc: imageSrc(e.Image),
			Variants: make([]VariantOutput, len(e.Variants)),
		}
		for j, v := range e.Variants {
			row.Variants[j] = variantOutput(v)
		}
		out[i] = row
	}
	return out
}

func variantOutput(v model.Variant) VariantOutput {
	return VariantOutput{
		ID:                string(v.ID),
		ProductID:         string(v.ProductID),
		Title:             v.Title,
		Price:             v.Price.StringFixed(2),
		InventoryQuantity: v.InventoryQuantity,
	}
}

func imageSrc(img *model.Image) string {
	if img == nil {
		return ""
	}
	return img.Src
}

func changesOutput(d reconcile.SelectionDiff) *ChangesOutput {
	out := &ChangesOutput{
		AddedProducts:   make([]string, len(d.AddedProducts)),
		RemovedProducts: make([]string, len(d.RemovedProducts)),
		AddedVariants:   make([]string, len(d.AddedVariants)),
		RemovedVariants: make([]string, len(d.RemovedVariants)),
		Reordered:       d.Reordered,
	}
	for i, id := range d.AddedProducts {
		out.AddedProducts[i] = string(id)
	}
	for i, id := range d.RemovedProducts {
		out.RemovedProducts[i] = string(id)
	}
	for i, v := range d.AddedVariants {
		out.AddedVariants[i] = model.DiscountKey(v.ProductID, v.VariantID)
	}
	for i, v := range d.RemovedVariants {
		out.RemovedVariants[i] = model.DiscountKey(v.ProductID, v.VariantID)
	}
	return out
}
