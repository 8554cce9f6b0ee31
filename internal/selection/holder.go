// Package selection holds the authoritative selection list of one picker
// widget: chosen products, their chosen variants, per-row discounts, and the
// order the user arranged them in.
package selection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"product-picker/internal/model"
	"product-picker/internal/reorder"
)

// PlaceholderPrefix starts the synthetic id of rows added by AddEmptyRow.
const PlaceholderPrefix = "temp-"

// PlaceholderTitle is the title of a row that has no product yet.
const PlaceholderTitle = "Select Product"

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeReplaced       ChangeKind = "replaced"
	ChangeRowAdded       ChangeKind = "row_added"
	ChangeEntryRemoved   ChangeKind = "entry_removed"
	ChangeVariantRemoved ChangeKind = "variant_removed"
	ChangeReordered      ChangeKind = "reordered"
	ChangeDiscount       ChangeKind = "discount"
)

// Change is delivered to listeners once per committed mutation.
type Change struct {
	Kind      ChangeKind
	Entries   []model.SelectionEntry
	Discounts map[string]model.Discount
}

// Options configures a Holder.
type Options struct {
	// EmptyEntryPolicy applies when RemoveVariant empties an entry.
	EmptyEntryPolicy model.EmptyEntryPolicy

	// PropagateDiscounts makes discount edits notify listeners.
	// Off by default: discounts are display state of the list.
	PropagateDiscounts bool

	Logger *slog.Logger
}

// Holder is safe for concurrent use. Listeners run after the lock is released
// and receive copies, so they may call back into the Holder.
type Holder struct {
	mu         sync.Mutex
	entries    []model.SelectionEntry
	discounts  map[string]model.Discount
	visibility map[model.ID]bool
	listeners  []func(Change)

	policy             model.EmptyEntryPolicy
	propagateDiscounts bool
	logger             *slog.Logger
	newID              func() string
}

// New creates a Holder seeded with a copy of initial.
func New(initial []model.SelectionEntry, opts Options) (*Holder, error) {
	if err := checkUnique(initial); err != nil {
		return nil, err
	}
	policy := opts.EmptyEntryPolicy
	if policy == "" {
		policy = model.DropEmptyEntry
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Holder{
		entries:            model.CloneEntries(initial),
		discounts:          make(map[string]model.Discount),
		visibility:         make(map[model.ID]bool),
		policy:             policy,
		propagateDiscounts: opts.PropagateDiscounts,
		logger:             logger,
		newID:              func() string { return PlaceholderPrefix + uuid.NewString() },
	}, nil
}

// OnChange registers a listener for committed changes.
func (h *Holder) OnChange(fn func(Change)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Entries returns a copy of the current selection list.
func (h *Holder) Entries() []model.SelectionEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return model.CloneEntries(h.entries)
}

// ReplaceAll swaps the whole list in one step. Used when a picker session
// commits. Discounts and visibility for products no longer present are kept;
// they are keyed by id and harmless.
func (h *Holder) ReplaceAll(entries []model.SelectionEntry) error {
	if err := checkUnique(entries); err != nil {
		return err
	}
	h.mu.Lock()
	h.entries = model.CloneEntries(entries)
	h.mu.Unlock()

	h.emit(ChangeReplaced)
	return nil
}

// AddEmptyRow appends a placeholder entry awaiting a product choice and
// returns its synthetic id.
func (h *Holder) AddEmptyRow() model.ID {
	id := model.ID(h.newID())

	h.mu.Lock()
	h.entries = append(h.entries, model.SelectionEntry{
		ID:       id,
		Title:    PlaceholderTitle,
		Variants: []model.Variant{},
	})
	h.mu.Unlock()

	h.emit(ChangeRowAdded)
	return id
}

// RemoveEntry drops the entry with productID. Absent ids are a no-op and do
// not notify.
func (h *Holder) RemoveEntry(productID model.ID) {
	h.mu.Lock()
	i := h.indexOf(productID)
	if i < 0 {
		h.mu.Unlock()
		return
	}
	h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
	h.mu.Unlock()

	h.emit(ChangeEntryRemoved)
}

// RemoveVariant drops one variant from an entry. When that empties the entry
// the configured EmptyEntryPolicy decides whether the row stays.
func (h *Holder) RemoveVariant(productID, variantID model.ID) {
	h.mu.Lock()
	i := h.indexOf(productID)
	if i < 0 || !h.entries[i].HasVariant(variantID) {
		h.mu.Unlock()
		return
	}

	updated := h.entries[i].WithoutVariant(variantID)
	if len(updated.Variants) == 0 && h.policy == model.DropEmptyEntry {
		h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
	} else {
		h.entries[i] = updated
	}
	h.mu.Unlock()

	h.emit(ChangeVariantRemoved)
}

// Reorder replaces the entry order. order must be a permutation of the
// current entry ids.
func (h *Holder) Reorder(order []model.ID) error {
	h.mu.Lock()
	current := make([]model.ID, len(h.entries))
	byID := make(map[model.ID]model.SelectionEntry, len(h.entries))
	for i, e := range h.entries {
		current[i] = e.ID
		byID[e.ID] = e
	}
	if !reorder.IsPermutation(current, order) {
		h.mu.Unlock()
		return model.NewValidationError("order", "must list every entry id exactly once")
	}
	next := make([]model.SelectionEntry, len(order))
	for i, id := range order {
		next[i] = byID[id]
	}
	h.entries = next
	h.mu.Unlock()

	h.emit(ChangeReordered)
	return nil
}

// MoveEntry moves the entry at from to index to (drop of a product row).
func (h *Holder) MoveEntry(from, to int) error {
	h.mu.Lock()
	n := len(h.entries)
	if !reorder.InRange(n, from) || !reorder.InRange(n, to) {
		h.mu.Unlock()
		return model.NewValidationError("index", fmt.Sprintf("move %d->%d outside 0..%d", from, to, n-1))
	}
	if from == to {
		h.mu.Unlock()
		return nil
	}
	h.entries = reorder.Move(h.entries, from, to)
	h.mu.Unlock()

	h.emit(ChangeReordered)
	return nil
}

// MoveVariant moves a variant within one entry (drop of a variant row).
func (h *Holder) MoveVariant(productID model.ID, from, to int) error {
	h.mu.Lock()
	i := h.indexOf(productID)
	if i < 0 {
		h.mu.Unlock()
		return model.NewNotFoundError("entry")
	}
	n := len(h.entries[i].Variants)
	if !reorder.InRange(n, from) || !reorder.InRange(n, to) {
		h.mu.Unlock()
		return model.NewValidationError("index", fmt.Sprintf("move %d->%d outside 0..%d", from, to, n-1))
	}
	if from == to {
		h.mu.Unlock()
		return nil
	}
	entry := h.entries[i].Clone()
	entry.Variants = reorder.Move(entry.Variants, from, to)
	h.entries[i] = entry
	h.mu.Unlock()

	h.emit(ChangeReordered)
	return nil
}

// ToggleVariantVisibility flips whether the variant rows of an entry are
// expanded and returns the new state. View-only; never notifies.
func (h *Holder) ToggleVariantVisibility(productID model.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visibility[productID] = !h.visibility[productID]
	return h.visibility[productID]
}

func (h *Holder) indexOf(productID model.ID) int {
	for i, e := range h.entries {
		if e.ID == productID {
			return i
		}
	}
	return -1
}

// emit snapshots state and calls listeners outside the lock.
func (h *Holder) emit(kind ChangeKind) {
	h.mu.Lock()
	change := Change{
		Kind:      kind,
		Entries:   model.CloneEntries(h.entries),
		Discounts: cloneDiscounts(h.discounts),
	}
	listeners := append([]func(Change){}, h.listeners...)
	h.mu.Unlock()

	h.logger.Debug("selection changed",
		slog.String("kind", string(kind)),
		slog.Int("entries", len(change.Entries)),
	)
	for _, fn := range listeners {
		fn(change)
	}
}

// State is a read-only snapshot for rendering.
type State struct {
	Entries           []model.SelectionEntry     `json:"entries"`
	Discounts         map[string]model.Discount  `json:"discounts"`
	VariantVisibility map[model.ID]bool          `json:"variant_visibility"`
	Prices            map[string]decimal.Decimal `json:"discounted_prices"`
}

// State returns entries, discounts, visibility, and the discounted price of
// every selected variant keyed by productID-variantID. Variants whose
// discount cannot be applied are reported at list price.
func (h *Holder) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	visibility := make(map[model.ID]bool, len(h.visibility))
	for k, v := range h.visibility {
		visibility[k] = v
	}
	prices := make(map[string]decimal.Decimal)
	for _, e := range h.entries {
		for _, v := range e.Variants {
			prices[model.DiscountKey(e.ID, v.ID)] = h.priceLocked(e.ID, v)
		}
	}
	return State{
		Entries:           model.CloneEntries(h.entries),
		Discounts:         cloneDiscounts(h.discounts),
		VariantVisibility: visibility,
		Prices:            prices,
	}
}

func checkUnique(entries []model.SelectionEntry) error {
	seen := make(map[model.ID]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return model.NewValidationError("entries", "entry id is required")
		}
		if seen[e.ID] {
			return model.NewValidationError("entries", fmt.Sprintf("duplicate entry id %q", e.ID))
		}
		seen[e.ID] = true
	}
	return nil
}
