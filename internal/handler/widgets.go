package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"product-picker/internal/model"
	"product-picker/internal/picker"
	"product-picker/internal/selection"
)

// widgetResponse is the rendered selection list of one widget.
type widgetResponse struct {
	ID string `json:"id"`
	selection.State
}

// createWidgetRequest seeds a widget. Entries may be omitted.
type createWidgetRequest struct {
	Entries []model.SelectionEntry `json:"entries"`
}

type addRowResponse struct {
	RowID  model.ID       `json:"row_id"`
	Widget widgetResponse `json:"widget"`
}

type reorderRequest struct {
	Order []model.ID `json:"order"`
}

// moveRequest is a drag-and-drop drop: from and to are list indexes.
type moveRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (m moveRequest) validate() error {
	if m.From == nil || m.To == nil {
		return model.NewValidationError("body", "from and to are required")
	}
	return nil
}

type visibilityResponse struct {
	ProductID model.ID       `json:"product_id"`
	Visible   bool           `json:"visible"`
	Widget    widgetResponse `json:"widget"`
}

type openPickerResponse struct {
	SessionID string `json:"session_id"`
	WidgetID  string `json:"widget_id"`
	picker.Snapshot
}

// holder resolves the {id} path value or writes the error.
func (h *Handler) holder(w http.ResponseWriter, r *http.Request) (string, *selection.Holder, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, model.NewValidationError("id", "widget ID required"))
		return "", nil, false
	}
	sel, err := h.store.Widget(id)
	if err != nil {
		h.writeError(w, err)
		return "", nil, false
	}
	return id, sel, true
}

func renderWidget(id string, sel *selection.Holder) widgetResponse {
	return widgetResponse{ID: id, State: sel.State()}
}

// handleCreateWidget registers a widget with an optional initial list.
// POST /widgets
func (h *Handler) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	id, sel, err := h.store.CreateWidget(req.Entries)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "widget created",
		slog.String("widget_id", id),
		slog.Int("entries", len(req.Entries)),
	)
	h.writeJSON(w, http.StatusCreated, renderWidget(id, sel))
}

// handleGetWidget returns the selection list.
// GET /widgets/{id}
func (h *Handler) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleDeleteWidget drops the widget and its open sessions.
// DELETE /widgets/{id}
func (h *Handler) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteWidget(r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddRow appends a placeholder row.
// POST /widgets/{id}/rows
func (h *Handler) handleAddRow(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	rowID := sel.AddEmptyRow()
	h.writeJSON(w, http.StatusCreated, addRowResponse{RowID: rowID, Widget: renderWidget(id, sel)})
}

// handleRemoveEntry drops a product row.
// DELETE /widgets/{id}/entries/{productID}
func (h *Handler) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	sel.RemoveEntry(model.ID(r.PathValue("productID")))
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleRemoveVariant drops a variant from a product row.
// DELETE /widgets/{id}/entries/{productID}/variants/{variantID}
func (h *Handler) handleRemoveVariant(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	sel.RemoveVariant(model.ID(r.PathValue("productID")), model.ID(r.PathValue("variantID")))
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleReorder replaces the row order with a permutation of product ids.
// PUT /widgets/{id}/order
func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sel.Reorder(req.Order); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleMoveEntry applies a product row drop.
// POST /widgets/{id}/move
func (h *Handler) handleMoveEntry(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sel.MoveEntry(*req.From, *req.To); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleMoveVariant applies a variant row drop within one product.
// POST /widgets/{id}/entries/{productID}/move
func (h *Handler) handleMoveVariant(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sel.MoveVariant(model.ID(r.PathValue("productID")), *req.From, *req.To); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// handleUpsertDiscount creates or edits the discount under key. An empty
// body adds the default discount.
// PUT /widgets/{id}/discounts/{key}
func (h *Handler) handleUpsertDiscount(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	productID, variantID, found := resolveDiscountKey(sel.Entries(), r.PathValue("key"))
	if !found {
		h.writeError(w, model.NewNotFoundError("entry"))
		return
	}

	var upd selection.DiscountUpdate
	if err := decodeJSON(r, &upd); err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := sel.UpdateDiscount(productID, variantID, upd); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderWidget(id, sel))
}

// resolveDiscountKey maps "productId" or "productId-variantId" onto the
// list. Ids may themselves contain dashes, so the key is matched against
// the entries instead of split.
func resolveDiscountKey(entries []model.SelectionEntry, key string) (model.ID, model.ID, bool) {
	for _, e := range entries {
		if string(e.ID) == key {
			return e.ID, "", true
		}
	}
	for _, e := range entries {
		rest, ok := strings.CutPrefix(key, string(e.ID)+"-")
		if ok && e.HasVariant(model.ID(rest)) {
			return e.ID, model.ID(rest), true
		}
	}
	return "", "", false
}

// handleToggleVisibility expands or collapses the variant rows of an entry.
// POST /widgets/{id}/entries/{productID}/visibility
func (h *Handler) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	id, sel, ok := h.holder(w, r)
	if !ok {
		return
	}
	productID := model.ID(r.PathValue("productID"))
	visible := sel.ToggleVariantVisibility(productID)
	h.writeJSON(w, http.StatusOK, visibilityResponse{
		ProductID: productID,
		Visible:   visible,
		Widget:    renderWidget(id, sel),
	})
}

// handleOpenPicker starts a picker session seeded from the widget's list.
// POST /widgets/{id}/picker
func (h *Handler) handleOpenPicker(w http.ResponseWriter, r *http.Request) {
	widgetID := r.PathValue("id")
	sid, sess, err := h.store.OpenSession(widgetID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "picker opened",
		slog.String("widget_id", widgetID),
		slog.String("session_id", sid),
	)
	h.writeJSON(w, http.StatusCreated, openPickerResponse{
		SessionID: sid,
		WidgetID:  widgetID,
		Snapshot:  sess.Snapshot(),
	})
}
