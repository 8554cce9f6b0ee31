package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dunglas/httpsfv"

	"product-picker/internal/model"
	"product-picker/internal/picker"
	"product-picker/internal/reconcile"
)

// PickerPageHeader summarizes the pagination state after a next-page call
// as an RFC 8941 dictionary: page=2, results=20, has-more=?1, outcome=appended.
const PickerPageHeader = "Picker-Page"

// pickerResponse is a session snapshot tagged with its id.
type pickerResponse struct {
	SessionID string `json:"session_id"`
	picker.Snapshot
}

type nextPageResponse struct {
	Outcome picker.Outcome `json:"outcome"`
	pickerResponse
}

// commitResponse is the committed widget plus what the commit changed.
type commitResponse struct {
	widgetResponse
	Changes reconcile.SelectionDiff `json:"changes"`
}

type searchRequest struct {
	Text string `json:"text"`
}

// session resolves the {sid} path value or writes the error.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, *picker.Session, bool) {
	sid := r.PathValue("sid")
	sess, err := h.store.Session(sid)
	if err != nil {
		h.writeError(w, err)
		return "", nil, false
	}
	return sid, sess, true
}

// handleGetPicker returns the session snapshot.
// GET /picker/{sid}
func (h *Handler) handleGetPicker(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, pickerResponse{SessionID: sid, Snapshot: sess.Snapshot()})
}

// handleSearch records search input. With ?flush=true the debounce window
// is skipped and the query is committed immediately.
// PUT /picker/{sid}/search
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	flush := false
	if v := r.URL.Query().Get("flush"); v != "" {
		var err error
		if flush, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, model.NewValidationError("flush", "must be a boolean"))
			return
		}
	}

	if err := sess.SetSearchText(req.Text); err != nil {
		h.writeError(w, err)
		return
	}
	if flush {
		sess.Flush()
	}
	h.writeJSON(w, http.StatusOK, pickerResponse{SessionID: sid, Snapshot: sess.Snapshot()})
}

// handleNextPage is the infinite-scroll trigger.
// POST /picker/{sid}/next
func (h *Handler) handleNextPage(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := h.session(w, r)
	if !ok {
		return
	}

	outcome, err := sess.LoadNextPage(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "next page failed",
			slog.String("session_id", sid),
			slog.String("error", err.Error()),
		)
		h.writeError(w, err)
		return
	}

	snap := sess.Snapshot()
	if header, err := pickerPageHeader(snap, outcome); err == nil {
		w.Header().Set(PickerPageHeader, header)
	} else {
		h.logger.Error("failed to encode picker page header", slog.String("error", err.Error()))
	}
	h.writeJSON(w, http.StatusOK, nextPageResponse{
		Outcome:        outcome,
		pickerResponse: pickerResponse{SessionID: sid, Snapshot: snap},
	})
}

// pickerPageHeader serializes pagination state as a structured field dictionary.
func pickerPageHeader(snap picker.Snapshot, outcome picker.Outcome) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("page", httpsfv.NewItem(int64(snap.Page)))
	dict.Add("results", httpsfv.NewItem(int64(len(snap.Results))))
	dict.Add("has-more", httpsfv.NewItem(snap.HasMore))
	dict.Add("outcome", httpsfv.NewItem(httpsfv.Token(outcome)))
	return httpsfv.Marshal(dict)
}

// handleToggleProduct flips a product checkbox.
// POST /picker/{sid}/products/{productID}/toggle
func (h *Handler) handleToggleProduct(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.ToggleProduct(model.ID(r.PathValue("productID"))); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pickerResponse{SessionID: sid, Snapshot: sess.Snapshot()})
}

// handleToggleVariant flips a variant checkbox.
// POST /picker/{sid}/products/{productID}/variants/{variantID}/toggle
func (h *Handler) handleToggleVariant(w http.ResponseWriter, r *http.Request) {
	sid, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	productID := model.ID(r.PathValue("productID"))
	variantID := model.ID(r.PathValue("variantID"))
	if err := sess.ToggleVariant(productID, variantID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pickerResponse{SessionID: sid, Snapshot: sess.Snapshot()})
}

// handleCommitPicker writes the working selection back to the widget.
// POST /picker/{sid}/commit
func (h *Handler) handleCommitPicker(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	res, err := h.store.CommitSession(sid)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, commitResponse{
		widgetResponse: renderWidget(res.WidgetID, res.Holder),
		Changes:        res.Changes,
	})
}

// handleCancelPicker discards the session.
// DELETE /picker/{sid}
func (h *Handler) handleCancelPicker(w http.ResponseWriter, r *http.Request) {
	if err := h.store.CancelSession(r.PathValue("sid")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
