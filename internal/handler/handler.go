// Package handler provides HTTP handlers for the product picker API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"product-picker/internal/model"
	"product-picker/internal/store"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store            *store.Store
	minClientVersion string
	logger           *slog.Logger
}

// New creates a new Handler over the given store. minClientVersion is
// enforced on MCP calls that announce a client version; the REST side is
// covered by negotiation.Middleware. Empty disables the check.
func New(s *store.Store, minClientVersion string, logger *slog.Logger) *Handler {
	return &Handler{
		store:            s,
		minClientVersion: minClientVersion,
		logger:           logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Selection list owned by a widget
	mux.HandleFunc("POST /widgets", h.handleCreateWidget)
	mux.HandleFunc("GET /widgets/{id}", h.handleGetWidget)
	mux.HandleFunc("DELETE /widgets/{id}", h.handleDeleteWidget)
	mux.HandleFunc("POST /widgets/{id}/rows", h.handleAddRow)
	mux.HandleFunc("DELETE /widgets/{id}/entries/{productID}", h.handleRemoveEntry)
	mux.HandleFunc("DELETE /widgets/{id}/entries/{productID}/variants/{variantID}", h.handleRemoveVariant)
	mux.HandleFunc("PUT /widgets/{id}/order", h.handleReorder)
	mux.HandleFunc("POST /widgets/{id}/move", h.handleMoveEntry)
	mux.HandleFunc("POST /widgets/{id}/entries/{productID}/move", h.handleMoveVariant)
	mux.HandleFunc("PUT /widgets/{id}/discounts/{key}", h.handleUpsertDiscount)
	mux.HandleFunc("POST /widgets/{id}/entries/{productID}/visibility", h.handleToggleVisibility)
	mux.HandleFunc("POST /widgets/{id}/picker", h.handleOpenPicker)

	// Picker sessions
	mux.HandleFunc("GET /picker/{sid}", h.handleGetPicker)
	mux.HandleFunc("PUT /picker/{sid}/search", h.handleSearch)
	mux.HandleFunc("POST /picker/{sid}/next", h.handleNextPage)
	mux.HandleFunc("POST /picker/{sid}/products/{productID}/toggle", h.handleToggleProduct)
	mux.HandleFunc("POST /picker/{sid}/products/{productID}/variants/{variantID}/toggle", h.handleToggleVariant)
	mux.HandleFunc("POST /picker/{sid}/commit", h.handleCommitPicker)
	mux.HandleFunc("DELETE /picker/{sid}", h.handleCancelPicker)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// healthResponse reports liveness and the number of live objects.
type healthResponse struct {
	Status string `json:"status"`
	store.Stats
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: h.store.Stats()})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		// Wrap unexpected errors
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// An empty body leaves v untouched. Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
