// MCP transport handler for the product picker using the official MCP Go SDK.
// Exposes widget and picker session operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"

	"product-picker/internal/model"
	"product-picker/internal/negotiation"
	"product-picker/internal/picker"
	"product-picker/internal/selection"
)

// === MCP Meta Types ===
// meta carries request metadata and maps to HTTP headers:
// - Picker-Client header → meta["picker-client"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	PickerClient *PickerClientMeta `json:"picker-client,omitempty"`
}

// PickerClientMeta identifies the calling widget build.
type PickerClientMeta struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version"`
}

// === MCP Tool Input Types ===

// VariantInput is a variant in a seeded selection list. Price is a decimal string.
type VariantInput struct {
	ID                string `json:"id" jsonschema:"variant ID"`
	Title             string `json:"title,omitempty"`
	Price             string `json:"price,omitempty" jsonschema:"decimal price, e.g. 19.99"`
	InventoryQuantity *int   `json:"inventory_quantity,omitempty"`
}

// EntryInput is one product row in a seeded selection list.
type EntryInput struct {
	ID       string         `json:"id" jsonschema:"product ID"`
	Title    string         `json:"title,omitempty"`
	Image    *model.Image   `json:"image,omitempty"`
	Variants []VariantInput `json:"variants,omitempty"`
}

// CreateWidgetInput is the input schema for create_widget tool.
type CreateWidgetInput struct {
	Meta    *MCPMeta     `json:"meta,omitempty" jsonschema:"request metadata"`
	Entries []EntryInput `json:"entries,omitempty" jsonschema:"initial selection list"`
}

// WidgetInput is the input schema for tools addressing one widget.
type WidgetInput struct {
	Meta     *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	WidgetID string   `json:"widget_id" jsonschema:"widget ID"`
}

// SessionInput is the input schema for tools addressing one picker session.
type SessionInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	SessionID string   `json:"session_id" jsonschema:"picker session ID"`
}

// SearchInput is the input schema for search_products tool.
type SearchInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	SessionID string   `json:"session_id" jsonschema:"picker session ID"`
	Text      string   `json:"text" jsonschema:"search text; empty lists all products"`
	Debounce  bool     `json:"debounce,omitempty" jsonschema:"wait for the debounce window instead of committing the query immediately"`
}

// ToggleProductInput is the input schema for toggle_product tool.
type ToggleProductInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	SessionID string   `json:"session_id" jsonschema:"picker session ID"`
	ProductID string   `json:"product_id" jsonschema:"product ID from the results"`
}

// ToggleVariantInput is the input schema for toggle_variant tool.
type ToggleVariantInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	SessionID string   `json:"session_id" jsonschema:"picker session ID"`
	ProductID string   `json:"product_id" jsonschema:"product ID from the results"`
	VariantID string   `json:"variant_id" jsonschema:"variant ID of that product"`
}

// MoveEntryInput is the input schema for move_entry tool.
// With product_id set the move reorders that product's variants.
type MoveEntryInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	WidgetID  string   `json:"widget_id" jsonschema:"widget ID"`
	ProductID string   `json:"product_id,omitempty" jsonschema:"move variants within this product instead of product rows"`
	From      int      `json:"from" jsonschema:"current index"`
	To        int      `json:"to" jsonschema:"target index"`
}

// RemoveEntryInput is the input schema for remove_entry tool.
type RemoveEntryInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	WidgetID  string   `json:"widget_id" jsonschema:"widget ID"`
	ProductID string   `json:"product_id" jsonschema:"product row to remove"`
	VariantID string   `json:"variant_id,omitempty" jsonschema:"remove only this variant"`
}

// NewMCPServer creates an MCP server with picker tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "product-picker",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Product picker. Create a widget, open a picker session on it, " +
				"search and page through the catalog, toggle products or variants, then commit.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_widget",
		Description: "Create a selection list, optionally seeded with entries.",
	}, h.mcpCreateWidget)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_widget",
		Description: "Get the selection list of a widget with discounts and discounted prices.",
	}, h.mcpGetWidget)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_picker",
		Description: "Open a picker session whose working selection starts as a copy of the widget's list.",
	}, h.mcpOpenPicker)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_products",
		Description: "Set the search text of a picker session. Results reset; call load_next_page to fetch.",
	}, h.mcpSearchProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_next_page",
		Description: "Fetch the next page of results for the current search.",
	}, h.mcpLoadNextPage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_product",
		Description: "Select a product with all its variants, or deselect it if fully selected.",
	}, h.mcpToggleProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_variant",
		Description: "Select or deselect a single variant.",
	}, h.mcpToggleVariant)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "commit_picker",
		Description: "Close the picker session and replace the widget's list with its selection.",
	}, h.mcpCommitPicker)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_picker",
		Description: "Close the picker session and discard its selection.",
	}, h.mcpCancelPicker)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_entry",
		Description: "Move a product row, or a variant row within a product, from one index to another.",
	}, h.mcpMoveEntry)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_entry",
		Description: "Remove a product row, or one variant from it.",
	}, h.mcpRemoveEntry)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpCreateWidget(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CreateWidgetInput,
) (*mcp.CallToolResult, *WidgetOutput, error) {
	if err := h.mcpCheckClient(input.Meta); err != nil {
		return nil, nil, err
	}

	entries, err := entriesFromInput(input.Entries)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	id, sel, err := h.store.CreateWidget(entries)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, widgetOutput(id, sel), nil
}

func (h *Handler) mcpGetWidget(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input WidgetInput,
) (*mcp.CallToolResult, *WidgetOutput, error) {
	if err := h.mcpCheckClient(input.Meta); err != nil {
		return nil, nil, err
	}
	if input.WidgetID == "" {
		return nil, nil, fmt.Errorf("widget_id is required")
	}

	sel, err := h.store.Widget(input.WidgetID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, widgetOutput(input.WidgetID, sel), nil
}

func (h *Handler) mcpOpenPicker(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input WidgetInput,
) (*mcp.CallToolResult, *PickerOutput, error) {
	if err := h.mcpCheckClient(input.Meta); err != nil {
		return nil, nil, err
	}
	if input.WidgetID == "" {
		return nil, nil, fmt.Errorf("widget_id is required")
	}

	sid, sess, err := h.store.OpenSession(input.WidgetID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	out := pickerOutput(sid, sess.Snapshot())
	out.WidgetID = input.WidgetID
	return nil, out, nil
}

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, *PickerOutput, error) {
	sess, err := h.mcpSession(input.Meta, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := sess.SetSearchText(input.Text); err != nil {
		return nil, nil, h.mcpError(err)
	}
	// Agents cannot watch the debounce window elapse.
	if !input.Debounce {
		sess.Flush()
	}
	return nil, pickerOutput(input.SessionID, sess.Snapshot()), nil
}

func (h *Handler) mcpLoadNextPage(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *PickerOutput, error) {
	sess, err := h.mcpSession(input.Meta, input.SessionID)
	if err != nil {
		return nil, nil, err
	}

	outcome, err := sess.LoadNextPage(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	out := pickerOutput(input.SessionID, sess.Snapshot())
	out.Outcome = outcome
	return nil, out, nil
}

func (h *Handler) mcpToggleProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ToggleProductInput,
) (*mcp.CallToolResult, *PickerOutput, error) {
	sess, err := h.mcpSession(input.Meta, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	if err := sess.ToggleProduct(model.ID(input.ProductID)); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, pickerOutput(input.SessionID, sess.Snapshot()), nil
}

func (h *Handler) mcpToggleVariant(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ToggleVariantInput,
) (*mcp.CallToolResult, *PickerOutput, error) {
	sess, err := h.mcpSession(input.Meta, input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" || input.VariantID == "" {
		return nil, nil, fmt.Errorf("product_id and variant_id are required")
	}

	if err := sess.ToggleVariant(model.ID(input.ProductID), model.ID(input.VariantID)); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, pickerOutput(input.SessionID, sess.Snapshot()), nil
}

func (h *Handler) mcpCommitPicker(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *WidgetOutput, error) {
	if err := h.mcpCheckClient(input.Meta); err != nil {
		return nil, nil, err
	}
	if input.SessionID == "" {
		return nil, nil, fmt.Errorf("session_id is required")
	}

	res, err := h.store.CommitSession(input.SessionID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	out := widgetOutput(res.WidgetID, res.Holder)
	out.Changes = changesOutput(res.Changes)
	return nil, out, nil
}

// CancelOutput confirms a cancelled session.
type CancelOutput struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

func (h *Handler) mcpCancelPicker(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *CancelOutput, error) {
	if err := h.mcpCheckClient(input.Meta); err != nil {
		return nil, nil, err
	}
	if input.SessionID == "" {
		return nil, nil, fmt.Errorf("session_id is required")
	}

	if err := h.store.CancelSession(input.SessionID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &CancelOutput{SessionID: input.SessionID, Cancelled: true}, nil
}

func (h *Handler) mcpMoveEntry(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input MoveEntryInput,
) (*mcp.CallToolResult, *WidgetOutput, error) {
	sel, err := h.mcpWidget(input.Meta, input.WidgetID)
	if err != nil {
		return nil, nil, err
	}

	if input.ProductID != "" {
		err = sel.MoveVariant(model.ID(input.ProductID), input.From, input.To)
	} else {
		err = sel.MoveEntry(input.From, input.To)
	}
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, widgetOutput(input.WidgetID, sel), nil
}

func (h *Handler) mcpRemoveEntry(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveEntryInput,
) (*mcp.CallToolResult, *WidgetOutput, error) {
	sel, err := h.mcpWidget(input.Meta, input.WidgetID)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	if input.VariantID != "" {
		sel.RemoveVariant(model.ID(input.ProductID), model.ID(input.VariantID))
	} else {
		sel.RemoveEntry(model.ID(input.ProductID))
	}
	return nil, widgetOutput(input.WidgetID, sel), nil
}

// mcpWidget checks the client and resolves a widget.
func (h *Handler) mcpWidget(meta *MCPMeta, widgetID string) (*selection.Holder, error) {
	if err := h.mcpCheckClient(meta); err != nil {
		return nil, err
	}
	if widgetID == "" {
		return nil, fmt.Errorf("widget_id is required")
	}
	sel, err := h.store.Widget(widgetID)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return sel, nil
}

// mcpSession checks the client and resolves a picker session.
func (h *Handler) mcpSession(meta *MCPMeta, sessionID string) (*picker.Session, error) {
	if err := h.mcpCheckClient(meta); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	sess, err := h.store.Session(sessionID)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return sess, nil
}

// mcpError converts domain errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// mcpCheckClient applies the minimum client version to meta.picker-client.
// Calls without client metadata pass, matching the REST middleware.
func (h *Handler) mcpCheckClient(meta *MCPMeta) error {
	if meta == nil || meta.PickerClient == nil {
		return nil
	}
	version := meta.PickerClient.Version
	if !negotiation.ValidVersion(version) {
		return fmt.Errorf("%s: meta.picker-client.version %q is not semver",
			negotiation.ClientHeaderInvalid, version)
	}
	if negotiation.OlderThan(version, h.minClientVersion) {
		return fmt.Errorf("%s: client version %s is older than the minimum supported %s",
			negotiation.ClientVersionUnsupported, version, h.minClientVersion)
	}
	return nil
}

// entriesFromInput converts seeded entries, parsing variant prices.
func entriesFromInput(in []EntryInput) ([]model.SelectionEntry, error) {
	out := make([]model.SelectionEntry, len(in))
	for i, e := range in {
		entry := model.SelectionEntry{
			ID:       model.ID(e.ID),
			Title:    e.Title,
			Image:    e.Image,
			Variants: make([]model.Variant, len(e.Variants)),
		}
		for j, v := range e.Variants {
			price := decimal.Zero
			if v.Price != "" {
				p, err := decimal.NewFromString(v.Price)
				if err != nil {
					return nil, model.NewValidationError("price", fmt.Sprintf("variant %s: not a decimal", v.ID))
				}
				price = p
			}
			entry.Variants[j] = model.Variant{
				ID:                model.ID(v.ID),
				ProductID:         entry.ID,
				Title:             v.Title,
				Price:             price,
				InventoryQuantity: v.InventoryQuantity,
			}
		}
		out[i] = entry
	}
	return out, nil
}
