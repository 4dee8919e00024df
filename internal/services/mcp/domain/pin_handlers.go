package domain

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	msgPinAdded    = "Pin added successfully."
	msgRatingAdded = "Rating added successfully."
)

// PinCreateHandler executes a pin create request.
func PinCreateHandler(store storage.PinStore, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[PinCreateInput, PinCreateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PinCreateInput) (*mcp.CallToolResult, PinCreateResult, error) {
		if store == nil {
			return nil, PinCreateResult{}, fmt.Errorf("pin store is not configured")
		}
		id, err := store.InsertPin(ctx, storage.NewPin{
			Type:        input.Type,
			Title:       input.Title,
			Description: input.Description,
			X:           input.X,
			Y:           input.Y,
		})
		if err != nil {
			return nil, PinCreateResult{}, toolError("pin create", err)
		}
		notifyPinList(ctx, notify)
		return nil, PinCreateResult{ID: id, Message: msgPinAdded}, nil
	}
}

// PinListHandler executes a pin list request.
func PinListHandler(store storage.PinStore) mcp.ToolHandlerFor[PinListInput, PinListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ PinListInput) (*mcp.CallToolResult, PinListResult, error) {
		if store == nil {
			return nil, PinListResult{}, fmt.Errorf("pin store is not configured")
		}
		pins, err := listPins(ctx, store)
		if err != nil {
			return nil, PinListResult{}, toolError("pin list", err)
		}
		return nil, PinListResult{Pins: pins}, nil
	}
}

// PinGetHandler executes a pin get request.
func PinGetHandler(store storage.PinStore) mcp.ToolHandlerFor[PinGetInput, PinResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PinGetInput) (*mcp.CallToolResult, PinResult, error) {
		if store == nil {
			return nil, PinResult{}, fmt.Errorf("pin store is not configured")
		}
		pin, err := store.GetPinByID(ctx, input.ID)
		if err != nil {
			return nil, PinResult{}, toolError("pin get", err)
		}
		return nil, pinResultFromStorage(pin), nil
	}
}

// PinRateHandler records a rating and reports the refreshed average.
func PinRateHandler(store storage.PinStore, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[PinRateInput, PinRateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PinRateInput) (*mcp.CallToolResult, PinRateResult, error) {
		if store == nil {
			return nil, PinRateResult{}, fmt.Errorf("pin store is not configured")
		}
		if err := storage.SubmitRating(ctx, store, input.PointID, input.Rate); err != nil {
			return nil, PinRateResult{}, toolError("pin rate", err)
		}
		pin, err := store.GetPinByID(ctx, input.PointID)
		if err != nil {
			return nil, PinRateResult{}, toolError("pin rate", err)
		}
		notifyPinList(ctx, notify)
		return nil, PinRateResult{
			PointID:     pin.ID,
			AverageRate: pin.AverageRate,
			Message:     msgRatingAdded,
		}, nil
	}
}

// PinDeleteHandler executes a pin delete request.
func PinDeleteHandler(store storage.PinStore, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[PinDeleteInput, PinDeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PinDeleteInput) (*mcp.CallToolResult, PinDeleteResult, error) {
		if store == nil {
			return nil, PinDeleteResult{}, fmt.Errorf("pin store is not configured")
		}
		if err := store.DeletePin(ctx, input.ID); err != nil {
			return nil, PinDeleteResult{}, toolError("pin delete", err)
		}
		notifyPinList(ctx, notify)
		return nil, PinDeleteResult{ID: input.ID, Deleted: true}, nil
	}
}

// PinListResourceHandler renders the pin listing resource.
func PinListResourceHandler(store storage.PinStore) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if store == nil {
			return nil, fmt.Errorf("pin store is not configured")
		}

		uri := PinListResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		pins, err := listPins(ctx, store)
		if err != nil {
			return nil, toolError("pin list", err)
		}
		data, err := json.MarshalIndent(PinListPayload{Pins: pins}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal pin list: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func listPins(ctx context.Context, store storage.PinStore) ([]PinResult, error) {
	pins, err := store.GetAllPins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PinResult, 0, len(pins))
	for _, pin := range pins {
		out = append(out, pinResultFromStorage(pin))
	}
	return out, nil
}

func notifyPinList(ctx context.Context, notify ResourceUpdateNotifier) {
	if notify != nil {
		notify(ctx, PinListResource().URI)
	}
}

// toolError prefixes the failure with its error kind so agents can branch on it.
func toolError(op string, err error) error {
	return fmt.Errorf("%s failed [%s]: %w", op, apperrors.CodeOf(err), err)
}
