package domain

import (
	"context"

	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ResourceUpdateNotifier announces that the resource at uri changed.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// PinCreateInput represents the MCP tool input for pin creation.
type PinCreateInput struct {
	Type        string  `json:"type,omitempty" jsonschema:"short category label, e.g. museum or park"`
	Title       string  `json:"title" jsonschema:"pin title, at most 32 characters"`
	Description string  `json:"description,omitempty" jsonschema:"free text description"`
	X           float64 `json:"x" jsonschema:"longitude between -180 and 180"`
	Y           float64 `json:"y" jsonschema:"latitude between -90 and 90"`
}

// PinCreateResult represents the MCP tool output for pin creation.
type PinCreateResult struct {
	ID      int64  `json:"id" jsonschema:"pin identifier"`
	Message string `json:"message" jsonschema:"confirmation message"`
}

// PinListInput represents the MCP tool input for listing pins.
type PinListInput struct{}

// PinListResult represents the MCP tool output for listing pins.
type PinListResult struct {
	Pins []PinResult `json:"pins" jsonschema:"every stored pin ordered by id"`
}

// PinGetInput represents the MCP tool input for fetching one pin.
type PinGetInput struct {
	ID int64 `json:"id" jsonschema:"pin identifier"`
}

// PinResult represents one pin in MCP tool output.
type PinResult struct {
	ID          int64   `json:"id" jsonschema:"pin identifier"`
	Type        string  `json:"type" jsonschema:"category label"`
	Title       string  `json:"title" jsonschema:"pin title"`
	Description string  `json:"description" jsonschema:"description"`
	X           float64 `json:"x" jsonschema:"longitude"`
	Y           float64 `json:"y" jsonschema:"latitude"`
	AverageRate float64 `json:"average_rate" jsonschema:"mean of all ratings, 0 when unrated"`
}

// PinRateInput represents the MCP tool input for rating a pin.
type PinRateInput struct {
	PointID int64 `json:"point_id" jsonschema:"identifier of the pin to rate"`
	Rate    int   `json:"rate" jsonschema:"rating from 1 to 5"`
}

// PinRateResult represents the MCP tool output for rating a pin.
type PinRateResult struct {
	PointID     int64   `json:"point_id" jsonschema:"rated pin identifier"`
	AverageRate float64 `json:"average_rate" jsonschema:"average after the rating"`
	Message     string  `json:"message" jsonschema:"confirmation message"`
}

// PinDeleteInput represents the MCP tool input for pin deletion.
type PinDeleteInput struct {
	ID int64 `json:"id" jsonschema:"pin identifier"`
}

// PinDeleteResult represents the MCP tool output for pin deletion.
type PinDeleteResult struct {
	ID      int64 `json:"id" jsonschema:"deleted pin identifier"`
	Deleted bool  `json:"deleted" jsonschema:"always true; deleting an absent pin succeeds"`
}

// PinListPayload represents the MCP resource payload for pin listings.
type PinListPayload struct {
	Pins []PinResult `json:"pins"`
}

// PinCreateTool defines the MCP tool schema for creating pins.
func PinCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pin_create",
		Description: "Creates a map pin with a title, category, and coordinates",
	}
}

// PinListTool defines the MCP tool schema for listing pins.
func PinListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pin_list",
		Description: "Lists every map pin with its average rating",
	}
}

// PinGetTool defines the MCP tool schema for fetching a pin.
func PinGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pin_get",
		Description: "Fetches one map pin by id",
	}
}

// PinRateTool defines the MCP tool schema for rating a pin.
func PinRateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pin_rate",
		Description: "Rates a map pin from 1 to 5 and refreshes its average",
	}
}

// PinDeleteTool defines the MCP tool schema for deleting a pin.
func PinDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pin_delete",
		Description: "Deletes a map pin and its ratings",
	}
}

// PinListResource defines the MCP resource for the pin listing.
func PinListResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "pins",
		Title:       "Pins",
		Description: "Readable listing of every map pin",
		MIMEType:    "application/json",
		URI:         "pins://list",
	}
}

func pinResultFromStorage(pin storage.Pin) PinResult {
	return PinResult{
		ID:          pin.ID,
		Type:        pin.Type,
		Title:       pin.Title,
		Description: pin.Description,
		X:           pin.X,
		Y:           pin.Y,
		AverageRate: pin.AverageRate,
	}
}
