package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/pinmap/internal/services/mcp/domain"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "pinmap MCP"
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over streamable HTTP for remote clients.
	TransportHTTP TransportKind = "http"
)

// DefaultHTTPAddr is the loopback address used when HTTP transport has no
// explicit address.
const DefaultHTTPAddr = "localhost:3002"

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	HTTPAddr  string
}

type registrationModule struct {
	name     string
	register func(*mcp.Server)
}

// Server hosts the MCP server over a pin store.
type Server struct {
	mcpServer *mcp.Server
	store     storage.PinStore
}

// New registers the pin tools and resources over store.
func New(store storage.PinStore) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("pin store is required")
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})

	notify := func(ctx context.Context, uri string) {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
		}
	}

	for _, module := range registrationModules(store, notify) {
		module.register(mcpServer)
	}
	return &Server{mcpServer: mcpServer, store: store}, nil
}

func registrationModules(store storage.PinStore, notify domain.ResourceUpdateNotifier) []registrationModule {
	return []registrationModule{
		{
			name: "pin-tools",
			register: func(server *mcp.Server) {
				mcp.AddTool(server, domain.PinCreateTool(), domain.PinCreateHandler(store, notify))
				mcp.AddTool(server, domain.PinListTool(), domain.PinListHandler(store))
				mcp.AddTool(server, domain.PinGetTool(), domain.PinGetHandler(store))
				mcp.AddTool(server, domain.PinRateTool(), domain.PinRateHandler(store, notify))
				mcp.AddTool(server, domain.PinDeleteTool(), domain.PinDeleteHandler(store, notify))
			},
		},
		{
			name: "pin-resources",
			register: func(server *mcp.Server) {
				server.AddResource(domain.PinListResource(), domain.PinListResourceHandler(store))
			},
		},
	}
}

// resourceSubscribeHandler accepts resource subscriptions with a valid URI.
func resourceSubscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}

// resourceUnsubscribeHandler accepts resource unsubscriptions with a valid URI.
func resourceUnsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	return nil
}
