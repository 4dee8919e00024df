package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/louisbranch/pinmap/internal/platform/timeouts"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Run serves MCP over the configured transport until context cancellation.
func Run(ctx context.Context, cfg Config, store storage.PinStore) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	server, err := New(store)
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		addr := strings.TrimSpace(cfg.HTTPAddr)
		if addr == "" {
			addr = DefaultHTTPAddr
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return server.serveHTTP(ctx, listener)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// Handler returns the streamable HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

// serveWithTransport runs the MCP session until the client disconnects or
// ctx ends. Cancellation is a clean exit.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, listener net.Listener) error {
	if s == nil || s.mcpServer == nil {
		_ = listener.Close()
		return fmt.Errorf("MCP server is not configured")
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("MCP server listening at %v", listener.Addr())
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve MCP HTTP: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown MCP HTTP: %w", err)
		}
		return nil
	}
}
